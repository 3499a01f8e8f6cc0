package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	mqttQoS           = 1
	presenceJoined    = "joined"
	disconnectQuiesce = 250
)

// MQTTTransport runs rooms over an MQTT broker. Presence is a retained
// message per participant, cleared by our last will if we drop without
// leaving.
type MQTTTransport struct {
	opts   MQTTOptions
	prefix string
	log    *slog.Logger
}

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	// Broker is tcp://host:1883, ssl://host:8883, ws://host/mqtt and so on.
	Broker   string
	Username string
	Password string

	// Prefix roots all topics; "huddle" when empty.
	Prefix string
}

// NewMQTTTransport creates a transport for the broker in opts.
func NewMQTTTransport(opts MQTTOptions, log *slog.Logger) *MQTTTransport {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "huddle"
	}
	if log == nil {
		log = slog.Default()
	}
	return &MQTTTransport{opts: opts, prefix: prefix, log: log}
}

// Codec implements Transport.
func (t *MQTTTransport) Codec() Codec { return MsgPack }

func (t *MQTTTransport) roomTopic(roomID string) string {
	return t.prefix + "/" + roomID
}

func (t *MQTTTransport) presenceTopic(roomID, participantID string) string {
	return t.roomTopic(roomID) + "/presence/" + participantID
}

func (t *MQTTTransport) inboxTopic(roomID, participantID string) string {
	return t.roomTopic(roomID) + "/inbox/" + participantID
}

func (t *MQTTTransport) allTopic(roomID string) string {
	return t.roomTopic(roomID) + "/all"
}

// Subscribe implements Transport.
func (t *MQTTTransport) Subscribe(ctx context.Context, roomID, participantID string, sink Sink) (Subscription, error) {
	sub := &mqttSubscription{
		transport:     t,
		roomID:        roomID,
		participantID: participantID,
		sink:          sink,
		log:           t.log.With("room", roomID, "participant", participantID),
	}

	presence := t.presenceTopic(roomID, participantID)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(t.opts.Broker)
	if t.opts.Username != "" {
		opts.SetUsername(t.opts.Username)
		opts.SetPassword(t.opts.Password)
	}
	opts.SetClientID(participantID + "-" + uuid.NewString()[:8])
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetOrderMatters(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetBinaryWill(presence, nil, mqttQoS, true)
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		sub.lost(err)
	})

	sub.client = mqtt.NewClient(opts)
	if err := wait(ctx, sub.client.Connect()); err != nil {
		return nil, fmt.Errorf("mqtt connect failed: %w", err)
	}

	filters := map[string]byte{
		t.inboxTopic(roomID, participantID): mqttQoS,
		t.allTopic(roomID):                  mqttQoS,
		t.presenceTopic(roomID, "+"):        mqttQoS,
	}
	if err := wait(ctx, sub.client.SubscribeMultiple(filters, sub.handle)); err != nil {
		sub.client.Disconnect(disconnectQuiesce)
		return nil, fmt.Errorf("mqtt subscribe failed: %w", err)
	}

	if err := wait(ctx, sub.client.Publish(presence, mqttQoS, true, []byte(presenceJoined))); err != nil {
		sub.client.Disconnect(disconnectQuiesce)
		return nil, fmt.Errorf("mqtt announce failed: %w", err)
	}

	return sub, nil
}

type mqttSubscription struct {
	transport     *MQTTTransport
	roomID        string
	participantID string
	sink          Sink
	log           *slog.Logger
	client        mqtt.Client

	mu     sync.Mutex
	closed bool
}

// handle routes one broker message by topic.
func (s *mqttSubscription) handle(_ mqtt.Client, msg mqtt.Message) {
	rest, ok := strings.CutPrefix(msg.Topic(), s.transport.roomTopic(s.roomID)+"/")
	if !ok {
		return
	}

	switch {
	case strings.HasPrefix(rest, "presence/"):
		id := strings.TrimPrefix(rest, "presence/")
		if len(msg.Payload()) == 0 {
			s.sink.PresenceLeft(id)
		} else {
			s.sink.PresenceJoined(id)
		}

	case rest == "all", rest == "inbox/"+s.participantID:
		s.sink.Deliver("", msg.Payload())

	default:
		s.log.Debug("Ignoring message on unexpected topic", "topic", msg.Topic())
	}
}

func (s *mqttSubscription) lost(err error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.log.Warn("MQTT connection lost", "error", err)
	s.sink.Lost(err)
}

// Send implements Subscription.
func (s *mqttSubscription) Send(ctx context.Context, to string, data []byte) error {
	topic := s.transport.allTopic(s.roomID)
	if to != "" {
		topic = s.transport.inboxTopic(s.roomID, to)
	}
	if err := wait(ctx, s.client.Publish(topic, mqttQoS, false, data)); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// Close implements Subscription. It clears our retained presence before
// disconnecting so the room sees the leave right away.
func (s *mqttSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	token := s.client.Publish(s.transport.presenceTopic(s.roomID, s.participantID), mqttQoS, true, []byte{})
	token.WaitTimeout(2 * time.Second)

	s.client.Unsubscribe(
		s.transport.inboxTopic(s.roomID, s.participantID),
		s.transport.allTopic(s.roomID),
		s.transport.presenceTopic(s.roomID, "+"),
	).WaitTimeout(time.Second)

	s.client.Disconnect(disconnectQuiesce)
	return token.Error()
}

// wait blocks until token completes or ctx ends.
func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

package signaling

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
)

type fakeMQTTMessage struct {
	topic   string
	payload []byte
}

func (m fakeMQTTMessage) Duplicate() bool   { return false }
func (m fakeMQTTMessage) Qos() byte         { return 1 }
func (m fakeMQTTMessage) Retained() bool    { return false }
func (m fakeMQTTMessage) Topic() string     { return m.topic }
func (m fakeMQTTMessage) MessageID() uint16 { return 0 }
func (m fakeMQTTMessage) Payload() []byte   { return m.payload }
func (m fakeMQTTMessage) Ack()              {}

type recordingSink struct {
	events []string
}

func (s *recordingSink) PresenceJoined(id string)         { s.events = append(s.events, "joined:"+id) }
func (s *recordingSink) PresenceLeft(id string)           { s.events = append(s.events, "left:"+id) }
func (s *recordingSink) Deliver(from string, data []byte) { s.events = append(s.events, "deliver:"+string(data)) }
func (s *recordingSink) Lost(err error)                   { s.events = append(s.events, "lost") }

func TestMQTTTopicRouting(t *testing.T) {
	transport := NewMQTTTransport(MQTTOptions{Broker: "tcp://unused:1883"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sink := &recordingSink{}
	sub := &mqttSubscription{
		transport:     transport,
		roomID:        "standup",
		participantID: "bob",
		sink:          sink,
		log:           transport.log,
	}

	for _, m := range []fakeMQTTMessage{
		{"huddle/standup/presence/alice", []byte(presenceJoined)},
		{"huddle/standup/inbox/bob", []byte("offer")},
		{"huddle/standup/all", []byte("mute")},
		{"huddle/standup/inbox/carol", []byte("not for us")},
		{"huddle/other/all", []byte("other room")},
		{"huddle/standup/presence/alice", nil},
	} {
		sub.handle(nil, m)
	}

	want := []string{"joined:alice", "deliver:offer", "deliver:mute", "left:alice"}
	if !reflect.DeepEqual(sink.events, want) {
		t.Errorf("events = %v, want %v", sink.events, want)
	}
}

func TestMQTTTopics(t *testing.T) {
	tr := NewMQTTTransport(MQTTOptions{Prefix: "test"}, nil)

	if got := tr.presenceTopic("r", "+"); got != "test/r/presence/+" {
		t.Errorf("presence filter = %q", got)
	}
	if got := tr.inboxTopic("r", "alice"); got != "test/r/inbox/alice" {
		t.Errorf("inbox = %q", got)
	}
	if tr.Codec() != MsgPack {
		t.Error("mqtt transport should carry msgpack")
	}
}

package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BioHazard786/huddle/internal/relay"
)

// RelayTransport speaks the huddle relay protocol over a WebSocket.
type RelayTransport struct {
	serverURL string
	log       *slog.Logger
}

// NewRelayTransport creates a transport for the relay at serverURL
// (ws:// or wss://).
func NewRelayTransport(serverURL string, log *slog.Logger) *RelayTransport {
	if log == nil {
		log = slog.Default()
	}
	return &RelayTransport{serverURL: serverURL, log: log}
}

// Codec implements Transport. Payloads are embedded in JSON frames.
func (t *RelayTransport) Codec() Codec { return JSON }

// Subscribe implements Transport. It returns once the relay confirmed the
// join, which is also when the relay announced us to the room.
func (t *RelayTransport) Subscribe(ctx context.Context, roomID, participantID string, sink Sink) (Subscription, error) {
	client, err := dialRelay(ctx, t.serverURL)
	if err != nil {
		return nil, err
	}

	sub := &relaySubscription{
		client: client,
		sink:   sink,
		joined: make(chan error, 1),
		log:    t.log.With("room", roomID, "participant", participantID),
	}
	go sub.route()

	if err := client.send(ctx, &relay.Message{
		Type:          relay.TypeJoinRoom,
		RoomID:        roomID,
		ParticipantID: participantID,
	}); err != nil {
		client.close()
		return nil, fmt.Errorf("join room: %w", err)
	}

	select {
	case err := <-sub.joined:
		if err != nil {
			client.close()
			return nil, fmt.Errorf("join room: %w", err)
		}
		return sub, nil
	case <-ctx.Done():
		client.close()
		return nil, ctx.Err()
	}
}

type relaySubscription struct {
	client *wsClient
	sink   Sink
	log    *slog.Logger

	joined     chan error
	joinedOnce sync.Once

	mu      sync.Mutex
	closing bool
}

// route dispatches incoming frames to the sink.
func (s *relaySubscription) route() {
	isJoined := false

	for msg := range s.client.incoming {
		switch msg.Type {

		case relay.TypeJoinSuccess:
			isJoined = true
			s.signalJoined(nil)
			for _, member := range msg.Members {
				s.sink.PresenceJoined(member)
			}

		case relay.TypePeerJoined:
			s.sink.PresenceJoined(msg.ParticipantID)

		case relay.TypePeerLeft:
			s.sink.PresenceLeft(msg.ParticipantID)

		case relay.TypeSignal:
			s.sink.Deliver(msg.From, msg.Payload)

		case relay.TypeError:
			text := errorText(msg)
			if !isJoined {
				s.signalJoined(errors.New(text))
				continue
			}
			s.log.Warn("Relay reported an error", "error", text)

		default:
			s.log.Debug("Ignoring unknown relay frame", "type", msg.Type)
		}
	}

	err := s.client.err()
	if err == nil {
		err = errors.New("relay connection closed")
	}
	s.signalJoined(err)

	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if isJoined && !closing {
		s.sink.Lost(err)
	}
}

func (s *relaySubscription) signalJoined(err error) {
	s.joinedOnce.Do(func() {
		s.joined <- err
	})
}

// Send implements Subscription.
func (s *relaySubscription) Send(ctx context.Context, to string, data []byte) error {
	return s.client.send(ctx, &relay.Message{
		Type:    relay.TypeSignal,
		To:      to,
		Payload: json.RawMessage(data),
	})
}

// Close implements Subscription.
func (s *relaySubscription) Close() error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.client.close()
	return nil
}

// errorText parses the error payload of a relay error frame.
func errorText(msg *relay.Message) string {
	var errPayload relay.ErrorPayload
	if err := json.Unmarshal(msg.Payload, &errPayload); err != nil || errPayload.Error == "" {
		return "unknown error from relay"
	}
	return errPayload.Error
}

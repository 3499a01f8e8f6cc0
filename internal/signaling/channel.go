package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrChannelUnavailable is returned when publishing on a channel that is not
// subscribed, or when the subscription itself cannot be established.
var ErrChannelUnavailable = errors.New("signaling channel unavailable")

// EventType tells what an Event carries.
type EventType int

const (
	EventPresenceJoined EventType = iota + 1
	EventPresenceLeft
	EventMessage
	EventChannelLost
)

func (t EventType) String() string {
	switch t {
	case EventPresenceJoined:
		return "presence-joined"
	case EventPresenceLeft:
		return "presence-left"
	case EventMessage:
		return "message"
	case EventChannelLost:
		return "channel-lost"
	default:
		return "unknown"
	}
}

// Event is what a Channel emits to its owner.
type Event struct {
	Type          EventType
	ParticipantID string
	Message       Message
	Err           error
}

const eventBuffer = 64

// senderMarks is the duplicate-detection state kept for one remote sender.
// Sessions the sender has moved on from are retired and never accepted
// again.
type senderMarks struct {
	session string
	seqs    map[Kind]uint64
	retired map[string]struct{}
}

// Channel is the signaling channel of one room for one local participant.
// It stamps outgoing messages with a per-subscription session and sequence
// number, and drops incoming duplicates and stale messages.
type Channel struct {
	transport Transport
	codec     Codec
	roomID    string
	self      string
	log       *slog.Logger

	events chan Event
	done   chan struct{}

	mu          sync.Mutex
	sub         Subscription
	subscribing bool
	closed      bool
	session     string
	senders     map[string]*senderMarks

	// sendMu keeps stamping and sending in one order.
	sendMu sync.Mutex
	seq    uint64
}

// NewChannel creates an unsubscribed channel for roomID as self.
func NewChannel(t Transport, roomID, self string, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		transport: t,
		codec:     t.Codec(),
		roomID:    roomID,
		self:      self,
		log:       log.With("room", roomID, "participant", self),
		events:    make(chan Event, eventBuffer),
		done:      make(chan struct{}),
		senders:   make(map[string]*senderMarks),
	}
}

// Subscribe acquires the room subscription. ctx bounds the establishment
// only; the subscription lives until Close.
func (c *Channel) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return fmt.Errorf("%w: channel closed", ErrChannelUnavailable)
	case c.sub != nil:
		c.mu.Unlock()
		return nil
	case c.subscribing:
		c.mu.Unlock()
		return fmt.Errorf("%w: subscribe already in progress", ErrChannelUnavailable)
	}
	c.subscribing = true
	c.session = uuid.NewString()
	c.mu.Unlock()

	sub, err := c.transport.Subscribe(ctx, c.roomID, c.self, channelSink{c})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribing = false
	if err != nil {
		return fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}
	if c.closed {
		sub.Close()
		return fmt.Errorf("%w: channel closed during subscribe", ErrChannelUnavailable)
	}
	c.sub = sub
	c.log.Debug("Subscribed to room", "codec", c.codec.Name())
	return nil
}

// Publish sends m. From, Session and Seq are overwritten. Malformed messages
// are logged and dropped rather than returned as errors.
func (c *Channel) Publish(ctx context.Context, m Message) error {
	c.mu.Lock()
	sub, session := c.sub, c.session
	closed := c.closed
	c.mu.Unlock()

	if sub == nil || closed {
		return ErrChannelUnavailable
	}

	if m.Payload == nil {
		c.log.Error("Dropping signaling message without payload", "to", m.To)
		return nil
	}
	if m.IsNegotiation() && m.To == "" {
		c.log.Error("Dropping unaddressed negotiation message", "kind", m.Kind())
		return nil
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.seq++
	m.From = c.self
	m.Session = session
	m.Seq = c.seq

	data, err := c.codec.Marshal(NewEnvelope(m))
	if err != nil {
		c.log.Error("Failed to encode signaling message", "kind", m.Kind(), "error", err)
		return nil
	}

	if err := sub.Send(ctx, m.To, data); err != nil {
		return fmt.Errorf("publish %s: %w", m.Kind(), err)
	}
	return nil
}

// Events returns the stream of presence and message events. It is never
// closed; stop reading once the channel is closed.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Close releases the subscription. Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if sub != nil {
		return sub.Close()
	}
	return nil
}

// accept applies the per-sender, per-kind sequence rule. A new session from
// a sender starts its sequences over and retires the previous session.
func (c *Channel) accept(m Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.senders[m.From]
	switch {
	case !ok:
		s = &senderMarks{
			session: m.Session,
			seqs:    make(map[Kind]uint64),
			retired: make(map[string]struct{}),
		}
		c.senders[m.From] = s
	case m.Session != s.session:
		if _, old := s.retired[m.Session]; old {
			return false
		}
		s.retired[s.session] = struct{}{}
		s.session = m.Session
		s.seqs = make(map[Kind]uint64)
	}

	if last, seen := s.seqs[m.Kind()]; seen && m.Seq <= last {
		return false
	}
	s.seqs[m.Kind()] = m.Seq
	return true
}

func (c *Channel) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// channelSink keeps the Sink methods off the Channel API.
type channelSink struct {
	c *Channel
}

func (s channelSink) PresenceJoined(participantID string) {
	if participantID == "" || participantID == s.c.self {
		return
	}
	s.c.emit(Event{Type: EventPresenceJoined, ParticipantID: participantID})
}

func (s channelSink) PresenceLeft(participantID string) {
	if participantID == "" || participantID == s.c.self {
		return
	}
	s.c.emit(Event{Type: EventPresenceLeft, ParticipantID: participantID})
}

func (s channelSink) Deliver(from string, data []byte) {
	c := s.c

	var e Envelope
	if err := c.codec.Unmarshal(data, &e); err != nil {
		c.log.Debug("Dropping undecodable signaling payload", "from", from, "error", err)
		return
	}
	m, err := e.Message()
	if err != nil {
		c.log.Debug("Dropping signaling message", "from", from, "error", err)
		return
	}

	switch {
	case from != "" && m.From != from:
		c.log.Warn("Dropping signaling message with mismatched sender", "claimed", m.From, "from", from)
		return
	case m.From == "" || m.From == c.self:
		return
	case m.To != "" && m.To != c.self:
		return
	}

	if !c.accept(m) {
		c.log.Debug("Dropping duplicate or stale signaling message", "peer", m.From, "kind", m.Kind(), "seq", m.Seq)
		return
	}
	c.emit(Event{Type: EventMessage, ParticipantID: m.From, Message: m})
}

func (s channelSink) Lost(err error) {
	s.c.emit(Event{Type: EventChannelLost, Err: err})
}

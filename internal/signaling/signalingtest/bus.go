// Package signalingtest provides an in-memory signaling transport for tests.
package signalingtest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/BioHazard786/huddle/internal/signaling"
)

// ErrClosed is returned when sending on a closed subscription.
var ErrClosed = errors.New("subscription closed")

// Bus is an in-process Transport. Every subscriber gets its own ordered
// delivery queue, so a slow reader never blocks the others.
type Bus struct {
	codec signaling.Codec

	mu        sync.Mutex
	rooms     map[string]map[string]*member
	subErr    error
	sendErr   map[string]error
	published []signaling.Message
}

// NewBus creates an empty bus using the JSON codec.
func NewBus() *Bus {
	return &Bus{
		codec:   signaling.JSON,
		rooms:   make(map[string]map[string]*member),
		sendErr: make(map[string]error),
	}
}

// Codec implements signaling.Transport.
func (b *Bus) Codec() signaling.Codec { return b.codec }

// FailSubscribe makes subsequent subscriptions fail with err (nil clears).
func (b *Bus) FailSubscribe(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subErr = err
}

// FailSend makes sends by participantID fail with err (nil clears).
func (b *Bus) FailSend(participantID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.sendErr, participantID)
		return
	}
	b.sendErr[participantID] = err
}

// Members returns the sorted ids subscribed to roomID.
func (b *Bus) Members(roomID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.rooms[roomID]))
	for id := range b.rooms[roomID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Published returns every message successfully sent on the bus, decoded.
func (b *Bus) Published() []signaling.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]signaling.Message(nil), b.published...)
}

// Inject delivers raw data to participantID as if sent by from.
func (b *Bus) Inject(roomID, from, to string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.rooms[roomID][to]; ok {
		m.push(func(s signaling.Sink) { s.Deliver(from, data) })
	}
}

// InjectMessage encodes msg and delivers it to msg.To as if sent by
// msg.From, bypassing the sender's channel.
func (b *Bus) InjectMessage(roomID string, msg signaling.Message) error {
	data, err := b.codec.Marshal(signaling.NewEnvelope(msg))
	if err != nil {
		return err
	}
	b.Inject(roomID, msg.From, msg.To, data)
	return nil
}

// Announce reports participantID as present in roomID without a real
// subscription behind it.
func (b *Bus) Announce(roomID, participantID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.rooms[roomID] {
		m.push(func(s signaling.Sink) { s.PresenceJoined(participantID) })
	}
}

// Withdraw reports participantID as gone from roomID.
func (b *Bus) Withdraw(roomID, participantID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, m := range b.rooms[roomID] {
		if id != participantID {
			m.push(func(s signaling.Sink) { s.PresenceLeft(participantID) })
		}
	}
}

// Drop disconnects participantID abruptly: the room sees it leave and its
// own sink is told the subscription is lost.
func (b *Bus) Drop(roomID, participantID string) {
	b.mu.Lock()
	m, ok := b.rooms[roomID][participantID]
	b.mu.Unlock()
	if !ok {
		return
	}
	m.push(func(s signaling.Sink) { s.Lost(errors.New("connection dropped")) })
	b.remove(m)
}

// Subscribe implements signaling.Transport.
func (b *Bus) Subscribe(ctx context.Context, roomID, participantID string, sink signaling.Sink) (signaling.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subErr != nil {
		return nil, b.subErr
	}

	room, ok := b.rooms[roomID]
	if !ok {
		room = make(map[string]*member)
		b.rooms[roomID] = room
	}
	if old, ok := room[participantID]; ok {
		b.removeLocked(old)
	}

	m := newMember(b, roomID, participantID, sink)
	for id, other := range room {
		other.push(func(s signaling.Sink) { s.PresenceJoined(participantID) })
		existing := id
		m.push(func(s signaling.Sink) { s.PresenceJoined(existing) })
	}
	room[participantID] = m
	return m, nil
}

func (b *Bus) send(from *member, to string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.sendErr[from.id]; err != nil {
		return err
	}
	room, ok := b.rooms[from.roomID]
	if !ok || room[from.id] != from {
		return ErrClosed
	}

	var e signaling.Envelope
	if err := b.codec.Unmarshal(data, &e); err == nil {
		if msg, err := e.Message(); err == nil {
			b.published = append(b.published, msg)
		}
	}

	deliver := func(s signaling.Sink) { s.Deliver(from.id, data) }
	if to != "" {
		if target, ok := room[to]; ok {
			target.push(deliver)
		}
		return nil
	}
	for id, target := range room {
		if id != from.id {
			target.push(deliver)
		}
	}
	return nil
}

func (b *Bus) remove(m *member) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(m)
}

func (b *Bus) removeLocked(m *member) {
	room := b.rooms[m.roomID]
	if room[m.id] != m {
		m.stop()
		return
	}
	delete(room, m.id)
	if len(room) == 0 {
		delete(b.rooms, m.roomID)
	}
	for _, other := range room {
		other.push(func(s signaling.Sink) { s.PresenceLeft(m.id) })
	}
	m.stop()
}

// member is one subscription with an unbounded ordered delivery queue.
type member struct {
	bus    *Bus
	roomID string
	id     string
	sink   signaling.Sink

	mu      sync.Mutex
	queue   []func(signaling.Sink)
	wake    chan struct{}
	stopped bool
}

func newMember(b *Bus, roomID, id string, sink signaling.Sink) *member {
	m := &member{
		bus:    b,
		roomID: roomID,
		id:     id,
		sink:   sink,
		wake:   make(chan struct{}, 1),
	}
	go m.run()
	return m
}

func (m *member) push(fn func(signaling.Sink)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.queue = append(m.queue, fn)
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// stop lets queued deliveries drain, then ends the goroutine.
func (m *member) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *member) run() {
	for range m.wake {
		for {
			m.mu.Lock()
			if len(m.queue) == 0 {
				stopped := m.stopped
				m.mu.Unlock()
				if stopped {
					return
				}
				break
			}
			fn := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()

			fn(m.sink)
		}
	}
}

// Send implements signaling.Subscription.
func (m *member) Send(ctx context.Context, to string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.bus.send(m, to, data)
}

// Close implements signaling.Subscription.
func (m *member) Close() error {
	m.bus.remove(m)
	return nil
}

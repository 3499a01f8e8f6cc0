// Package roomview adapts a room.Orchestrator to what a view needs: connect,
// disconnect, mute, and a few observable fields.
package roomview

import (
	"context"
	"errors"
	"sync"

	"github.com/BioHazard786/huddle/internal/room"
)

// Hook owns at most one orchestrator at a time. It is created on Connect
// and discarded on Disconnect. All methods are safe for concurrent use and
// idempotent in the same logical state.
type Hook struct {
	cfg     room.Config
	updates chan struct{}

	mu   sync.Mutex
	orch *room.Orchestrator
	stop chan struct{}
	err  error
}

// New returns a disconnected Hook for cfg.
func New(cfg room.Config) *Hook {
	return &Hook{cfg: cfg, updates: make(chan struct{}, 1)}
}

// Connect joins the room. Connecting while connected, or while another
// Connect is in flight, returns nil.
func (h *Hook) Connect(ctx context.Context) error {
	h.mu.Lock()
	if h.orch == nil {
		o, err := room.New(h.cfg)
		if err != nil {
			h.err = err
			h.mu.Unlock()
			h.notify()
			return err
		}
		h.orch = o
		h.stop = make(chan struct{})
		go h.forward(o, h.stop)
	}
	o := h.orch
	h.err = nil
	h.mu.Unlock()

	err := o.Connect(ctx)
	if errors.Is(err, room.ErrAlreadyConnected) || errors.Is(err, room.ErrAlreadyConnecting) {
		return nil
	}
	if err != nil && !errors.Is(err, room.ErrConnectAborted) {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		h.notify()
	}
	return err
}

// Disconnect leaves the room and discards the orchestrator. Disconnecting
// when not connected returns nil.
func (h *Hook) Disconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.orch == nil {
		return nil
	}

	err := h.orch.Disconnect()
	close(h.stop)
	h.orch = nil
	h.stop = nil
	h.notify()
	return err
}

// SetMuted sets the local microphone state and returns it.
func (h *Hook) SetMuted(muted bool) bool {
	o := h.current()
	if o == nil {
		return true
	}
	return o.SetMuted(muted)
}

// ToggleMute flips the local microphone state and returns the new one.
func (h *Hook) ToggleMute() bool {
	return h.SetMuted(!h.IsMuted())
}

func (h *Hook) IsConnected() bool {
	o := h.current()
	return o != nil && o.State() == room.StateConnected
}

func (h *Hook) IsMuted() bool {
	o := h.current()
	return o == nil || o.Muted()
}

// Error returns the last room-level error, or "" if there is none.
func (h *Hook) Error() string {
	h.mu.Lock()
	err, o := h.err, h.orch
	h.mu.Unlock()

	if err == nil && o != nil {
		err = o.Err()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Snapshot returns the room view; a disconnected hook reports an idle room.
func (h *Hook) Snapshot() room.Snapshot {
	if o := h.current(); o != nil {
		return o.Snapshot()
	}
	return room.Snapshot{
		RoomID:        h.cfg.RoomID,
		ParticipantID: h.cfg.ParticipantID,
		State:         room.StateIdle,
		Muted:         true,
	}
}

// Updates signals a change in any observable field. It survives reconnects.
func (h *Hook) Updates() <-chan struct{} {
	return h.updates
}

func (h *Hook) current() *room.Orchestrator {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.orch
}

func (h *Hook) forward(o *room.Orchestrator, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-o.Updates():
			h.notify()
		}
	}
}

func (h *Hook) notify() {
	select {
	case h.updates <- struct{}{}:
	default:
	}
}

package roomview_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/BioHazard786/huddle/internal/media"
	"github.com/BioHazard786/huddle/internal/peer/peertest"
	"github.com/BioHazard786/huddle/internal/room"
	"github.com/BioHazard786/huddle/internal/roomview"
	"github.com/BioHazard786/huddle/internal/signaling/signalingtest"
)

func newHook(t *testing.T, bus *signalingtest.Bus) *roomview.Hook {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := roomview.New(room.Config{
		RoomID:           "standup",
		ParticipantID:    "alice",
		Transport:        bus,
		Capture:          media.NewDevice(media.Options{LockPath: filepath.Join(t.TempDir(), "capture.lock"), Logger: quiet}),
		NewPeerTransport: peertest.NewFactory().New,
		MaxRetries:       2,
		Logger:           quiet,
	})
	t.Cleanup(func() { h.Disconnect() })
	return h
}

func TestHookLifecycle(t *testing.T) {
	bus := signalingtest.NewBus()
	h := newHook(t, bus)
	ctx := context.Background()

	if h.IsConnected() || !h.IsMuted() || h.Error() != "" {
		t.Fatalf("fresh hook: connected=%v muted=%v error=%q", h.IsConnected(), h.IsMuted(), h.Error())
	}

	if err := h.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := h.Connect(ctx); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if !h.IsConnected() {
		t.Fatal("not connected")
	}
	if !h.IsMuted() {
		t.Error("connected unmuted by default")
	}

	if h.ToggleMute() || h.IsMuted() {
		t.Error("ToggleMute did not unmute")
	}
	if !h.SetMuted(true) || !h.IsMuted() {
		t.Error("SetMuted(true) did not mute")
	}

	if err := h.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := h.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
	if h.IsConnected() {
		t.Error("connected after Disconnect")
	}
	if got := h.Snapshot().State; got != room.StateIdle {
		t.Errorf("snapshot state = %s, want idle", got)
	}
	if members := bus.Members("standup"); len(members) != 0 {
		t.Errorf("members after disconnect: %v", members)
	}

	if err := h.Connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if len(h.Snapshot().Participants) != 0 {
		t.Error("reconnect kept participants")
	}
}

func TestHookSurfacesConnectError(t *testing.T) {
	bus := signalingtest.NewBus()
	bus.FailSubscribe(errors.New("broker down"))
	h := newHook(t, bus)

	if err := h.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded against a failing transport")
	}
	if h.IsConnected() {
		t.Error("connected after failure")
	}
	if h.Error() == "" {
		t.Error("error not exposed")
	}

	bus.FailSubscribe(nil)
	if err := h.Connect(context.Background()); err != nil {
		t.Fatalf("Connect after recovery: %v", err)
	}
	if h.Error() != "" {
		t.Errorf("stale error %q", h.Error())
	}
}

func TestHookUpdatesSurviveReconnect(t *testing.T) {
	h := newHook(t, signalingtest.NewBus())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := h.Connect(ctx); err != nil {
			t.Fatal(err)
		}
		select {
		case <-h.Updates():
		case <-time.After(time.Second):
			t.Fatalf("round %d: no update", i)
		}
		if err := h.Disconnect(); err != nil {
			t.Fatal(err)
		}
	}
}

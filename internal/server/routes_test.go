package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/huddle/internal/relay"
	"github.com/BioHazard786/huddle/internal/signaling"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startRelay(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := relay.NewHub(0, quietLogger())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(hub, quietLogger()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func nextEvent(t *testing.T, ch *signaling.Channel, want signaling.EventType) signaling.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch.Events():
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func joinChannel(t *testing.T, wsURL, roomID, id string) *signaling.Channel {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := signaling.NewChannel(signaling.NewRelayTransport(wsURL, quietLogger()), roomID, id, quietLogger())
	if err := ch.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe(%s): %v", id, err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestHealth(t *testing.T) {
	srv, _ := startRelay(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestRelayEndToEnd(t *testing.T) {
	srv, wsURL := startRelay(t)

	alice := joinChannel(t, wsURL, "standup", "alice")
	bob := joinChannel(t, wsURL, "standup", "bob")

	if ev := nextEvent(t, alice, signaling.EventPresenceJoined); ev.ParticipantID != "bob" {
		t.Fatalf("alice saw %q join, want bob", ev.ParticipantID)
	}
	if ev := nextEvent(t, bob, signaling.EventPresenceJoined); ev.ParticipantID != "alice" {
		t.Fatalf("bob saw %q join, want alice", ev.ParticipantID)
	}

	ctx := context.Background()
	if err := alice.Publish(ctx, signaling.Message{To: "bob", Epoch: 7, Payload: signaling.Offer{SDP: "v=0"}}); err != nil {
		t.Fatalf("Publish offer: %v", err)
	}
	ev := nextEvent(t, bob, signaling.EventMessage)
	offer, ok := ev.Message.Payload.(signaling.Offer)
	if !ok || offer.SDP != "v=0" || ev.Message.From != "alice" || ev.Message.Epoch != 7 {
		t.Fatalf("bob got %+v, want offer from alice at epoch 7", ev.Message)
	}

	if err := bob.Publish(ctx, signaling.Message{Payload: signaling.MuteState{Muted: true}}); err != nil {
		t.Fatalf("Publish mute-state: %v", err)
	}
	ev = nextEvent(t, alice, signaling.EventMessage)
	if ms, ok := ev.Message.Payload.(signaling.MuteState); !ok || !ms.Muted {
		t.Fatalf("alice got %+v, want mute-state muted", ev.Message)
	}

	resp, err := http.Get(srv.URL + "/rooms/standup")
	if err != nil {
		t.Fatalf("GET /rooms/standup: %v", err)
	}
	var info relay.RoomInfo
	json.NewDecoder(resp.Body).Decode(&info)
	resp.Body.Close()
	if len(info.Members) != 2 {
		t.Errorf("members = %v, want alice and bob", info.Members)
	}

	bob.Close()
	if ev := nextEvent(t, alice, signaling.EventPresenceLeft); ev.ParticipantID != "bob" {
		t.Errorf("alice saw %q leave, want bob", ev.ParticipantID)
	}
}

func TestUnknownRoom(t *testing.T) {
	srv, _ := startRelay(t)

	resp, err := http.Get(srv.URL + "/rooms/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRoomFullRejectsSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := relay.NewHub(1, quietLogger())
	go hub.Run(ctx)
	srv := httptest.NewServer(NewRouter(hub, quietLogger()))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	joinChannel(t, wsURL, "tiny", "first")

	ch := signaling.NewChannel(signaling.NewRelayTransport(wsURL, quietLogger()), "tiny", "second", quietLogger())
	defer ch.Close()
	subCtx, subCancel := context.WithTimeout(ctx, 5*time.Second)
	defer subCancel()

	err := ch.Subscribe(subCtx)
	if err == nil {
		t.Fatal("Subscribe into a full room succeeded")
	}
	if !strings.Contains(err.Error(), "Room is full") {
		t.Errorf("err = %v, want Room is full", err)
	}
}

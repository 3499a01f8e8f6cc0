package signaling_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/huddle/internal/relay"
	"github.com/BioHazard786/huddle/internal/signaling"
)

// hangUpRelay confirms every join and then drops the connection.
func hangUpRelay(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var join relay.Message
		if err := conn.ReadJSON(&join); err != nil {
			return
		}
		conn.WriteJSON(relay.Message{Type: relay.TypeJoinSuccess, RoomID: join.RoomID})
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestPublishAfterRelayConnectionLost(t *testing.T) {
	transport := signaling.NewRelayTransport(hangUpRelay(t), quiet)
	ch := signaling.NewChannel(transport, "standup", "alice", quiet)
	if err := ch.Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	t.Cleanup(func() { ch.Close() })

	expectEvent(t, ch, signaling.EventChannelLost)

	// More publishes than the outgoing queue holds.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 100; i++ {
		err := ch.Publish(ctx, signaling.Message{Payload: signaling.MuteState{Muted: i%2 == 0}})
		if !errors.Is(err, signaling.ErrChannelUnavailable) {
			t.Fatalf("publish #%d after loss = %v, want ErrChannelUnavailable", i+1, err)
		}
	}
}

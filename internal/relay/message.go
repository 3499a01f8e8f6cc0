package relay

import (
	"encoding/json"
	"time"
)

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) websocket frames.
type Message struct {
	Type          string          `json:"type"`
	RoomID        string          `json:"room_id,omitempty"`
	ParticipantID string          `json:"participant_id,omitempty"`
	From          string          `json:"from,omitempty"`
	To            string          `json:"to,omitempty"`
	Members       []string        `json:"members,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`

	// client is the client that sent the message.
	// It's used internally by the Hub and not sent over JSON.
	client *Client `json:"-"`
}

// Frame types.
const (
	TypeJoinRoom = "join_room"
	TypeSignal   = "signal"

	TypeJoinSuccess = "join_success"
	TypePeerJoined  = "peer_joined"
	TypePeerLeft    = "peer_left"
	TypeError       = "error"
)

// ErrorPayload represents error messages from server.
type ErrorPayload struct {
	Error string `json:"error"`
}

// ErrorMessage builds an error frame.
func ErrorMessage(text string) *Message {
	payload, _ := json.Marshal(ErrorPayload{Error: text})
	return &Message{Type: TypeError, Payload: payload}
}

// RoomInfo describes one live room.
type RoomInfo struct {
	ID      string    `json:"id"`
	Members []string  `json:"members"`
	Created time.Time `json:"created"`
}

package room

import "github.com/BioHazard786/huddle/internal/peer"

// State is the room-level connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateFailed
)

var stateNames = [...]string{"idle", "connecting", "connected", "disconnecting", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// ParticipantInfo describes one remote participant.
type ParticipantInfo struct {
	ID          string
	Role        peer.Role
	HasLink     bool
	LinkState   peer.State
	RemoteMuted bool
	LocalMuted  bool
	Receiving   bool
	Failures    int
}

// Connected reports whether audio flows to this participant.
func (p ParticipantInfo) Connected() bool {
	return p.HasLink && p.LinkState == peer.StateConnected
}

// Snapshot is a point-in-time view of the room.
type Snapshot struct {
	RoomID        string
	ParticipantID string
	State         State
	Muted         bool
	Err           error

	// Participants is sorted by ID.
	Participants []ParticipantInfo

	// PeersSeen counts distinct participants met during the session.
	PeersSeen int
}

// Connected returns how many participants have an established link.
func (s Snapshot) Connected() int {
	n := 0
	for _, p := range s.Participants {
		if p.Connected() {
			n++
		}
	}
	return n
}

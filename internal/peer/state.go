package peer

import "errors"

var (
	// ErrNegotiationTimeout marks a link that did not connect in time.
	ErrNegotiationTimeout = errors.New("negotiation timed out")

	// ErrNegotiationFailed marks a link whose transport reported failure.
	ErrNegotiationFailed = errors.New("negotiation failed")

	// ErrProtocolViolation is returned for a message that is not valid in
	// the link's current state. The message is discarded; the link goes on.
	ErrProtocolViolation = errors.New("signaling protocol violation")
)

// Role is which side of the offer/answer exchange a link plays.
type Role int

const (
	RoleInitiator Role = iota + 1
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// RoleFor decides the local role towards remote. The lexicographically
// smaller id initiates, so both sides agree without talking.
func RoleFor(local, remote string) Role {
	if local < remote {
		return RoleInitiator
	}
	return RoleResponder
}

// State is the negotiation state of a link.
type State int

const (
	StateIdle State = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerSent
	StateAnswerReceived
	StateConnected
	StateFailed
	StateClosed
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateOfferSent:      "offer-sent",
	StateOfferReceived:  "offer-received",
	StateAnswerSent:     "answer-sent",
	StateAnswerReceived: "answer-received",
	StateConnected:      "connected",
	StateFailed:         "failed",
	StateClosed:         "closed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether the link can no longer change.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

// ConnectionState is the transport-level connection state.
type ConnectionState int

const (
	ConnectionNew ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionDisconnected
	ConnectionFailed
	ConnectionClosed
)

func (c ConnectionState) String() string {
	switch c {
	case ConnectionNew:
		return "new"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionFailed:
		return "failed"
	case ConnectionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

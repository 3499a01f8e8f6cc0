package signaling

import (
	"fmt"

	pion "github.com/pion/webrtc/v4"
)

// Kind names a signaling message variant.
type Kind string

// Message kinds.
const (
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "ice-candidate"
	KindMuteState Kind = "mute-state"
)

// Payload is the closed set of signaling message bodies: Offer, Answer,
// Candidate and MuteState.
type Payload interface {
	Kind() Kind
	isPayload()
}

// Offer carries an SDP offer from the initiator of a link.
type Offer struct {
	SDP string
}

// Answer carries the responder's SDP answer.
type Answer struct {
	SDP string
}

// Candidate carries one trickled ICE candidate.
type Candidate struct {
	Init pion.ICECandidateInit
}

// MuteState announces the sender's microphone state. It is the only kind
// that may be sent room-wide.
type MuteState struct {
	Muted bool
}

func (Offer) Kind() Kind     { return KindOffer }
func (Answer) Kind() Kind    { return KindAnswer }
func (Candidate) Kind() Kind { return KindCandidate }
func (MuteState) Kind() Kind { return KindMuteState }

func (Offer) isPayload()     {}
func (Answer) isPayload()    {}
func (Candidate) isPayload() {}
func (MuteState) isPayload() {}

// Message is one signaling message. From, Session and Seq are stamped by the
// Channel on publish; callers fill To, Epoch and Payload.
type Message struct {
	From    string
	To      string
	Session string
	Seq     uint64

	// Epoch identifies the negotiation attempt an offer, answer or candidate
	// belongs to. It is chosen by the initiator of the attempt.
	Epoch uint64

	Payload Payload
}

// Kind returns the kind of the message payload.
func (m Message) Kind() Kind {
	if m.Payload == nil {
		return ""
	}
	return m.Payload.Kind()
}

// IsNegotiation reports whether the message belongs to an offer/answer
// exchange and therefore must be addressed to a single peer.
func (m Message) IsNegotiation() bool {
	switch m.Payload.(type) {
	case Offer, Answer, Candidate:
		return true
	default:
		return false
	}
}

func (m Message) String() string {
	return fmt.Sprintf("%s %s->%s seq=%d epoch=%d", m.Kind(), m.From, m.To, m.Seq, m.Epoch)
}

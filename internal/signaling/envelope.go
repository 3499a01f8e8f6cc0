package signaling

import (
	"errors"
	"fmt"

	pion "github.com/pion/webrtc/v4"
)

// ErrUnknownKind is returned when decoding an envelope of a kind this build
// does not understand.
var ErrUnknownKind = errors.New("unknown signaling message kind")

// Envelope is the flat wire form of a Message.
type Envelope struct {
	Kind    Kind   `json:"kind" msgpack:"kind"`
	From    string `json:"from" msgpack:"from"`
	To      string `json:"to,omitempty" msgpack:"to,omitempty"`
	Session string `json:"session" msgpack:"session"`
	Seq     uint64 `json:"seq" msgpack:"seq"`
	Epoch   uint64 `json:"epoch,omitempty" msgpack:"epoch,omitempty"`

	SDP       string         `json:"sdp,omitempty" msgpack:"sdp,omitempty"`
	Candidate *WireCandidate `json:"candidate,omitempty" msgpack:"candidate,omitempty"`
	Muted     *bool          `json:"muted,omitempty" msgpack:"muted,omitempty"`
}

// WireCandidate mirrors pion.ICECandidateInit with tags for both codecs.
type WireCandidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" msgpack:"usernameFragment,omitempty"`
}

// NewEnvelope flattens m for the wire.
func NewEnvelope(m Message) *Envelope {
	e := &Envelope{
		Kind:    m.Kind(),
		From:    m.From,
		To:      m.To,
		Session: m.Session,
		Seq:     m.Seq,
		Epoch:   m.Epoch,
	}

	switch p := m.Payload.(type) {
	case Offer:
		e.SDP = p.SDP
	case Answer:
		e.SDP = p.SDP
	case Candidate:
		e.Candidate = &WireCandidate{
			Candidate:        p.Init.Candidate,
			SDPMid:           p.Init.SDPMid,
			SDPMLineIndex:    p.Init.SDPMLineIndex,
			UsernameFragment: p.Init.UsernameFragment,
		}
	case MuteState:
		muted := p.Muted
		e.Muted = &muted
	}
	return e
}

// Message rebuilds the typed message.
func (e *Envelope) Message() (Message, error) {
	m := Message{
		From:    e.From,
		To:      e.To,
		Session: e.Session,
		Seq:     e.Seq,
		Epoch:   e.Epoch,
	}

	switch e.Kind {
	case KindOffer:
		m.Payload = Offer{SDP: e.SDP}
	case KindAnswer:
		m.Payload = Answer{SDP: e.SDP}
	case KindCandidate:
		if e.Candidate == nil {
			return Message{}, fmt.Errorf("%s without candidate body", e.Kind)
		}
		m.Payload = Candidate{Init: pion.ICECandidateInit{
			Candidate:        e.Candidate.Candidate,
			SDPMid:           e.Candidate.SDPMid,
			SDPMLineIndex:    e.Candidate.SDPMLineIndex,
			UsernameFragment: e.Candidate.UsernameFragment,
		}}
	case KindMuteState:
		if e.Muted == nil {
			return Message{}, fmt.Errorf("%s without muted flag", e.Kind)
		}
		m.Payload = MuteState{Muted: *e.Muted}
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	return m, nil
}

// Package peertest provides a scriptable in-memory peer transport.
package peertest

import (
	"errors"
	"fmt"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/huddle/internal/peer"
)

// ErrClosed is returned by operations on a closed fake transport.
var ErrClosed = errors.New("fake transport closed")

// Transport records every call made on it.
type Transport struct {
	PeerID string
	Serial int

	mu         sync.Mutex
	cb         peer.Callbacks
	tracks     []pion.TrackLocal
	offers     int
	answers    int
	remote     []pion.SessionDescription
	candidates []pion.ICECandidateInit
	closed     bool

	// FailRemote makes SetRemoteDescription fail.
	FailRemote error
}

var _ peer.Transport = (*Transport)(nil)

func (t *Transport) AttachAudio(track pion.TrackLocal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.tracks = append(t.tracks, track)
	return nil
}

func (t *Transport) CreateOffer() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return "", ErrClosed
	}
	t.offers++
	return fmt.Sprintf("offer/%s/%d/%d", t.PeerID, t.Serial, t.offers), nil
}

func (t *Transport) CreateAnswer() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return "", ErrClosed
	}
	t.answers++
	return fmt.Sprintf("answer/%s/%d/%d", t.PeerID, t.Serial, t.answers), nil
}

func (t *Transport) SetRemoteDescription(desc pion.SessionDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.FailRemote != nil {
		return t.FailRemote
	}
	t.remote = append(t.remote, desc)
	return nil
}

func (t *Transport) AddICECandidate(c pion.ICECandidateInit) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if len(t.remote) == 0 {
		return errors.New("candidate before remote description")
	}
	t.candidates = append(t.candidates, c)
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Tracks returns the attached local tracks.
func (t *Transport) Tracks() []pion.TrackLocal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]pion.TrackLocal(nil), t.tracks...)
}

// Offers returns how many offers were created.
func (t *Transport) Offers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offers
}

// Answers returns how many answers were created.
func (t *Transport) Answers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.answers
}

// Remote returns the remote descriptions applied so far.
func (t *Transport) Remote() []pion.SessionDescription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]pion.SessionDescription(nil), t.remote...)
}

// Candidates returns the applied remote candidates in order.
func (t *Transport) Candidates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.candidates))
	for i, c := range t.candidates {
		out[i] = c.Candidate
	}
	return out
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// SetState reports a connection state change to the link owner.
func (t *Transport) SetState(s peer.ConnectionState) {
	if cb := t.callbacks().OnConnectionState; cb != nil {
		cb(s)
	}
}

// Gather reports a locally gathered candidate.
func (t *Transport) Gather(candidate string) {
	if cb := t.callbacks().OnCandidate; cb != nil {
		cb(pion.ICECandidateInit{Candidate: candidate})
	}
}

// RemoteTrack reports an incoming remote track.
func (t *Transport) RemoteTrack(kind string) {
	if cb := t.callbacks().OnTrack; cb != nil {
		cb(kind)
	}
}

func (t *Transport) callbacks() peer.Callbacks {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cb
}

// Factory creates fake transports and keeps them per peer.
type Factory struct {
	mu      sync.Mutex
	created map[string][]*Transport
	failNew error

	// OnCreate, if set, is called with every new transport.
	OnCreate func(*Transport)
}

// NewFactory returns an empty Factory.
func NewFactory() *Factory {
	return &Factory{created: make(map[string][]*Transport)}
}

// FailNew makes the next creations fail with err (nil clears).
func (f *Factory) FailNew(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNew = err
}

// New implements peer.TransportFactory.
func (f *Factory) New(peerID string, cb peer.Callbacks) (peer.Transport, error) {
	f.mu.Lock()
	if f.failNew != nil {
		err := f.failNew
		f.mu.Unlock()
		return nil, err
	}
	t := &Transport{PeerID: peerID, Serial: len(f.created[peerID]) + 1, cb: cb}
	f.created[peerID] = append(f.created[peerID], t)
	onCreate := f.OnCreate
	f.mu.Unlock()

	if onCreate != nil {
		onCreate(t)
	}
	return t, nil
}

// For returns every transport created for peerID, oldest first.
func (f *Factory) For(peerID string) []*Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Transport(nil), f.created[peerID]...)
}

// Last returns the newest transport for peerID, or nil.
func (f *Factory) Last(peerID string) *Transport {
	all := f.For(peerID)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

// Count returns how many transports were created for peerID.
func (f *Factory) Count(peerID string) int {
	return len(f.For(peerID))
}

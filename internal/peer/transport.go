package peer

import (
	pion "github.com/pion/webrtc/v4"
)

// Callbacks are invoked by a Transport from its own goroutines.
type Callbacks struct {
	// OnCandidate is called for every locally gathered ICE candidate.
	OnCandidate func(pion.ICECandidateInit)

	// OnConnectionState is called on every transport state change.
	OnConnectionState func(ConnectionState)

	// OnTrack is called when the remote side starts sending media.
	OnTrack func(kind string)
}

// Transport is one direct media connection.
type Transport interface {
	AttachAudio(track pion.TrackLocal) error

	// CreateOffer and CreateAnswer also set the result as the local
	// description and return its SDP.
	CreateOffer() (string, error)
	CreateAnswer() (string, error)

	SetRemoteDescription(desc pion.SessionDescription) error
	AddICECandidate(candidate pion.ICECandidateInit) error
	Close() error
}

// TransportFactory creates the transport for a link to peerID.
type TransportFactory func(peerID string, cb Callbacks) (Transport, error)

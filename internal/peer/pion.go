package peer

import (
	"fmt"
	"log/slog"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/huddle/internal/utils"
)

// ICEConfig lists the servers used to find a path to the remote peer.
type ICEConfig struct {
	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string

	// ForceRelay restricts candidates to TURN relays. It is also switched
	// on automatically behind VPNs and CGNAT when TURN is configured.
	ForceRelay bool
}

func (c ICEConfig) configuration() pion.Configuration {
	var iceServers []pion.ICEServer
	if len(c.STUNServers) > 0 {
		iceServers = append(iceServers, pion.ICEServer{URLs: c.STUNServers})
	}

	if len(c.TURNServers) > 0 {
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       c.TURNServers,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}

	policy := pion.ICETransportPolicyAll
	if len(c.TURNServers) > 0 && (c.ForceRelay || utils.ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

// NewPionFactory returns a TransportFactory backed by pion PeerConnections.
func NewPionFactory(cfg ICEConfig, log *slog.Logger) TransportFactory {
	if log == nil {
		log = slog.Default()
	}
	configuration := cfg.configuration()

	return func(peerID string, cb Callbacks) (Transport, error) {
		pc, err := pion.NewPeerConnection(configuration)
		if err != nil {
			return nil, fmt.Errorf("create peer connection: %w", err)
		}

		t := &pionTransport{pc: pc, log: log.With("peer", peerID)}

		pc.OnICECandidate(func(c *pion.ICECandidate) {
			if c == nil || cb.OnCandidate == nil {
				return
			}
			cb.OnCandidate(c.ToJSON())
		})

		pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
			t.log.Debug("Peer connection state changed", "state", state.String())
			if cb.OnConnectionState != nil {
				cb.OnConnectionState(connectionState(state))
			}
		})

		pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
			t.log.Debug("Remote track started", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
			if cb.OnTrack != nil {
				cb.OnTrack(track.Kind().String())
			}
			// Drain so the receiver keeps running; playback is not ours.
			go func() {
				for {
					if _, _, err := track.ReadRTP(); err != nil {
						return
					}
				}
			}()
		})

		return t, nil
	}
}

func connectionState(s pion.PeerConnectionState) ConnectionState {
	switch s {
	case pion.PeerConnectionStateConnecting:
		return ConnectionConnecting
	case pion.PeerConnectionStateConnected:
		return ConnectionConnected
	case pion.PeerConnectionStateDisconnected:
		return ConnectionDisconnected
	case pion.PeerConnectionStateFailed:
		return ConnectionFailed
	case pion.PeerConnectionStateClosed:
		return ConnectionClosed
	default:
		return ConnectionNew
	}
}

type pionTransport struct {
	pc  *pion.PeerConnection
	log *slog.Logger
}

func (t *pionTransport) AttachAudio(track pion.TrackLocal) error {
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add track: %w", err)
	}

	// Read RTCP so interceptors (NACK, reports) keep working.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (t *pionTransport) CreateOffer() (string, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return t.pc.LocalDescription().SDP, nil
}

func (t *pionTransport) CreateAnswer() (string, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return t.pc.LocalDescription().SDP, nil
}

func (t *pionTransport) SetRemoteDescription(desc pion.SessionDescription) error {
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (t *pionTransport) AddICECandidate(c pion.ICECandidateInit) error {
	if err := t.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}

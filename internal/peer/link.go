package peer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/huddle/internal/signaling"
)

// Publisher sends signaling messages. *signaling.Channel implements it.
type Publisher interface {
	Publish(ctx context.Context, m signaling.Message) error
}

// Options configure a Link.
type Options struct {
	PeerID string
	Role   Role

	// Epoch identifies the negotiation attempt. Responders adopt the epoch
	// of the offer they answer; zero means not known yet.
	Epoch uint64

	Factory   TransportFactory
	Callbacks Callbacks

	// Audio is attached before any negotiation. Nil sends no media.
	Audio pion.TrackLocal

	Publisher Publisher
	Logger    *slog.Logger
}

// Link is the state machine of one direct media connection to one remote
// participant. It is not safe for concurrent use: a single owner drives it,
// transport callbacks included.
type Link struct {
	peerID    string
	role      Role
	epoch     uint64
	transport Transport
	publisher Publisher
	log       *slog.Logger

	state         State
	err           error
	remoteSet     bool
	mediaAttached bool
	pending       []pion.ICECandidateInit
	created       time.Time
}

// NewLink creates the transport and attaches local audio. The link starts
// idle.
func NewLink(opts Options) (*Link, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	transport, err := opts.Factory(opts.PeerID, opts.Callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
	}

	l := &Link{
		peerID:    opts.PeerID,
		role:      opts.Role,
		epoch:     opts.Epoch,
		transport: transport,
		publisher: opts.Publisher,
		log:       opts.Logger.With("peer", opts.PeerID, "role", opts.Role.String()),
		created:   time.Now(),
	}

	if opts.Audio != nil {
		if err := transport.AttachAudio(opts.Audio); err != nil {
			transport.Close()
			return nil, fmt.Errorf("%w: attach audio: %w", ErrNegotiationFailed, err)
		}
		l.mediaAttached = true
	}
	return l, nil
}

func (l *Link) Role() Role          { return l.role }
func (l *Link) Epoch() uint64       { return l.epoch }
func (l *Link) State() State        { return l.state }
func (l *Link) Err() error          { return l.err }
func (l *Link) MediaAttached() bool { return l.mediaAttached }
func (l *Link) Pending() int        { return len(l.pending) }
func (l *Link) Created() time.Time  { return l.created }

// Adopt sets the epoch of an idle responder created before the offer
// arrived. It reports false if the link is bound to another attempt.
func (l *Link) Adopt(epoch uint64) bool {
	if l.role != RoleResponder || l.state != StateIdle {
		return false
	}
	if l.epoch != 0 && l.epoch != epoch {
		return false
	}
	l.epoch = epoch
	return true
}

// Start begins negotiation. An initiator creates and publishes its offer; a
// responder waits for one.
func (l *Link) Start(ctx context.Context) error {
	if l.role != RoleInitiator {
		return nil
	}
	if l.state != StateIdle {
		return fmt.Errorf("%w: start in state %s", ErrProtocolViolation, l.state)
	}

	sdp, err := l.transport.CreateOffer()
	if err != nil {
		return l.Fail(fmt.Errorf("%w: %w", ErrNegotiationFailed, err))
	}

	l.state = StateOfferSent
	l.log.Debug("Sending offer", "epoch", l.epoch)
	if err := l.publish(ctx, signaling.Offer{SDP: sdp}); err != nil {
		l.log.Warn("Failed to publish offer", "error", err)
	}
	return nil
}

// HandleOffer answers a remote offer. Only an idle responder accepts one.
func (l *Link) HandleOffer(ctx context.Context, sdp string) error {
	if l.role != RoleResponder || l.state != StateIdle {
		return fmt.Errorf("%w: offer in state %s as %s", ErrProtocolViolation, l.state, l.role)
	}

	l.state = StateOfferReceived
	if err := l.setRemote(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: sdp}); err != nil {
		return l.Fail(err)
	}

	answer, err := l.transport.CreateAnswer()
	if err != nil {
		return l.Fail(fmt.Errorf("%w: %w", ErrNegotiationFailed, err))
	}

	l.state = StateAnswerSent
	l.log.Debug("Sending answer", "epoch", l.epoch)
	if err := l.publish(ctx, signaling.Answer{SDP: answer}); err != nil {
		l.log.Warn("Failed to publish answer", "error", err)
	}
	return nil
}

// HandleAnswer completes the initiator side. An answer in any state other
// than offer-sent is a protocol violation and is discarded.
func (l *Link) HandleAnswer(sdp string) error {
	if l.state != StateOfferSent {
		return fmt.Errorf("%w: answer in state %s", ErrProtocolViolation, l.state)
	}

	if err := l.setRemote(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: sdp}); err != nil {
		return l.Fail(err)
	}
	l.state = StateAnswerReceived
	return nil
}

// HandleCandidate applies a remote candidate, or buffers it until the
// remote description is set.
func (l *Link) HandleCandidate(c pion.ICECandidateInit) error {
	if l.state.Terminal() {
		return nil
	}
	if !l.remoteSet {
		l.pending = append(l.pending, c)
		return nil
	}
	return l.transport.AddICECandidate(c)
}

// SendCandidate publishes a locally gathered candidate.
func (l *Link) SendCandidate(ctx context.Context, c pion.ICECandidateInit) error {
	if l.state.Terminal() {
		return nil
	}
	return l.publish(ctx, signaling.Candidate{Init: c})
}

// HandleConnectionState folds a transport state change into the link and
// returns the resulting state.
func (l *Link) HandleConnectionState(s ConnectionState) State {
	if l.state.Terminal() {
		return l.state
	}

	switch s {
	case ConnectionConnected:
		if l.state != StateConnected {
			l.log.Debug("Peer connected", "epoch", l.epoch, "after", time.Since(l.created).Round(time.Millisecond))
		}
		l.state = StateConnected
	case ConnectionFailed:
		l.Fail(ErrNegotiationFailed)
	case ConnectionClosed:
		l.Fail(fmt.Errorf("%w: transport closed", ErrNegotiationFailed))
	}
	return l.state
}

// Expired reports whether the link has been negotiating for longer than
// timeout.
func (l *Link) Expired(now time.Time, timeout time.Duration) bool {
	if l.state == StateConnected || l.state.Terminal() {
		return false
	}
	return now.Sub(l.created) >= timeout
}

// Fail moves the link to failed and releases the transport. It returns err
// for convenience.
func (l *Link) Fail(err error) error {
	if l.state.Terminal() {
		return err
	}
	l.state = StateFailed
	l.err = err
	l.pending = nil
	l.log.Debug("Peer link failed", "epoch", l.epoch, "error", err)
	if cerr := l.transport.Close(); cerr != nil {
		l.log.Debug("Closing failed transport", "error", cerr)
	}
	return err
}

// Close tears the link down. Safe to call more than once.
func (l *Link) Close() error {
	if l.state == StateClosed {
		return nil
	}
	wasFailed := l.state == StateFailed
	l.state = StateClosed
	l.pending = nil
	if wasFailed {
		return nil
	}
	return l.transport.Close()
}

func (l *Link) setRemote(desc pion.SessionDescription) error {
	if err := l.transport.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
	}
	l.remoteSet = true

	// Apply what arrived early, in arrival order.
	pending := l.pending
	l.pending = nil
	for _, c := range pending {
		if err := l.transport.AddICECandidate(c); err != nil {
			l.log.Debug("Dropping buffered candidate", "candidate", c.Candidate, "error", err)
		}
	}
	return nil
}

func (l *Link) publish(ctx context.Context, p signaling.Payload) error {
	return l.publisher.Publish(ctx, signaling.Message{
		To:      l.peerID,
		Epoch:   l.epoch,
		Payload: p,
	})
}

// Package room coordinates the peer links of one participant in one audio
// room. A single goroutine owns every participant and link; presence,
// signaling, transport callbacks and mute requests are all serialized
// through it.
package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/huddle/internal/media"
	"github.com/BioHazard786/huddle/internal/peer"
	"github.com/BioHazard786/huddle/internal/signaling"
)

const (
	DefaultNegotiationTimeout = 12 * time.Second
	DefaultMaxRetries         = 2
)

// Config describes one room session. RoomID and ParticipantID are fixed for
// the lifetime of an Orchestrator.
type Config struct {
	RoomID        string
	ParticipantID string

	Transport        signaling.Transport
	Capture          media.Capture
	NewPeerTransport peer.TransportFactory

	// NegotiationTimeout bounds how long a link may negotiate before it is
	// failed. Zero means DefaultNegotiationTimeout.
	NegotiationTimeout time.Duration

	// MaxRetries is how many fresh links are tried after a failure before
	// the participant is evicted. Zero means DefaultMaxRetries; a negative
	// value disables retries.
	MaxRetries int

	Logger *slog.Logger
}

func (c Config) validate() error {
	var errs []error
	if c.RoomID == "" {
		errs = append(errs, errors.New("room id is required"))
	}
	if c.ParticipantID == "" {
		errs = append(errs, errors.New("participant id is required"))
	}
	if c.Transport == nil {
		errs = append(errs, errors.New("signaling transport is required"))
	}
	if c.Capture == nil {
		errs = append(errs, errors.New("audio capture is required"))
	}
	if c.NewPeerTransport == nil {
		errs = append(errs, errors.New("peer transport factory is required"))
	}
	return errors.Join(errs...)
}

// Orchestrator is the room connection of the local participant.
type Orchestrator struct {
	cfg Config
	log *slog.Logger

	updates chan struct{}

	mu         sync.Mutex
	state      State
	muted      bool
	err        error
	cancel     context.CancelFunc
	connecting chan struct{}
	sess       *session
	view       []ParticipantInfo
	seen       int
}

// New validates cfg and returns an idle Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, NewError("configure room", err)
	}
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = DefaultNegotiationTimeout
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		log:     cfg.Logger.With("room", cfg.RoomID, "participant", cfg.ParticipantID),
		updates: make(chan struct{}, 1),
		muted:   true,
	}, nil
}

// Connect acquires local audio and subscribes to the room. It returns once
// the subscription is established; links to individual participants are
// negotiated afterwards. The local microphone starts muted.
//
// ctx bounds the connection attempt only.
func (o *Orchestrator) Connect(ctx context.Context) error {
	o.mu.Lock()
	switch o.state {
	case StateConnecting:
		o.mu.Unlock()
		return NewError("connect", ErrAlreadyConnecting)
	case StateConnected:
		o.mu.Unlock()
		return NewError("connect", ErrAlreadyConnected)
	case StateDisconnecting:
		o.mu.Unlock()
		return NewError("connect", ErrDisconnecting)
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.state = StateConnecting
	o.muted = true
	o.err = nil
	o.cancel = cancel
	o.connecting = done
	o.view = nil
	o.seen = 0
	o.mu.Unlock()
	o.notify()

	defer close(done)
	defer cancel()

	o.log.Debug("Connecting to room")
	audio, ch, err := o.open(attemptCtx)

	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.notify()

	o.cancel = nil
	o.connecting = nil

	if o.state != StateConnecting {
		if err == nil {
			ch.Close()
			audio.Release()
		}
		return NewError("connect", ErrConnectAborted)
	}
	if err != nil {
		o.state = StateFailed
		o.err = WrapError("connect", err, o.cfg.RoomID)
		o.log.Debug("Connect failed", "error", err)
		return o.err
	}

	o.sess = newSession(o, audio, ch)
	o.state = StateConnected
	go o.sess.run()
	o.log.Info("Connected to room")
	return nil
}

// open acquires the capture device and the signaling subscription, releasing
// whatever was acquired if either fails.
func (o *Orchestrator) open(ctx context.Context) (*media.LocalAudio, *signaling.Channel, error) {
	audio, err := o.cfg.Capture.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}

	ch := signaling.NewChannel(o.cfg.Transport, o.cfg.RoomID, o.cfg.ParticipantID, o.cfg.Logger)
	if err := ch.Subscribe(ctx); err != nil {
		ch.Close()
		audio.Release()
		return nil, nil, err
	}
	return audio, ch, nil
}

// Disconnect leaves the room: every link is closed, the subscription is
// released and local audio is given back. In-flight negotiations, and an
// in-flight Connect, are abandoned. Disconnect on an idle room does nothing.
func (o *Orchestrator) Disconnect() error {
	o.mu.Lock()
	var err error
	switch o.state {
	case StateIdle, StateDisconnecting:
		o.mu.Unlock()
		return nil

	case StateFailed:
		o.state = StateIdle
		o.mu.Unlock()
		o.notify()
		return nil

	case StateConnecting:
		o.state = StateDisconnecting
		cancel, done := o.cancel, o.connecting
		o.mu.Unlock()
		o.notify()

		cancel()
		<-done

	case StateConnected:
		o.state = StateDisconnecting
		sess := o.sess
		o.sess = nil
		o.mu.Unlock()
		o.notify()

		if cerr := sess.close(); cerr != nil {
			err = NewError("disconnect", cerr)
		}
	}

	o.mu.Lock()
	o.state = StateIdle
	o.view = nil
	o.mu.Unlock()
	o.notify()
	o.log.Info("Left room")
	return err
}

// SetMuted changes the local microphone state and returns it. Every link
// applies it at once; remote participants are told on a best-effort basis.
// Outside a connected room it changes nothing and returns the current flag.
func (o *Orchestrator) SetMuted(muted bool) bool {
	o.mu.Lock()
	sess := o.sess
	if sess == nil || o.state != StateConnected {
		current := o.muted
		o.mu.Unlock()
		return current
	}
	o.muted = muted
	o.mu.Unlock()
	o.notify()

	sess.setMuted(muted)
	return muted
}

// Muted reports the local microphone state.
func (o *Orchestrator) Muted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

// State returns the room-level connection state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Err returns the last room-level error: a failed connect, or a lost
// signaling channel.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Snapshot returns the current view of the room.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		RoomID:        o.cfg.RoomID,
		ParticipantID: o.cfg.ParticipantID,
		State:         o.state,
		Muted:         o.muted,
		Err:           o.err,
		Participants:  append([]ParticipantInfo(nil), o.view...),
		PeersSeen:     o.seen,
	}
}

// Updates signals that the snapshot changed. Notifications coalesce; read
// Snapshot after each one.
func (o *Orchestrator) Updates() <-chan struct{} {
	return o.updates
}

func (o *Orchestrator) notify() {
	select {
	case o.updates <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) connected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateConnected
}

func (o *Orchestrator) setView(view []ParticipantInfo, seen int) {
	o.mu.Lock()
	o.view = view
	o.seen = seen
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) setErr(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
	o.notify()
}

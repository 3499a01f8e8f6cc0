package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/huddle/internal/media"
	"github.com/BioHazard786/huddle/internal/peer"
	"github.com/BioHazard786/huddle/internal/signaling"
)

const linkEventBuffer = 256

type linkEventType int

const (
	linkCandidate linkEventType = iota + 1
	linkState
	linkTrack
	linkTimeout
)

// linkEvent is a transport callback or timer, tagged with the link it
// belongs to so events of replaced links are ignored.
type linkEvent struct {
	typ       linkEventType
	peerID    string
	linkID    uint64
	candidate pion.ICECandidateInit
	state     peer.ConnectionState
}

type muteRequest struct {
	muted bool
	done  chan struct{}
}

type participant struct {
	id          string
	link        *peer.Link
	linkID      uint64
	attachment  *media.Attachment
	timer       *time.Timer
	remoteMuted bool
	receiving   bool

	// failures counts consecutive failed links.
	failures int
}

func (p *participant) live() bool {
	return p.link != nil && !p.link.State().Terminal()
}

// session is one connected lifetime of an Orchestrator. Everything below
// run is owned by the loop goroutine.
type session struct {
	o     *Orchestrator
	cfg   Config
	log   *slog.Logger
	audio *media.LocalAudio
	ch    *signaling.Channel

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	events chan linkEvent
	mute   chan muteRequest

	participants map[string]*participant
	seen         map[string]struct{}
	muted        bool
	nextLink     uint64
	epoch        uint64
}

func newSession(o *Orchestrator, audio *media.LocalAudio, ch *signaling.Channel) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		o:            o,
		cfg:          o.cfg,
		log:          o.log,
		audio:        audio,
		ch:           ch,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		events:       make(chan linkEvent, linkEventBuffer),
		mute:         make(chan muteRequest),
		participants: make(map[string]*participant),
		seen:         make(map[string]struct{}),
		muted:        true,
		// Epochs of a later session must sort after this one's.
		epoch: uint64(time.Now().UnixNano()),
	}
}

func (s *session) run() {
	defer close(s.done)
	defer s.teardown()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.ch.Events():
			s.handleChannel(ev)
		case ev := <-s.events:
			s.handleLink(ev)
		case req := <-s.mute:
			s.applyMute(req)
		}
		s.publishView()
	}
}

// close stops the loop, which closes every link, then releases the
// subscription and local audio.
func (s *session) close() error {
	s.cancel()
	<-s.done

	var errs []error
	if err := s.ch.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close signaling: %w", err))
	}
	if err := s.audio.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release audio: %w", err))
	}
	return errors.Join(errs...)
}

func (s *session) teardown() {
	for id, p := range s.participants {
		s.dropLink(p)
		delete(s.participants, id)
	}
}

func (s *session) setMuted(muted bool) {
	req := muteRequest{muted: muted, done: make(chan struct{})}
	select {
	case s.mute <- req:
	case <-s.done:
		return
	}
	select {
	case <-req.done:
	case <-s.done:
	}
}

func (s *session) post(ev linkEvent) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *session) handleChannel(ev signaling.Event) {
	switch ev.Type {
	case signaling.EventPresenceJoined:
		s.onJoined(ev.ParticipantID)
	case signaling.EventPresenceLeft:
		s.onLeft(ev.ParticipantID)
	case signaling.EventMessage:
		s.onMessage(ev.Message)
	case signaling.EventChannelLost:
		s.log.Warn("Signaling channel lost", "error", ev.Err)
		s.o.setErr(WrapError("signaling", signaling.ErrChannelUnavailable, errText(ev.Err)))
	}
}

// participant returns the entry for id, creating it on first sight.
func (s *session) participant(id string) *participant {
	if p, ok := s.participants[id]; ok {
		return p
	}
	p := &participant{id: id}
	s.participants[id] = p
	s.seen[id] = struct{}{}
	s.log.Debug("Participant discovered", "peer", id)
	return p
}

func (s *session) onJoined(id string) {
	p := s.participant(id)
	if p.live() {
		s.log.Debug("Ignoring duplicate presence", "peer", id)
		return
	}
	s.startLink(p, peer.RoleFor(s.cfg.ParticipantID, id), 0)
}

func (s *session) onLeft(id string) {
	p, ok := s.participants[id]
	if !ok {
		return
	}
	s.log.Debug("Participant left", "peer", id)
	s.evict(p)
}

func (s *session) onMessage(m signaling.Message) {
	p := s.participant(m.From)

	switch pl := m.Payload.(type) {
	case signaling.Offer:
		s.onOffer(p, m.Epoch, pl.SDP)
	case signaling.Answer:
		s.onAnswer(p, m.Epoch, pl.SDP)
	case signaling.Candidate:
		s.onCandidate(p, m.Epoch, pl.Init)
	case signaling.MuteState:
		p.remoteMuted = pl.Muted
	}
}

func (s *session) onOffer(p *participant, epoch uint64, sdp string) {
	if peer.RoleFor(s.cfg.ParticipantID, p.id) == peer.RoleInitiator {
		s.log.Debug("Discarding offer from a responder", "peer", p.id, "error", peer.ErrProtocolViolation)
		return
	}

	adopted := false
	if l := p.link; l != nil && !l.State().Terminal() {
		adopted = l.Adopt(epoch)
		if !adopted && epoch <= l.Epoch() {
			s.log.Debug("Dropping stale offer", "peer", p.id, "epoch", epoch, "current", l.Epoch())
			return
		}
	}
	if !adopted {
		if p.link != nil {
			s.log.Debug("Replacing link for a new offer", "peer", p.id, "epoch", epoch)
		}
		s.startLink(p, peer.RoleResponder, epoch)
		if p.link == nil {
			return
		}
	}

	if err := p.link.HandleOffer(s.ctx, sdp); err != nil {
		s.linkError(p, err)
	}
}

func (s *session) onAnswer(p *participant, epoch uint64, sdp string) {
	l := p.link
	if l == nil {
		s.log.Debug("Discarding answer without a link", "peer", p.id, "error", peer.ErrProtocolViolation)
		return
	}
	if epoch != l.Epoch() {
		s.log.Debug("Dropping stale answer", "peer", p.id, "epoch", epoch, "current", l.Epoch())
		return
	}
	if err := l.HandleAnswer(sdp); err != nil {
		s.linkError(p, err)
	}
}

func (s *session) onCandidate(p *participant, epoch uint64, c pion.ICECandidateInit) {
	responder := peer.RoleFor(s.cfg.ParticipantID, p.id) == peer.RoleResponder

	switch l := p.link; {
	case l == nil:
		if !responder {
			s.log.Debug("Dropping candidate without a link", "peer", p.id, "epoch", epoch)
			return
		}
		s.startLink(p, peer.RoleResponder, epoch)
	case epoch == l.Epoch():
	case responder && l.Adopt(epoch):
	case responder && epoch > l.Epoch():
		s.startLink(p, peer.RoleResponder, epoch)
	default:
		s.log.Debug("Dropping stale candidate", "peer", p.id, "epoch", epoch, "current", l.Epoch())
		return
	}
	if p.link == nil {
		return
	}

	if err := p.link.HandleCandidate(c); err != nil {
		s.log.Debug("Failed to add remote candidate", "peer", p.id, "error", err)
	}
}

// startLink replaces whatever link p has with a fresh one. Initiators take a
// new epoch; responders take the epoch of the offer that created them, or
// zero if they are waiting for one.
func (s *session) startLink(p *participant, role peer.Role, epoch uint64) {
	s.dropLink(p)

	if role == peer.RoleInitiator {
		s.epoch++
		epoch = s.epoch
	}
	s.nextLink++
	linkID := s.nextLink

	att, err := s.audio.Attach(p.id, s.muted)
	if err != nil {
		s.linkFailed(p, fmt.Errorf("attach local audio: %w", err))
		return
	}

	link, err := peer.NewLink(peer.Options{
		PeerID:    p.id,
		Role:      role,
		Epoch:     epoch,
		Factory:   s.cfg.NewPeerTransport,
		Callbacks: s.callbacks(p.id, linkID),
		Audio:     att.Track(),
		Publisher: s.ch,
		Logger:    s.log,
	})
	if err != nil {
		att.Detach()
		s.linkFailed(p, err)
		return
	}

	p.link = link
	p.linkID = linkID
	p.attachment = att
	p.timer = time.AfterFunc(s.cfg.NegotiationTimeout, func() {
		s.post(linkEvent{typ: linkTimeout, peerID: p.id, linkID: linkID})
	})

	s.log.Debug("Starting peer link", "peer", p.id, "role", role.String(), "epoch", link.Epoch())
	if err := link.Start(s.ctx); err != nil {
		s.linkError(p, err)
	}
}

func (s *session) callbacks(peerID string, linkID uint64) peer.Callbacks {
	return peer.Callbacks{
		OnCandidate: func(c pion.ICECandidateInit) {
			s.post(linkEvent{typ: linkCandidate, peerID: peerID, linkID: linkID, candidate: c})
		},
		OnConnectionState: func(cs peer.ConnectionState) {
			s.post(linkEvent{typ: linkState, peerID: peerID, linkID: linkID, state: cs})
		},
		OnTrack: func(string) {
			s.post(linkEvent{typ: linkTrack, peerID: peerID, linkID: linkID})
		},
	}
}

func (s *session) handleLink(ev linkEvent) {
	p, ok := s.participants[ev.peerID]
	if !ok || p.link == nil || p.linkID != ev.linkID {
		return
	}

	switch ev.typ {
	case linkCandidate:
		if err := p.link.SendCandidate(s.ctx, ev.candidate); err != nil {
			s.log.Debug("Failed to send candidate", "peer", p.id, "error", err)
		}

	case linkState:
		switch p.link.HandleConnectionState(ev.state) {
		case peer.StateConnected:
			if p.timer != nil {
				p.timer.Stop()
				p.timer = nil
			}
			if p.failures > 0 {
				s.log.Info("Peer link recovered", "peer", p.id, "failures", p.failures)
			}
			p.failures = 0
		case peer.StateFailed:
			s.linkFailed(p, p.link.Err())
		}

	case linkTrack:
		p.receiving = true

	case linkTimeout:
		if p.link.Expired(time.Now(), s.cfg.NegotiationTimeout) {
			p.link.Fail(peer.ErrNegotiationTimeout)
			s.linkFailed(p, peer.ErrNegotiationTimeout)
		}
	}
}

// linkError sorts an error returned by a link operation. Protocol
// violations discard the message and leave the link alone.
func (s *session) linkError(p *participant, err error) {
	if errors.Is(err, peer.ErrProtocolViolation) {
		s.log.Debug("Discarding out-of-state message", "peer", p.id, "error", err)
		return
	}
	if p.link != nil && p.link.State() == peer.StateFailed {
		s.linkFailed(p, err)
		return
	}
	s.log.Warn("Peer link error", "peer", p.id, "error", err)
}

// linkFailed retires the current link and either retries with a fresh one or
// evicts the participant once retries are exhausted.
func (s *session) linkFailed(p *participant, err error) {
	s.dropLink(p)
	p.failures++

	if p.failures > s.cfg.MaxRetries {
		s.log.Warn("Evicting unreachable participant", "peer", p.id, "failures", p.failures, "error", err)
		s.evict(p)
		return
	}
	if s.ctx.Err() != nil || !s.o.connected() {
		return
	}

	s.log.Info("Retrying peer link", "peer", p.id, "attempt", p.failures+1, "error", err)
	s.startLink(p, peer.RoleFor(s.cfg.ParticipantID, p.id), 0)
}

func (s *session) dropLink(p *participant) {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.link != nil {
		if err := p.link.Close(); err != nil {
			s.log.Debug("Closing peer link", "peer", p.id, "error", err)
		}
		p.link = nil
	}
	if p.attachment != nil {
		p.attachment.Detach()
		p.attachment = nil
	}
	p.receiving = false
}

func (s *session) evict(p *participant) {
	s.dropLink(p)
	delete(s.participants, p.id)
}

func (s *session) applyMute(req muteRequest) {
	s.muted = req.muted
	for _, p := range s.participants {
		if p.attachment != nil {
			p.attachment.SetMuted(req.muted)
		}
	}
	close(req.done)

	err := s.ch.Publish(s.ctx, signaling.Message{Payload: signaling.MuteState{Muted: req.muted}})
	if err != nil {
		s.log.Debug("Mute state not delivered", "muted", req.muted, "error", err)
	}
}

func (s *session) publishView() {
	view := make([]ParticipantInfo, 0, len(s.participants))
	for _, p := range s.participants {
		info := ParticipantInfo{
			ID:          p.id,
			Role:        peer.RoleFor(s.cfg.ParticipantID, p.id),
			RemoteMuted: p.remoteMuted,
			LocalMuted:  s.muted,
			Receiving:   p.receiving,
			Failures:    p.failures,
		}
		if p.link != nil {
			info.HasLink = true
			info.Role = p.link.Role()
			info.LinkState = p.link.State()
		}
		if p.attachment != nil {
			info.LocalMuted = p.attachment.Muted()
		}
		view = append(view, info)
	}
	sort.Slice(view, func(i, j int) bool { return view[i].ID < view[j].ID })
	s.o.setView(view, len(s.seen))
}

func errText(err error) string {
	if err == nil {
		return "connection closed"
	}
	return err.Error()
}

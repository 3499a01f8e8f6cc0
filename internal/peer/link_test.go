package peer_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/huddle/internal/peer"
	"github.com/BioHazard786/huddle/internal/peer/peertest"
	"github.com/BioHazard786/huddle/internal/signaling"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type recorder struct {
	mu   sync.Mutex
	sent []signaling.Message
	err  error
}

func (r *recorder) Publish(_ context.Context, m signaling.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, m)
	return nil
}

func (r *recorder) kinds() []signaling.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []signaling.Kind
	for _, m := range r.sent {
		kinds = append(kinds, m.Kind())
	}
	return kinds
}

func newLink(t *testing.T, role peer.Role, audio pion.TrackLocal) (*peer.Link, *peertest.Factory, *recorder) {
	t.Helper()
	factory := peertest.NewFactory()
	pub := &recorder{}
	link, err := peer.NewLink(peer.Options{
		PeerID:    "bob",
		Role:      role,
		Epoch:     5,
		Factory:   factory.New,
		Audio:     audio,
		Publisher: pub,
		Logger:    quiet,
	})
	if err != nil {
		t.Fatalf("NewLink: %v", err)
	}
	return link, factory, pub
}

func TestRoleFor(t *testing.T) {
	if peer.RoleFor("alice", "bob") != peer.RoleInitiator {
		t.Error("alice should initiate towards bob")
	}
	if peer.RoleFor("bob", "alice") != peer.RoleResponder {
		t.Error("bob should respond to alice")
	}
}

func TestInitiatorFlow(t *testing.T) {
	link, factory, pub := newLink(t, peer.RoleInitiator, nil)
	ctx := context.Background()

	if err := link.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if link.State() != peer.StateOfferSent {
		t.Fatalf("state = %s, want offer-sent", link.State())
	}
	if len(pub.sent) != 1 || pub.sent[0].To != "bob" || pub.sent[0].Epoch != 5 || pub.sent[0].Kind() != signaling.KindOffer {
		t.Fatalf("published %+v, want one offer to bob at epoch 5", pub.sent)
	}

	if err := link.Start(ctx); !errors.Is(err, peer.ErrProtocolViolation) {
		t.Errorf("second Start = %v, want ErrProtocolViolation", err)
	}
	if n := factory.Last("bob").Offers(); n != 1 {
		t.Errorf("offers created = %d, want 1", n)
	}

	if err := link.HandleAnswer("answer-sdp"); err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}
	if link.State() != peer.StateAnswerReceived {
		t.Fatalf("state = %s, want answer-received", link.State())
	}

	if got := link.HandleConnectionState(peer.ConnectionConnected); got != peer.StateConnected {
		t.Errorf("state = %s, want connected", got)
	}
}

func TestResponderFlow(t *testing.T) {
	link, factory, pub := newLink(t, peer.RoleResponder, nil)
	ctx := context.Background()

	if err := link.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(pub.sent) != 0 {
		t.Fatalf("responder published %v on start", pub.kinds())
	}

	if err := link.HandleOffer(ctx, "offer-sdp"); err != nil {
		t.Fatalf("HandleOffer: %v", err)
	}
	if link.State() != peer.StateAnswerSent {
		t.Fatalf("state = %s, want answer-sent", link.State())
	}
	remote := factory.Last("bob").Remote()
	if len(remote) != 1 || remote[0].Type != pion.SDPTypeOffer || remote[0].SDP != "offer-sdp" {
		t.Errorf("remote = %+v", remote)
	}
	if !reflect.DeepEqual(pub.kinds(), []signaling.Kind{signaling.KindAnswer}) {
		t.Errorf("published %v, want [answer]", pub.kinds())
	}

	if err := link.HandleOffer(ctx, "again"); !errors.Is(err, peer.ErrProtocolViolation) {
		t.Errorf("second offer = %v, want ErrProtocolViolation", err)
	}
}

func TestAnswerOutOfState(t *testing.T) {
	link, _, _ := newLink(t, peer.RoleInitiator, nil)

	if err := link.HandleAnswer("early"); !errors.Is(err, peer.ErrProtocolViolation) {
		t.Fatalf("HandleAnswer in idle = %v, want ErrProtocolViolation", err)
	}
	if link.State() != peer.StateIdle {
		t.Errorf("state = %s, want idle (link continues)", link.State())
	}

	responder, _, _ := newLink(t, peer.RoleResponder, nil)
	if err := responder.HandleAnswer("x"); !errors.Is(err, peer.ErrProtocolViolation) {
		t.Errorf("responder HandleAnswer = %v, want ErrProtocolViolation", err)
	}
}

func TestCandidatesAppliedInArrivalOrder(t *testing.T) {
	const n = 5
	want := make([]string, n)
	for i := range want {
		want[i] = fmt.Sprintf("candidate:%d", i)
	}

	// Put the remote description at every possible position in the stream.
	for at := 0; at <= n; at++ {
		for _, role := range []peer.Role{peer.RoleInitiator, peer.RoleResponder} {
			t.Run(fmt.Sprintf("%s/remote-at-%d", role, at), func(t *testing.T) {
				link, factory, _ := newLink(t, role, nil)
				ctx := context.Background()
				if err := link.Start(ctx); err != nil {
					t.Fatalf("Start: %v", err)
				}

				describe := func() {
					var err error
					if role == peer.RoleInitiator {
						err = link.HandleAnswer("answer")
					} else {
						err = link.HandleOffer(ctx, "offer")
					}
					if err != nil {
						t.Fatalf("remote description: %v", err)
					}
				}

				for i := 0; i < n; i++ {
					if i == at {
						describe()
					}
					if err := link.HandleCandidate(pion.ICECandidateInit{Candidate: want[i]}); err != nil {
						t.Fatalf("HandleCandidate(%d): %v", i, err)
					}
				}
				if at == n {
					if link.Pending() != n {
						t.Errorf("pending = %d, want %d", link.Pending(), n)
					}
					describe()
				}

				if got := factory.Last("bob").Candidates(); !reflect.DeepEqual(got, want) {
					t.Errorf("applied %v, want %v", got, want)
				}
				if link.Pending() != 0 {
					t.Errorf("pending = %d after remote description", link.Pending())
				}
			})
		}
	}
}

func TestMediaAttachedOnce(t *testing.T) {
	track, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}, "audio", "test")
	if err != nil {
		t.Fatal(err)
	}

	link, factory, _ := newLink(t, peer.RoleInitiator, track)
	if !link.MediaAttached() {
		t.Fatal("media not attached at creation")
	}

	link.Start(context.Background())
	link.HandleAnswer("answer")
	link.HandleConnectionState(peer.ConnectionConnected)

	if n := len(factory.Last("bob").Tracks()); n != 1 {
		t.Errorf("tracks attached = %d, want 1", n)
	}
}

func TestFailureIsTerminal(t *testing.T) {
	link, factory, _ := newLink(t, peer.RoleInitiator, nil)
	link.Start(context.Background())

	if got := link.HandleConnectionState(peer.ConnectionFailed); got != peer.StateFailed {
		t.Fatalf("state = %s, want failed", got)
	}
	if !errors.Is(link.Err(), peer.ErrNegotiationFailed) {
		t.Errorf("Err = %v, want ErrNegotiationFailed", link.Err())
	}
	if !factory.Last("bob").Closed() {
		t.Error("failed link left its transport open")
	}

	if got := link.HandleConnectionState(peer.ConnectionConnected); got != peer.StateFailed {
		t.Errorf("failed link resurrected to %s", got)
	}
	if err := link.HandleAnswer("late"); !errors.Is(err, peer.ErrProtocolViolation) {
		t.Errorf("answer after failure = %v, want ErrProtocolViolation", err)
	}

	if err := link.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if link.State() != peer.StateClosed {
		t.Errorf("state = %s, want closed", link.State())
	}
	if err := link.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestRemoteDescriptionFailure(t *testing.T) {
	factory := peertest.NewFactory()
	factory.OnCreate = func(tr *peertest.Transport) { tr.FailRemote = errors.New("bad sdp") }

	link, err := peer.NewLink(peer.Options{PeerID: "bob", Role: peer.RoleResponder, Factory: factory.New, Publisher: &recorder{}, Logger: quiet})
	if err != nil {
		t.Fatalf("NewLink: %v", err)
	}
	if err := link.HandleOffer(context.Background(), "offer"); !errors.Is(err, peer.ErrNegotiationFailed) {
		t.Fatalf("HandleOffer = %v, want ErrNegotiationFailed", err)
	}
	if link.State() != peer.StateFailed {
		t.Errorf("state = %s, want failed", link.State())
	}
}

func TestPublishFailureKeepsNegotiating(t *testing.T) {
	link, _, pub := newLink(t, peer.RoleInitiator, nil)
	pub.err = signaling.ErrChannelUnavailable

	if err := link.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if link.State() != peer.StateOfferSent {
		t.Errorf("state = %s, want offer-sent", link.State())
	}
}

func TestExpired(t *testing.T) {
	link, _, _ := newLink(t, peer.RoleInitiator, nil)
	now := link.Created()

	if link.Expired(now.Add(time.Second), 2*time.Second) {
		t.Error("expired too early")
	}
	if !link.Expired(now.Add(3*time.Second), 2*time.Second) {
		t.Error("not expired after the window")
	}

	link.Start(context.Background())
	link.HandleAnswer("a")
	link.HandleConnectionState(peer.ConnectionConnected)
	if link.Expired(now.Add(time.Hour), 2*time.Second) {
		t.Error("connected link reported expired")
	}
}

func TestAdopt(t *testing.T) {
	factory := peertest.NewFactory()
	link, err := peer.NewLink(peer.Options{PeerID: "alice", Role: peer.RoleResponder, Factory: factory.New, Publisher: &recorder{}, Logger: quiet})
	if err != nil {
		t.Fatal(err)
	}

	if !link.Adopt(9) || link.Epoch() != 9 {
		t.Fatalf("Adopt(9) on fresh responder failed, epoch %d", link.Epoch())
	}
	if link.Adopt(10) {
		t.Error("Adopt rebound a link to another epoch")
	}
	if !link.Adopt(9) {
		t.Error("Adopt of the same epoch should succeed")
	}

	initiator, _, _ := newLink(t, peer.RoleInitiator, nil)
	if initiator.Adopt(5) {
		t.Error("initiator adopted an epoch")
	}
}

func TestFactoryFailure(t *testing.T) {
	factory := peertest.NewFactory()
	factory.FailNew(errors.New("no sockets"))

	_, err := peer.NewLink(peer.Options{PeerID: "bob", Role: peer.RoleInitiator, Factory: factory.New, Publisher: &recorder{}, Logger: quiet})
	if !errors.Is(err, peer.ErrNegotiationFailed) {
		t.Fatalf("NewLink = %v, want ErrNegotiationFailed", err)
	}
}

func TestStateNames(t *testing.T) {
	names := map[peer.State]string{
		peer.StateIdle:           "idle",
		peer.StateOfferSent:      "offer-sent",
		peer.StateOfferReceived:  "offer-received",
		peer.StateAnswerSent:     "answer-sent",
		peer.StateAnswerReceived: "answer-received",
		peer.StateConnected:      "connected",
		peer.StateFailed:         "failed",
		peer.StateClosed:         "closed",
	}
	for s, want := range names {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}

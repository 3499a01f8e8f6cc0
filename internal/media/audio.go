package media

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/atomic"
)

// ErrReleased is returned when attaching to released audio.
var ErrReleased = errors.New("local audio released")

// LocalAudio is acquired capture shared by every link of a room session.
// A single pump reads the source and fans samples out to attachments.
type LocalAudio struct {
	source   Source
	lock     *flock.Flock
	streamID string
	log      *slog.Logger

	mu          sync.Mutex
	attachments map[*Attachment]struct{}
	released    bool

	stop    chan struct{}
	stopped chan struct{}
	samples *atomic.Uint64
}

func newLocalAudio(source Source, lock *flock.Flock, streamID string, log *slog.Logger) *LocalAudio {
	a := &LocalAudio{
		source:      source,
		lock:        lock,
		streamID:    streamID,
		log:         log,
		attachments: make(map[*Attachment]struct{}),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
		samples:     atomic.NewUint64(0),
	}
	go a.pump()
	return a
}

func (a *LocalAudio) pump() {
	defer close(a.stopped)

	ticker := time.NewTicker(SampleDuration)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
		}

		sample, err := a.source.NextSample()
		if err != nil {
			a.log.Warn("Audio source failed, sending silence", "error", err)
			a.source.Close()
			a.source = Silence{}
			sample = silenceSample()
		}

		a.mu.Lock()
		targets := make([]*Attachment, 0, len(a.attachments))
		for att := range a.attachments {
			targets = append(targets, att)
		}
		a.mu.Unlock()

		for _, att := range targets {
			if err := att.write(sample); err != nil {
				a.log.Debug("Dropping audio sample", "peer", att.PeerID, "error", err)
			}
		}
		a.samples.Inc()
	}
}

// Attach creates the track for one peer link. Attachments start unmuted
// unless muted is set.
func (a *LocalAudio) Attach(peerID string, muted bool) (*Attachment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.released {
		return nil, ErrReleased
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusClockRate, Channels: 2},
		"audio",
		a.streamID,
	)
	if err != nil {
		return nil, err
	}

	att := &Attachment{
		PeerID: peerID,
		track:  track,
		muted:  atomic.NewBool(muted),
		owner:  a,
	}
	a.attachments[att] = struct{}{}
	return att, nil
}

// Attachments returns the number of live attachments.
func (a *LocalAudio) Attachments() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.attachments)
}

// SamplesSent returns how many pump ticks have been fanned out.
func (a *LocalAudio) SamplesSent() uint64 {
	return a.samples.Load()
}

// Release stops the pump, detaches everything and frees the capture lock.
// Safe to call more than once.
func (a *LocalAudio) Release() error {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return nil
	}
	a.released = true
	a.attachments = make(map[*Attachment]struct{})
	a.mu.Unlock()

	close(a.stop)
	<-a.stopped

	err := a.source.Close()
	if a.lock != nil {
		err = errors.Join(err, a.lock.Unlock())
	}
	a.log.Debug("Local audio released")
	return err
}

func (a *LocalAudio) detach(att *Attachment) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.attachments, att)
}

// Attachment is one peer link's view of the local audio: its own track and
// its own mute switch.
type Attachment struct {
	PeerID string

	track *webrtc.TrackLocalStaticSample
	muted *atomic.Bool
	owner *LocalAudio
}

// Track is the track to add to the peer connection.
func (att *Attachment) Track() *webrtc.TrackLocalStaticSample {
	return att.track
}

// SetMuted switches the attachment between live audio and silence.
func (att *Attachment) SetMuted(muted bool) {
	att.muted.Store(muted)
}

// Muted reports the current switch position.
func (att *Attachment) Muted() bool {
	return att.muted.Load()
}

// Detach stops feeding the track.
func (att *Attachment) Detach() {
	att.owner.detach(att)
}

func (att *Attachment) write(sample pionmedia.Sample) error {
	if att.muted.Load() {
		sample = pionmedia.Sample{Data: opusSilence, Duration: sample.Duration}
	}
	return att.track.WriteSample(sample)
}

package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrMediaAcquisition is returned when local audio cannot be captured:
// the device is busy, or the source cannot be opened.
var ErrMediaAcquisition = errors.New("media acquisition failed")

// Capture hands out local audio. Acquire is called once per room session.
type Capture interface {
	Acquire(ctx context.Context) (*LocalAudio, error)
}

// Options configure a Device.
type Options struct {
	// File is an ogg/opus file to play. Empty means silence.
	File string

	// LockPath is the exclusive capture lock. Empty means no locking.
	LockPath string

	// StreamID labels the outgoing tracks, usually the local participant id.
	StreamID string

	Logger *slog.Logger
}

// Device is the process's audio capture.
type Device struct {
	opts Options
}

// NewDevice creates a Device.
func NewDevice(opts Options) *Device {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StreamID == "" {
		opts.StreamID = "huddle"
	}
	return &Device{opts: opts}
}

// Acquire implements Capture. It takes the capture lock, opens the source
// and starts the sample pump.
func (d *Device) Acquire(ctx context.Context) (*LocalAudio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var lock *flock.Flock
	if d.opts.LockPath != "" {
		if err := os.MkdirAll(filepath.Dir(d.opts.LockPath), 0o755); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMediaAcquisition, err)
		}
		lock = flock.New(d.opts.LockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("%w: lock %s: %w", ErrMediaAcquisition, d.opts.LockPath, err)
		}
		if !locked {
			return nil, fmt.Errorf("%w: capture device busy (another huddle is in a room)", ErrMediaAcquisition)
		}
	}

	var source Source = Silence{}
	if d.opts.File != "" {
		ogg, err := OpenOggFile(d.opts.File)
		if err != nil {
			if lock != nil {
				lock.Unlock()
			}
			return nil, fmt.Errorf("%w: %w", ErrMediaAcquisition, err)
		}
		source = ogg
	}

	d.opts.Logger.Debug("Local audio acquired", "file", d.opts.File, "lock", d.opts.LockPath)
	return newLocalAudio(source, lock, d.opts.StreamID, d.opts.Logger), nil
}

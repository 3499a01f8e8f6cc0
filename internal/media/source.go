package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// SampleDuration is the length of one opus frame sent on the wire.
const SampleDuration = 20 * time.Millisecond

const opusClockRate = 48000

// opusSilence is a single opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Source produces opus samples, one per call.
type Source interface {
	NextSample() (pionmedia.Sample, error)
	Close() error
}

// Silence is a Source of opus silence frames.
type Silence struct{}

// NextSample implements Source.
func (Silence) NextSample() (pionmedia.Sample, error) {
	return silenceSample(), nil
}

// Close implements Source.
func (Silence) Close() error { return nil }

func silenceSample() pionmedia.Sample {
	return pionmedia.Sample{Data: opusSilence, Duration: SampleDuration}
}

// OggFile plays an ogg/opus file in a loop.
type OggFile struct {
	path        string
	file        *os.File
	reader      *oggreader.OggReader
	lastGranule uint64
}

// OpenOggFile opens path and checks its opus header.
func OpenOggFile(path string) (*OggFile, error) {
	f := &OggFile{path: path}
	if err := f.rewind(); err != nil {
		if f.file != nil {
			f.file.Close()
		}
		return nil, err
	}
	return f, nil
}

func (f *OggFile) rewind() error {
	if f.file == nil {
		file, err := os.Open(f.path)
		if err != nil {
			return err
		}
		f.file = file
	} else if _, err := f.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	reader, header, err := oggreader.NewWith(f.file)
	if err != nil {
		return fmt.Errorf("read ogg header: %w", err)
	}
	if header.Channels == 0 {
		return errors.New("ogg stream has no audio channels")
	}
	f.reader = reader
	f.lastGranule = 0
	return nil
}

// NextSample implements Source. The file restarts when it ends.
func (f *OggFile) NextSample() (pionmedia.Sample, error) {
	for attempt := 0; attempt < 2; attempt++ {
		page, header, err := f.reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if err := f.rewind(); err != nil {
				return pionmedia.Sample{}, err
			}
			continue
		}
		if err != nil {
			return pionmedia.Sample{}, err
		}

		duration := SampleDuration
		if header.GranulePosition > f.lastGranule {
			samples := header.GranulePosition - f.lastGranule
			duration = time.Duration(samples) * time.Second / opusClockRate
		}
		f.lastGranule = header.GranulePosition

		return pionmedia.Sample{Data: page, Duration: duration}, nil
	}
	return pionmedia.Sample{}, fmt.Errorf("%s: no audio pages", f.path)
}

// Close implements Source.
func (f *OggFile) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}

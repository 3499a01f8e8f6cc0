// Package history keeps a local log of room sessions in
// ~/.huddle/history.jsonl, one JSON object per line.
package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/gofrs/flock"

	"github.com/BioHazard786/huddle/internal/config"
)

// MaxEntries is how many sessions are kept; older ones are pruned on write.
const MaxEntries = 500

const (
	StatusLeft   = "left"
	StatusFailed = "failed"
)

// Entry is one room session.
type Entry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	RoomID        string    `json:"room_id"`
	ParticipantID string    `json:"participant_id"`
	Transport     string    `json:"transport"`
	PeersSeen     int       `json:"peers_seen"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	Duration      float64   `json:"duration_seconds"`
}

var (
	mu           sync.Mutex
	pathOverride string
)

// SetPathOverride points the log at path. Empty restores the default.
func SetPathOverride(path string) {
	mu.Lock()
	defer mu.Unlock()
	pathOverride = path
}

// Path returns the history file location.
func Path() (string, error) {
	mu.Lock()
	override := pathOverride
	mu.Unlock()
	if override != "" {
		return override, nil
	}

	dir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.jsonl"), nil
}

// Write appends e, filling in ID and Timestamp when unset, and prunes the
// log to MaxEntries. Writers in other processes are excluded by a file lock.
func Write(e Entry) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	if e.ID == "" {
		e.ID = petname.Generate(2, "-")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return prune(path)
}

// prune keeps the newest MaxEntries lines. Callers hold the file lock.
func prune(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := bytes.Split(bytes.TrimRight(raw, "\n"), []byte("\n"))
	if len(lines) <= MaxEntries {
		return nil
	}

	kept := bytes.Join(lines[len(lines)-MaxEntries:], []byte("\n"))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(kept, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load returns every entry, newest first. Malformed lines are skipped.
func Load() ([]Entry, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, scanner.Err()
}

// Clear deletes the history file.
func Clear() error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

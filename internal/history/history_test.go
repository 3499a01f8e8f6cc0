package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func useTempLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.jsonl")
	SetPathOverride(path)
	t.Cleanup(func() { SetPathOverride("") })
	return path
}

func TestHistoryLifecycle(t *testing.T) {
	path := useTempLog(t)

	if entries, err := Load(); err != nil || len(entries) != 0 {
		t.Fatalf("Load on missing file = %v, %v", entries, err)
	}

	if err := Write(Entry{RoomID: "standup", Status: StatusLeft, PeersSeen: 3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	entries, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].ID == "" || entries[0].Timestamp.IsZero() {
		t.Errorf("defaults not filled: %+v", entries[0])
	}

	if err := Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("history file still exists after Clear")
	}
	if err := Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

func TestHistoryNewestFirstAndPruned(t *testing.T) {
	useTempLog(t)

	base := time.Now()
	total := MaxEntries + 20
	for i := 0; i < total; i++ {
		e := Entry{ID: fmt.Sprintf("s-%d", i), Timestamp: base.Add(time.Duration(i) * time.Second), Status: StatusLeft}
		if err := Write(e); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	entries, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != MaxEntries {
		t.Fatalf("got %d entries, want %d", len(entries), MaxEntries)
	}
	if want := fmt.Sprintf("s-%d", total-1); entries[0].ID != want {
		t.Errorf("newest = %s, want %s", entries[0].ID, want)
	}
	if want := fmt.Sprintf("s-%d", total-MaxEntries); entries[len(entries)-1].ID != want {
		t.Errorf("oldest = %s, want %s", entries[len(entries)-1].ID, want)
	}
}

func TestHistorySkipsMalformedLines(t *testing.T) {
	path := useTempLog(t)
	if err := os.WriteFile(path, []byte("not json\n{\"id\":\"ok\",\"status\":\"left\"}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "ok" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestConcurrentWrites(t *testing.T) {
	useTempLog(t)

	const workers, each = 8, 20
	errCh := make(chan error, workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			for i := 0; i < each; i++ {
				if err := Write(Entry{ID: fmt.Sprintf("w%d-%d", w, i), Status: StatusLeft}); err != nil {
					errCh <- err
					return
				}
			}
			errCh <- nil
		}(w)
	}
	for w := 0; w < workers; w++ {
		if err := <-errCh; err != nil {
			t.Fatal(err)
		}
	}

	entries, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != workers*each {
		t.Errorf("got %d entries, want %d", len(entries), workers*each)
	}
}

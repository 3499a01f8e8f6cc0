package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/huddle/internal/history"
	"github.com/BioHazard786/huddle/internal/peer"
	"github.com/BioHazard786/huddle/internal/relay"
	"github.com/BioHazard786/huddle/internal/room"
)

type fakeRoom struct {
	snap    room.Snapshot
	updates chan struct{}
	toggles int
}

func (f *fakeRoom) Snapshot() room.Snapshot  { return f.snap }
func (f *fakeRoom) Updates() <-chan struct{} { return f.updates }
func (f *fakeRoom) ToggleMute() bool {
	f.toggles++
	f.snap.Muted = !f.snap.Muted
	return f.snap.Muted
}

func TestRoomViewShowsParticipants(t *testing.T) {
	r := &fakeRoom{
		updates: make(chan struct{}, 1),
		snap: room.Snapshot{
			RoomID:        "standup",
			ParticipantID: "alice",
			State:         room.StateConnected,
			Muted:         true,
			Participants: []room.ParticipantInfo{
				{ID: "bob", HasLink: true, LinkState: peer.StateConnected, Receiving: true},
				{ID: "carol", RemoteMuted: true},
			},
		},
	}
	m := NewRoomModel(r)
	view := m.View()

	for _, want := range []string{"standup", "alice", "bob", "carol", "LIVE", "muted", "no link"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestRoomViewKeys(t *testing.T) {
	r := &fakeRoom{updates: make(chan struct{}, 1), snap: room.Snapshot{RoomID: "standup", Muted: true}}
	m := NewRoomModel(r)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	if cmd == nil {
		t.Fatal("m produced no command")
	}
	if _, ok := cmd().(snapshotMsg); !ok {
		t.Error("toggle did not refresh the snapshot")
	}
	if r.toggles != 1 {
		t.Errorf("toggles = %d, want 1", r.toggles)
	}

	m.Update(snapshotMsg{})
	if m.snap.Muted {
		t.Error("view still shows muted after toggling")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil || !m.quitting {
		t.Fatal("q did not quit")
	}
	if m.View() != "" {
		t.Error("view not cleared on quit")
	}
}

func TestLinkLabel(t *testing.T) {
	tests := []struct {
		p    room.ParticipantInfo
		want string
	}{
		{room.ParticipantInfo{}, "no link"},
		{room.ParticipantInfo{HasLink: true, Role: peer.RoleResponder, LinkState: peer.StateIdle}, "waiting for offer"},
		{room.ParticipantInfo{HasLink: true, Role: peer.RoleInitiator, LinkState: peer.StateOfferSent, Failures: 1}, "offer-sent (retry 1)"},
		{room.ParticipantInfo{HasLink: true, LinkState: peer.StateConnected}, "connected"},
	}
	for _, tt := range tests {
		if got := LinkLabel(tt.p); got != tt.want {
			t.Errorf("LinkLabel(%+v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestTables(t *testing.T) {
	now := time.Now()
	rooms := RoomsView([]relay.RoomInfo{{ID: "standup", Members: []string{"alice", "bob"}, Created: now.Add(-time.Minute)}}, now)
	if !strings.Contains(rooms, "standup") || !strings.Contains(rooms, "alice, bob") {
		t.Errorf("rooms table:\n%s", rooms)
	}

	hist := HistoryView([]history.Entry{{RoomID: "retro", ParticipantID: "alice", Status: history.StatusFailed, Timestamp: now}})
	if !strings.Contains(hist, "retro") || !strings.Contains(hist, "FAILED") {
		t.Errorf("history table:\n%s", hist)
	}

	if !strings.Contains(HistoryView(nil), "No room history") {
		t.Error("empty history not reported")
	}
}

package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/huddle/internal/peer"
	"github.com/BioHazard786/huddle/internal/room"
	"github.com/BioHazard786/huddle/internal/utils"
)

// Room is what the room view observes and drives.
type Room interface {
	Snapshot() room.Snapshot
	Updates() <-chan struct{}
	ToggleMute() bool
}

type (
	snapshotMsg struct{}
	clockMsg    time.Time
)

// RoomModel is the live room view.
type RoomModel struct {
	room     Room
	snap     room.Snapshot
	spinner  spinner.Model
	started  time.Time
	now      time.Time
	quitting bool
}

func NewRoomModel(r Room) *RoomModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	now := time.Now()
	return &RoomModel{
		room:    r,
		snap:    r.Snapshot(),
		spinner: s,
		started: now,
		now:     now,
	}
}

// RunRoom shows the room view until the user leaves.
func RunRoom(r Room) error {
	// Inline mode keeps the join output above the view.
	_, err := tea.NewProgram(NewRoomModel(r)).Run()
	return err
}

func (m *RoomModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen(), clock())
}

func (m *RoomModel) listen() tea.Cmd {
	updates := m.room.Updates()
	return func() tea.Msg {
		<-updates
		return snapshotMsg{}
	}
}

func clock() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return clockMsg(t) })
}

func (m *RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "m", " ":
			r := m.room
			return m, func() tea.Msg {
				r.ToggleMute()
				return snapshotMsg{}
			}
		}

	case snapshotMsg:
		m.snap = m.room.Snapshot()
		return m, m.listen()

	case clockMsg:
		m.now = time.Time(msg)
		if !m.quitting {
			return m, clock()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *RoomModel) View() string {
	if m.quitting {
		return ""
	}
	snap := m.snap

	var b strings.Builder
	b.WriteString("\n")

	status := MutedStyle.Render(snap.State.String())
	if snap.State == room.StateConnected {
		status = LiveStyle.Render("LIVE")
	}
	mic := MicMutedStyle.Render(IconMuted + " muted")
	if !snap.Muted {
		mic = MicOpenStyle.Render(IconMic + " on air")
	}
	elapsed := m.now.Sub(m.started).Round(time.Second)
	fmt.Fprintf(&b, "%s %s  %s %s  %s\n\n",
		IconRoom, BoldStyle.Foreground(Primary).Render(snap.RoomID),
		status, mic, MutedStyle.Render(utils.FormatDuration(elapsed)))

	fmt.Fprintf(&b, "  %s %s %s\n", IconPeer, BoldStyle.Render(snap.ParticipantID), MutedStyle.Render("(you)"))
	if len(snap.Participants) == 0 {
		fmt.Fprintf(&b, "  %s %s\n", m.spinner.View(), MutedStyle.Render("Waiting for others to join..."))
	}
	for _, p := range snap.Participants {
		b.WriteString("  " + m.participantLine(p) + "\n")
	}

	if snap.Err != nil {
		b.WriteString("\n" + WarningStyle.Render(IconWarning+" "+snap.Err.Error()) + "\n")
	}

	b.WriteString(FooterStyle.Render("m mute/unmute • q leave"))
	return b.String()
}

func (m *RoomModel) participantLine(p room.ParticipantInfo) string {
	icon := m.spinner.View()
	switch {
	case p.Connected():
		icon = SuccessStyle.Render("●")
	case !p.HasLink:
		icon = MutedStyle.Render("○")
	}

	line := fmt.Sprintf("%s %s %s", icon, p.ID, MutedStyle.Render(LinkLabel(p)))
	if p.RemoteMuted {
		line += " " + IconMuted
	} else if p.Receiving {
		line += " " + IconSpeaker
	}
	return line
}

// LinkLabel describes a participant's link in a few words.
func LinkLabel(p room.ParticipantInfo) string {
	if !p.HasLink {
		return "no link"
	}
	label := p.LinkState.String()
	switch p.LinkState {
	case peer.StateConnected:
		label = "connected"
	case peer.StateIdle:
		if p.Role == peer.RoleResponder {
			label = "waiting for offer"
		}
	}
	if p.Failures > 0 {
		label += fmt.Sprintf(" (retry %d)", p.Failures)
	}
	return label
}

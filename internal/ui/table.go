package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/huddle/internal/history"
	"github.com/BioHazard786/huddle/internal/relay"
	"github.com/BioHazard786/huddle/internal/utils"
)

func newPrettyTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Color.Header = text.Colors{text.FgHiGreen, text.Bold}
	tw.Style().Format.Header = text.FormatUpper
	return tw
}

// RoomsView renders the relay's open rooms.
func RoomsView(rooms []relay.RoomInfo, now time.Time) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No open rooms")
	}

	tw := newPrettyTable()
	tw.AppendHeader(table.Row{"Room", "Members", "Who", "Open for"})
	for _, r := range rooms {
		tw.AppendRow(table.Row{
			r.ID,
			len(r.Members),
			utils.TruncateString(strings.Join(r.Members, ", "), 40),
			utils.FormatDuration(now.Sub(r.Created)),
		})
	}
	return tw.Render()
}

func RenderRooms(rooms []relay.RoomInfo) {
	fmt.Println(RoomsView(rooms, time.Now()))
}

// HistoryView renders past sessions, newest first.
func HistoryView(entries []history.Entry) string {
	if len(entries) == 0 {
		return MutedStyle.Render("No room history found.")
	}

	ok := text.Colors{text.FgGreen}
	failed := text.Colors{text.FgRed}

	tw := newPrettyTable()
	tw.AppendHeader(table.Row{"Date", "Room", "As", "Peers", "Time", "Status"})
	for _, e := range entries {
		status := ok.Sprint(strings.ToUpper(e.Status))
		if e.Status != history.StatusLeft {
			status = failed.Sprint(strings.ToUpper(e.Status))
		}
		tw.AppendRow(table.Row{
			e.Timestamp.Format("2006-01-02 15:04"),
			utils.TruncateString(e.RoomID, 24),
			utils.TruncateString(e.ParticipantID, 20),
			e.PeersSeen,
			utils.FormatDuration(time.Duration(e.Duration * float64(time.Second))),
			status,
		})
	}
	return tw.Render()
}

func RenderHistory(entries []history.Entry) {
	fmt.Println(HistoryView(entries))
}

type SessionSummary struct {
	Room      string
	As        string
	Duration  time.Duration
	PeersSeen int
	Status    string
}

// SessionSummaryView renders the table printed after leaving a room.
func SessionSummaryView(s SessionSummary) string {
	rows := [][]string{
		{"Room", s.Room},
		{"Joined as", s.As},
		{"Time in room", utils.FormatDuration(s.Duration)},
		{"Met", utils.Plural(s.PeersSeen, "participant")},
		{"Status", s.Status},
	}

	tbl := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Session", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func RenderSessionSummary(s SessionSummary) {
	fmt.Println(SessionSummaryView(s))
}

// JoinBanner is shown once the room is joined.
func JoinBanner(roomID, participantID, via string, copied bool) string {
	content := fmt.Sprintf("%s Joined room %s\n\n%s You are:  %s\n%s Via:      %s",
		IconSuccess, BoldStyle.Foreground(Primary).Render(roomID),
		IconPeer, BoldStyle.Render(participantID),
		IconRelay, MutedStyle.Render(via),
	)
	if copied {
		content += fmt.Sprintf("\n%s %s", IconCopy, MutedStyle.Render("Room name copied to clipboard"))
	}
	return SuccessBoxStyle.Render(content)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atotto/clipboard"
	petname "github.com/dustinkirkland/golang-petname"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/discovery"
	"github.com/BioHazard786/huddle/internal/history"
	"github.com/BioHazard786/huddle/internal/room"
	"github.com/BioHazard786/huddle/internal/roomview"
	"github.com/BioHazard786/huddle/internal/ui"
)

var (
	flagID         string
	flagServer     string
	flagTransport  string
	flagMQTTBroker string
	flagSTUN       string
	flagTURN       string
	flagTURNUser   string
	flagTURNPass   string
	flagRelay      bool
	flagAudio      string
	flagTimeout    time.Duration
	flagDiscover   bool
	flagCopy       bool
	flagHeadless   bool
)

var joinCmd = &cobra.Command{
	Use:     "join [room]",
	Aliases: []string{"j"},
	Short:   "Join an audio room",
	Long: `Join a named audio room and talk to everyone in it. Without a room name a
new one is made up; share it with the people you want to talk to.

Your microphone starts muted. Press m or space to toggle it and q to leave.

Examples:
  huddle join standup
  huddle join --transport mqtt --mqtt-broker tcp://broker.local:1883 standup
  huddle join --discover --copy`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := petname.Generate(3, "-")
		if len(args) == 1 {
			roomID = args[0]
		}
		return joinRoom(cmd.Context(), roomID)
	},
}

func joinRoom(ctx context.Context, roomID string) error {
	opts := config.Options{
		ServerURL:          flagServer,
		Transport:          flagTransport,
		MQTTBroker:         flagMQTTBroker,
		STUNServer:         flagSTUN,
		TURNServer:         flagTURN,
		TURNUser:           flagTURNUser,
		TURNPass:           flagTURNPass,
		ForceRelay:         flagRelay,
		NegotiationTimeout: flagTimeout,
		AudioFile:          flagAudio,
		ParticipantID:      flagID,
	}

	if flagDiscover {
		url, err := discoverRelay(ctx)
		if err != nil {
			return err
		}
		opts.ServerURL = url
		opts.Transport = config.TransportWebSocket
	}

	cfg, err := LoadConfig(opts)
	if err != nil {
		return err
	}

	roomCfg, err := NewRoomConfig(cfg, roomID, slog.Default())
	if err != nil {
		return err
	}
	hook := roomview.New(roomCfg)

	fmt.Println()
	spinner := ui.NewConnectionSpinner(fmt.Sprintf("Joining %s...", roomID))
	spinner.Start()

	started := time.Now()
	if err := hook.Connect(ctx); err != nil {
		spinner.Error("Could not join room")
		_ = hook.Disconnect()
		recordSession(cfg, roomID, started, hook.Snapshot().PeersSeen, err)
		return err
	}
	spinner.Stop()

	copied := false
	if flagCopy {
		copied = clipboard.WriteAll(roomID) == nil
	}
	fmt.Println(ui.JoinBanner(roomID, cfg.ParticipantID, SignalingVia(cfg), copied))
	fmt.Println()

	var runErr error
	if flagHeadless {
		runErr = watchRoom(ctx, hook)
	} else {
		runErr = ui.RunRoom(hook)
	}

	snap := hook.Snapshot()
	if err := hook.Disconnect(); err != nil && runErr == nil {
		runErr = err
	}

	recordSession(cfg, roomID, started, snap.PeersSeen, runErr)

	fmt.Println()
	status := history.StatusLeft
	if runErr != nil {
		status = history.StatusFailed
	}
	ui.RenderSessionSummary(ui.SessionSummary{
		Room:      roomID,
		As:        cfg.ParticipantID,
		Duration:  time.Since(started),
		PeersSeen: snap.PeersSeen,
		Status:    status,
	})
	return runErr
}

func discoverRelay(ctx context.Context) (string, error) {
	spinner := ui.NewWaitingSpinner("Looking for a relay on the local network...")
	spinner.Start()

	url, err := discovery.FindRelay(ctx, "", 3*time.Second)
	if err != nil {
		spinner.Error("No relay found")
		return "", err
	}
	spinner.Success("Found relay at " + url)
	return url, nil
}

// watchRoom logs room changes until ctx is cancelled.
func watchRoom(ctx context.Context, hook *roomview.Hook) error {
	last := map[string]bool{}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hook.Updates():
		}

		snap := hook.Snapshot()
		if snap.State == room.StateFailed {
			return snap.Err
		}

		current := make(map[string]bool, len(snap.Participants))
		for _, p := range snap.Participants {
			current[p.ID] = p.Connected()
			if was, ok := last[p.ID]; !ok || was != p.Connected() {
				ui.PrintInfof("%s: %s", p.ID, ui.LinkLabel(p))
			}
		}
		for id := range last {
			if _, ok := current[id]; !ok {
				ui.PrintInfof("%s left", id)
			}
		}
		last = current
	}
}

func recordSession(cfg *config.Config, roomID string, started time.Time, seen int, err error) {
	entry := history.Entry{
		RoomID:        roomID,
		ParticipantID: cfg.ParticipantID,
		Transport:     cfg.Transport,
		PeersSeen:     seen,
		Status:        history.StatusLeft,
		Duration:      time.Since(started).Seconds(),
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		entry.Status = history.StatusFailed
		entry.Error = err.Error()
	}
	if werr := history.Write(entry); werr != nil {
		slog.Warn("Failed to record session", "error", werr)
	}
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVar(&flagID, "id", "", "Participant id (default: random name)")
	joinCmd.Flags().StringVarP(&flagServer, "server", "s", "", "Relay websocket URL")
	joinCmd.Flags().StringVar(&flagTransport, "transport", "", "Signaling transport: ws or mqtt")
	joinCmd.Flags().StringVar(&flagMQTTBroker, "mqtt-broker", "", "MQTT broker URL")
	joinCmd.Flags().StringVar(&flagSTUN, "stun", "", "Custom STUN server")
	joinCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	joinCmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	joinCmd.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	joinCmd.Flags().StringVarP(&flagAudio, "audio", "a", "", "Ogg/Opus file to send instead of silence")
	joinCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "Negotiation timeout per participant")
	joinCmd.Flags().BoolVarP(&flagDiscover, "discover", "d", false, "Find a relay on the local network")
	joinCmd.Flags().BoolVarP(&flagCopy, "copy", "c", false, "Copy the room name to the clipboard")
	joinCmd.Flags().BoolVar(&flagHeadless, "headless", false, "Log room changes instead of showing the interactive view")
}

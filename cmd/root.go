package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/huddle/internal/ui"
	"github.com/BioHazard786/huddle/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "huddle",
	Short: "Live peer-to-peer audio rooms from the terminal",
	Long: `Huddle joins named audio rooms and talks to everyone else in them over
direct WebRTC connections. A small relay (huddle serve), or any MQTT broker,
carries the signaling; audio never passes through it.`,
	Version: version.Version,
}

// Execute runs the root command. Interrupts cancel the command context so
// rooms are left cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/huddle/internal/discovery"
	"github.com/BioHazard786/huddle/internal/logging"
	"github.com/BioHazard786/huddle/internal/relay"
	"github.com/BioHazard786/huddle/internal/server"
	"github.com/BioHazard786/huddle/internal/ui"
)

var (
	flagAddr       string
	flagMaxMembers int
	flagAdvertise  bool
	flagName       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a signaling relay",
	Long: `Run the websocket relay that carries room presence and signaling between
participants. Audio flows directly between participants and never reaches
the relay.

Examples:
  huddle serve
  huddle serve --addr :9000 --advertise`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	logging.Init(slog.LevelInfo)
	log := slog.Default()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	hub := relay.NewHub(flagMaxMembers, log)
	go hub.Run(hubCtx)

	e := server.NewRouter(hub, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting relay", "addr", flagAddr)
		if err := e.Start(flagAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if flagAdvertise {
		_, portStr, err := net.SplitHostPort(flagAddr)
		if err != nil {
			return err
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return err
		}
		shutdown, err := discovery.Advertise(flagName, port, "/ws")
		if err != nil {
			ui.PrintWarning("Could not advertise on the local network: " + err.Error())
		} else {
			defer shutdown()
			log.Info("Advertising relay over mDNS", "name", flagName, "port", port)
		}
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down relay")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&flagAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().IntVar(&flagMaxMembers, "max-members", 16, "Maximum participants per room")
	serveCmd.Flags().BoolVar(&flagAdvertise, "advertise", false, "Advertise the relay on the local network")
	serveCmd.Flags().StringVar(&flagName, "name", "huddle-relay", "mDNS instance name")
}

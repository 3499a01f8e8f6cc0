package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/server"
	"github.com/BioHazard786/huddle/internal/ui"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the rooms open on a relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := config.Options{ServerURL: flagServer, Transport: config.TransportWebSocket}
		if flagDiscover {
			url, err := discoverRelay(cmd.Context())
			if err != nil {
				return err
			}
			opts.ServerURL = url
		}

		cfg, err := LoadConfig(opts)
		if err != nil {
			return err
		}

		list, err := fetchRooms(cmd.Context(), cfg.HTTPURL())
		if err != nil {
			return err
		}
		if len(list.Rooms) == 0 {
			ui.PrintInfo("No open rooms")
			return nil
		}
		fmt.Println()
		ui.RenderRooms(list.Rooms)
		return nil
	},
}

func fetchRooms(ctx context.Context, baseURL string) (*server.RoomListResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/rooms", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list rooms: relay answered %s", resp.Status)
	}

	var list server.RoomListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return &list, nil
}

func init() {
	rootCmd.AddCommand(roomsCmd)

	roomsCmd.Flags().StringVarP(&flagServer, "server", "s", "", "Relay websocket URL")
	roomsCmd.Flags().BoolVarP(&flagDiscover, "discover", "d", false, "Find a relay on the local network")
}

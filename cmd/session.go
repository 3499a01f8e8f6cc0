package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/media"
	"github.com/BioHazard786/huddle/internal/peer"
	"github.com/BioHazard786/huddle/internal/room"
	"github.com/BioHazard786/huddle/internal/signaling"
)

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, room.NewError("load config", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// NewSignalingTransport picks the signaling transport named by cfg.
func NewSignalingTransport(cfg *config.Config, log *slog.Logger) signaling.Transport {
	if cfg.Transport == config.TransportMQTT {
		return signaling.NewMQTTTransport(signaling.MQTTOptions{
			Broker:   cfg.MQTTBroker,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		}, log)
	}
	return signaling.NewRelayTransport(cfg.ServerURL, log)
}

// SignalingVia describes where signaling goes, for display.
func SignalingVia(cfg *config.Config) string {
	if cfg.Transport == config.TransportMQTT {
		return "mqtt " + cfg.MQTTBroker
	}
	return cfg.ServerURL
}

// NewRoomConfig wires the production collaborators of a room session.
func NewRoomConfig(cfg *config.Config, roomID string, log *slog.Logger) (room.Config, error) {
	dir, err := config.DataDir()
	if err != nil {
		return room.Config{}, room.NewError("locate data dir", err)
	}

	// A configured zero means no retries; room.Config reads zero as the default.
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = -1
	}

	user, pass := cfg.GetTURNCredentials()
	return room.Config{
		RoomID:        roomID,
		ParticipantID: cfg.ParticipantID,
		Transport:     NewSignalingTransport(cfg, log),
		Capture: media.NewDevice(media.Options{
			File:     cfg.AudioFile,
			LockPath: filepath.Join(dir, "capture.lock"),
			StreamID: cfg.ParticipantID,
			Logger:   log,
		}),
		NewPeerTransport: peer.NewPionFactory(peer.ICEConfig{
			STUNServers: cfg.GetSTUNServers(),
			TURNServers: cfg.GetTURNServers(),
			TURNUser:    user,
			TURNPass:    pass,
			ForceRelay:  cfg.ForceRelay,
		}, log),
		NegotiationTimeout: cfg.NegotiationTimeout,
		MaxRetries:         retries,
		Logger:             log,
	}, nil
}

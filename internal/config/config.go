package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
)

// Default configuration values (production)
const (
	DefaultServerURL          = "wss://huddle.qzz.io/ws"
	DefaultTransport          = TransportWebSocket
	DefaultMQTTBroker         = "tcp://localhost:1883"
	DefaultSTUN               = "stun:stun.l.google.com:19302"
	DefaultNegotiationTimeout = 12 * time.Second
	DefaultMaxRetries         = 2
)

// Signaling transports.
const (
	TransportWebSocket = "ws"
	TransportMQTT      = "mqtt"
)

// Config holds application configuration
type Config struct {
	// ServerURL is the websocket endpoint of the relay.
	ServerURL string

	// Transport selects the signaling transport: "ws" or "mqtt".
	Transport string

	MQTTBroker   string
	MQTTUsername string
	MQTTPassword string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	NegotiationTimeout time.Duration
	MaxRetries         int

	// AudioFile is an ogg/opus file to send; empty sends silence.
	AudioFile string

	ParticipantID string
}

// Options for loading config with CLI flag overrides. Zero values mean
// "not set".
type Options struct {
	ConfigPath string

	ServerURL    string
	Transport    string
	MQTTBroker   string
	MQTTUsername string
	MQTTPassword string

	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	NegotiationTimeout time.Duration
	MaxRetries         *int

	AudioFile     string
	ParticipantID string
}

// File is the persisted form in ~/.huddle/config.json.
type File struct {
	ServerURL          string `json:"server_url,omitempty"`
	Transport          string `json:"transport,omitempty"`
	MQTTBroker         string `json:"mqtt_broker,omitempty"`
	MQTTUsername       string `json:"mqtt_username,omitempty"`
	MQTTPassword       string `json:"mqtt_password,omitempty"`
	STUNServer         string `json:"stun_server,omitempty"`
	TURNServer         string `json:"turn_server,omitempty"`
	TURNUser           string `json:"turn_username,omitempty"`
	TURNPass           string `json:"turn_password,omitempty"`
	ForceRelay         bool   `json:"force_relay,omitempty"`
	NegotiationTimeout string `json:"negotiation_timeout,omitempty"`
	MaxRetries         *int   `json:"max_retries,omitempty"`
	AudioFile          string `json:"audio_file,omitempty"`
	ParticipantID      string `json:"participant_id,omitempty"`
}

// DataDir returns the huddle state directory, $HUDDLE_HOME or ~/.huddle.
func DataDir() (string, error) {
	if dir := os.Getenv("HUDDLE_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".huddle"), nil
}

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ReadFile reads a config file. A missing file yields an empty File.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, err
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

// WriteFile saves f to path, creating the directory if needed.
func WriteFile(path string, f *File) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. ~/.huddle/config.json
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	path := opts.ConfigPath
	if path == "" {
		p, err := Path()
		if err != nil {
			return nil, err
		}
		path = p
	}

	file, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerURL:     pick(opts.ServerURL, "SERVER_URL", file.ServerURL, DefaultServerURL),
		Transport:     strings.ToLower(pick(opts.Transport, "TRANSPORT", file.Transport, DefaultTransport)),
		MQTTBroker:    pick(opts.MQTTBroker, "MQTT_BROKER", file.MQTTBroker, DefaultMQTTBroker),
		MQTTUsername:  pick(opts.MQTTUsername, "MQTT_USERNAME", file.MQTTUsername, ""),
		MQTTPassword:  pick(opts.MQTTPassword, "MQTT_PASSWORD", file.MQTTPassword, ""),
		STUNServer:    pick(opts.STUNServer, "STUN_SERVER", file.STUNServer, DefaultSTUN),
		TURNServer:    pick(opts.TURNServer, "TURN_SERVER", file.TURNServer, ""),
		TURNUser:      pick(opts.TURNUser, "TURN_USERNAME", file.TURNUser, ""),
		TURNPass:      pick(opts.TURNPass, "TURN_PASSWORD", file.TURNPass, ""),
		AudioFile:     pick(opts.AudioFile, "AUDIO_FILE", file.AudioFile, ""),
		ParticipantID: pick(opts.ParticipantID, "PARTICIPANT_ID", file.ParticipantID, ""),
	}

	// Force relay: flag > env > file
	cfg.ForceRelay = opts.ForceRelay || file.ForceRelay
	if v := os.Getenv("FORCE_RELAY"); v != "" && !opts.ForceRelay {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("FORCE_RELAY: %w", err)
		}
		cfg.ForceRelay = b
	}

	// Negotiation timeout: flag > env > file > default
	timeout := opts.NegotiationTimeout
	if timeout == 0 {
		raw := pick("", "NEGOTIATION_TIMEOUT", file.NegotiationTimeout, "")
		if raw != "" {
			if timeout, err = time.ParseDuration(raw); err != nil {
				return nil, fmt.Errorf("negotiation timeout: %w", err)
			}
		}
	}
	if timeout == 0 {
		timeout = DefaultNegotiationTimeout
	}
	cfg.NegotiationTimeout = timeout

	// Max retries: flag > env > file > default
	cfg.MaxRetries = DefaultMaxRetries
	switch {
	case opts.MaxRetries != nil:
		cfg.MaxRetries = *opts.MaxRetries
	case os.Getenv("MAX_RETRIES") != "":
		n, err := strconv.Atoi(os.Getenv("MAX_RETRIES"))
		if err != nil {
			return nil, fmt.Errorf("MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = n
	case file.MaxRetries != nil:
		cfg.MaxRetries = *file.MaxRetries
	}

	if cfg.ParticipantID == "" {
		cfg.ParticipantID = petname.Generate(2, "-")
	}

	return cfg, cfg.Validate()
}

// pick returns the first non-empty of flag, $env, file and def.
func pick(flag, env, file, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	if file != "" {
		return file
	}
	return def
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport {
	case TransportWebSocket:
		u, err := url.Parse(c.ServerURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			errs = append(errs, fmt.Errorf("server url %q must be ws:// or wss://", c.ServerURL))
		}
	case TransportMQTT:
		if c.MQTTBroker == "" {
			errs = append(errs, errors.New("mqtt transport needs a broker"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q (want %s or %s)", c.Transport, TransportWebSocket, TransportMQTT))
	}

	if c.NegotiationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("negotiation timeout must be positive, got %s", c.NegotiationTimeout))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries))
	}
	if strings.ContainsAny(c.ParticipantID, "/+# ") {
		errs = append(errs, fmt.Errorf("participant id %q must not contain spaces or / + #", c.ParticipantID))
	}

	return errors.Join(errs...)
}

// HTTPURL returns the relay's HTTP base URL derived from ServerURL.
func (c *Config) HTTPURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/ws")
	return strings.TrimSuffix(u.String(), "/")
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured. A bare host is
// expanded to udp, tcp and tls variants.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.Contains(strings.TrimPrefix(c.TURNServer, "turn:"), ":") {
		return []string{c.TURNServer}
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

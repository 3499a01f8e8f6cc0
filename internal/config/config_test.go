package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnv = []string{
	"SERVER_URL", "TRANSPORT", "MQTT_BROKER", "MQTT_USERNAME", "MQTT_PASSWORD",
	"STUN_SERVER", "TURN_SERVER", "TURN_USERNAME", "TURN_PASSWORD", "FORCE_RELAY",
	"NEGOTIATION_TIMEOUT", "MAX_RETRIES", "AUDIO_FILE", "PARTICIPANT_ID",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
	t.Setenv("HUDDLE_HOME", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != DefaultServerURL {
		t.Errorf("ServerURL = %q, want %q", cfg.ServerURL, DefaultServerURL)
	}
	if cfg.Transport != TransportWebSocket {
		t.Errorf("Transport = %q, want ws", cfg.Transport)
	}
	if cfg.NegotiationTimeout != DefaultNegotiationTimeout {
		t.Errorf("NegotiationTimeout = %s, want %s", cfg.NegotiationTimeout, DefaultNegotiationTimeout)
	}
	if cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", cfg.MaxRetries, DefaultMaxRetries)
	}
	if cfg.ParticipantID == "" || !strings.Contains(cfg.ParticipantID, "-") {
		t.Errorf("ParticipantID = %q, want a generated petname", cfg.ParticipantID)
	}
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	three := 3
	err := WriteFile(path, &File{
		ServerURL:          "ws://file:8080/ws",
		STUNServer:         "stun:file",
		TURNServer:         "turn:file",
		NegotiationTimeout: "20s",
		MaxRetries:         &three,
		ParticipantID:      "from-file",
	})
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("STUN_SERVER", "stun:env")
	t.Setenv("MAX_RETRIES", "5")

	cfg, err := Load(Options{ConfigPath: path, TURNServer: "turn:flag"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name, got, want string
	}{
		{"server url from file", cfg.ServerURL, "ws://file:8080/ws"},
		{"stun from env", cfg.STUNServer, "stun:env"},
		{"turn from flag", cfg.TURNServer, "turn:flag"},
		{"participant from file", cfg.ParticipantID, "from-file"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
	if cfg.NegotiationTimeout != 20*time.Second {
		t.Errorf("NegotiationTimeout = %s, want 20s", cfg.NegotiationTimeout)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5 (env beats file)", cfg.MaxRetries)
	}

	zero := 0
	cfg, err = Load(Options{ConfigPath: path, MaxRetries: &zero, NegotiationTimeout: time.Second})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxRetries != 0 || cfg.NegotiationTimeout != time.Second {
		t.Errorf("flags ignored: retries=%d timeout=%s", cfg.MaxRetries, cfg.NegotiationTimeout)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		opts Options
	}{
		{"bad transport", Options{Transport: "carrier-pigeon"}},
		{"http server url", Options{ServerURL: "http://relay/ws"}},
		{"negative retries", Options{MaxRetries: func() *int { n := -1; return &n }()}},
		{"id with slash", Options{ParticipantID: "a/b"}},
	}
	for _, tt := range tests {
		if _, err := Load(tt.opts); err == nil {
			t.Errorf("%s: Load succeeded, want error", tt.name)
		}
	}

	if _, err := Load(Options{Transport: "MQTT", ServerURL: "not-a-url"}); err != nil {
		t.Errorf("mqtt transport should not validate the relay url: %v", err)
	}
}

func TestHTTPURL(t *testing.T) {
	tests := []struct {
		ws, want string
	}{
		{"wss://huddle.qzz.io/ws", "https://huddle.qzz.io"},
		{"ws://localhost:8080/ws", "http://localhost:8080"},
		{"ws://10.0.0.2:9000/relay/ws", "http://10.0.0.2:9000/relay"},
	}
	for _, tt := range tests {
		c := &Config{ServerURL: tt.ws}
		if got := c.HTTPURL(); got != tt.want {
			t.Errorf("HTTPURL(%q) = %q, want %q", tt.ws, got, tt.want)
		}
	}
}

func TestTURNServers(t *testing.T) {
	c := &Config{TURNServer: "turn:relay.example.com"}
	got := c.GetTURNServers()
	if len(got) != 3 || got[0] != "turn:relay.example.com:3478?transport=udp" || got[2] != "turns:relay.example.com:5349?transport=tcp" {
		t.Errorf("GetTURNServers = %v", got)
	}

	c.TURNServer = "turn:relay.example.com:443?transport=tcp"
	if got := c.GetTURNServers(); len(got) != 1 || got[0] != c.TURNServer {
		t.Errorf("explicit TURN url rewritten: %v", got)
	}

	c.TURNServer = ""
	if got := c.GetTURNServers(); got != nil {
		t.Errorf("GetTURNServers with no server = %v, want nil", got)
	}
}

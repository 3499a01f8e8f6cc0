package utils

import (
	"net"
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{2*time.Minute + 5*time.Second, "2m 5s"},
		{time.Hour + 90*time.Second, "1h 1m 30s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("standup", 10); got != "standup" {
		t.Errorf("short string changed: %q", got)
	}
	if got := TruncateString("a-very-long-room-name", 10); got != "a-very-..." {
		t.Errorf("got %q", got)
	}
	if got := TruncateString("héllo wörld", 8); got != "héllo..." {
		t.Errorf("rune truncation got %q", got)
	}
}

func TestPlural(t *testing.T) {
	if got := Plural(1, "peer"); got != "1 peer" {
		t.Errorf("got %q", got)
	}
	if got := Plural(3, "peer"); got != "3 peers" {
		t.Errorf("got %q", got)
	}
}

func TestTunnelDetection(t *testing.T) {
	for name, want := range map[string]bool{"wg0": true, "utun3": true, "CloudflareWARP": true, "eth0": false, "en0": false} {
		if got := isTunnelName(name); got != want {
			t.Errorf("isTunnelName(%q) = %v, want %v", name, got, want)
		}
	}
	if !inCGNAT(&net.IPNet{IP: net.ParseIP("100.100.1.2")}) {
		t.Error("100.100.1.2 not recognized as CGNAT")
	}
	if inCGNAT(&net.IPNet{IP: net.ParseIP("192.168.1.2")}) {
		t.Error("192.168.1.2 recognized as CGNAT")
	}
}

// Package discovery finds huddle relays on the local network over mDNS.
package discovery

import (
	"fmt"
	"strings"
)

// ServiceType is the mDNS service type a huddle relay registers.
const ServiceType = "_huddle._tcp"

// Domain is the mDNS browse domain.
const Domain = "local."

// txtValue returns the value of key in a TXT record list.
func txtValue(txt []string, key string) (string, bool) {
	for _, kv := range txt {
		if v, ok := strings.CutPrefix(kv, key+"="); ok {
			return v, true
		}
	}
	return "", false
}

// relayURL builds the websocket URL a browsing client dials.
func relayURL(host string, port int, path string) string {
	if path == "" {
		path = "/ws"
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("ws://%s:%d%s", host, port, path)
}

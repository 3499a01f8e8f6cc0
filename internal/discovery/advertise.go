package discovery

import (
	"fmt"

	"github.com/grandcat/zeroconf"

	"github.com/BioHazard786/huddle/internal/version"
)

// Advertise announces a relay listening on port. It returns a shutdown
// function that should be called when the relay stops.
func Advertise(instance string, port int, path string) (func(), error) {
	if instance == "" {
		instance = "huddle-relay"
	}

	txt := []string{
		fmt.Sprintf("path=%s", path),
		fmt.Sprintf("version=%s", version.Version),
	}

	server, err := zeroconf.Register(
		instance,
		ServiceType,
		Domain,
		port,
		txt,
		nil, // All interfaces
	)
	if err != nil {
		return nil, fmt.Errorf("mdns register failed: %w", err)
	}

	return server.Shutdown, nil
}

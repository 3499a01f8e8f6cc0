package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/grandcat/zeroconf"
)

// ErrRelayNotFound is returned when no relay answered before the timeout.
var ErrRelayNotFound = errors.New("no relay found on the local network")

// FindRelay browses for a relay and returns its websocket URL. An empty
// instance accepts the first relay that answers.
func FindRelay(ctx context.Context, instance string, timeout time.Duration) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("mdns resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return "", fmt.Errorf("mdns browse: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", ErrRelayNotFound
		case entry := <-entries:
			if entry == nil {
				continue
			}
			if instance != "" && entry.Instance != instance {
				continue
			}

			path, _ := txtValue(entry.Text, "path")
			switch {
			case len(entry.AddrIPv4) > 0:
				return relayURL(entry.AddrIPv4[0].String(), entry.Port, path), nil
			case len(entry.AddrIPv6) > 0:
				return relayURL(entry.AddrIPv6[0].String(), entry.Port, path), nil
			}
		}
	}
}

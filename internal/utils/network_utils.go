package utils

import (
	"net"
	"strings"
)

// tunnelMarkers are substrings of interface names used by VPN and overlay
// software: OpenVPN, virtual adapters, WireGuard, PPP and Cloudflare WARP.
var tunnelMarkers = []string{"tun", "tap", "wg", "ppp", "warp"}

// cgnatBlock is 100.64.0.0/10, used by carrier-grade NAT, Tailscale and WARP.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// ShouldForceRelay reports whether the host looks like it sits behind a VPN
// or CGNAT, where direct peer paths rarely work and TURN should be forced.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isTunnelName(iface.Name) {
			return true
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if inCGNAT(addr) {
				return true
			}
		}
	}
	return false
}

func isTunnelName(name string) bool {
	name = strings.ToLower(name)
	for _, marker := range tunnelMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

func inCGNAT(addr net.Addr) bool {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	}
	return ip != nil && cgnatBlock.Contains(ip)
}

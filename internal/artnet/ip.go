package artnet

import (
	"fmt"
	"net"
	"strings"
)

// defaultRange is used when no network is configured.
const defaultRange = "192.168.6.0/24"

// FindArtNetIP finds the matching interface with an IP address inside cidr.
func FindArtNetIP(cidr string) (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("error getting ips: %w", err)
	}
	return matchIP(cidr, addrs)
}

func matchIP(cidr string, addrs []net.Addr) (net.IP, error) {
	if cidr == "" {
		cidr = defaultRange
	}
	_, cidrNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("art-net cidr %q: %w", cidr, err)
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP
		if strings.Contains(ip.String(), ":") {
			continue
		}
		if cidrNet.Contains(ip) {
			return ip, nil
		}
	}

	return nil, nil
}

// Package network watches the host's association with the LAN the strip
// is controlled from.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"stripctl/internal/logger"
)

// ErrNoAddress is returned when no matching interface address appears in time.
var ErrNoAddress = errors.New("no matching network address")

// Link is the network association the transports run on.
type Link interface {
	// Associate blocks until the link is usable, the timeout expires or ctx ends.
	Associate(ctx context.Context) error
	// Connected re-checks the association.
	Connected() bool
	// Address is the local IPv4 address, empty when not associated.
	Address() string
	// Signal is a link quality metric for status reports.
	Signal() string
}

// Conf describes which address counts as "associated".
type Conf struct {
	Interface string        // empty matches any interface
	CIDR      string        // empty matches any non-loopback IPv4
	Timeout   time.Duration // for Associate
	Poll      time.Duration // retry period inside Associate
}

// HostLink checks the interfaces of the host.
type HostLink struct {
	log     logger.Logger
	cfg     Conf
	network *net.IPNet
	addr    net.IP
	addrs   func(name string) ([]net.Addr, error)
}

// NewHostLink конструктор.
func NewHostLink(log logger.Logger, cfg Conf) (*HostLink, error) {
	l := &HostLink{log: log, cfg: cfg, addrs: interfaceAddrs}
	if cfg.CIDR != "" {
		_, n, err := net.ParseCIDR(cfg.CIDR)
		if err != nil {
			return nil, fmt.Errorf("network cidr %q: %w", cfg.CIDR, err)
		}
		l.network = n
	}
	if l.cfg.Poll <= 0 {
		l.cfg.Poll = time.Second
	}
	return l, nil
}

func (l *HostLink) Associate(ctx context.Context) error {
	deadline := time.Now().Add(l.cfg.Timeout)
	for {
		ip, err := l.find()
		if err != nil {
			l.log.With(logger.Fields{"module": "network"}).Warnf("interface lookup failed: %v", err)
		}
		if ip != nil {
			l.addr = ip
			l.log.With(logger.Fields{"module": "network"}).Infof("associated, address %s", ip)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %v", ErrNoAddress, l.cfg.Timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.Poll):
		}
	}
}

func (l *HostLink) Connected() bool {
	ip, err := l.find()
	if err != nil || ip == nil {
		l.addr = nil
		return false
	}
	l.addr = ip
	return true
}

func (l *HostLink) Address() string {
	if l.addr == nil {
		return ""
	}
	return l.addr.String()
}

// Signal is not available on wired hosts.
func (l *HostLink) Signal() string {
	return "unknown"
}

// find returns the first IPv4 address that matches the configuration.
func (l *HostLink) find() (net.IP, error) {
	addrs, err := l.addrs(l.cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("error getting ips: %w", err)
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP
		if strings.Contains(ip.String(), ":") || ip.IsLoopback() {
			continue
		}
		if l.network == nil || l.network.Contains(ip) {
			return ip, nil
		}
	}
	return nil, nil
}

func interfaceAddrs(name string) ([]net.Addr, error) {
	if name == "" {
		return net.InterfaceAddrs()
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	if iface.Flags&net.FlagUp == 0 {
		return nil, nil
	}
	return iface.Addrs()
}

package network

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"stripctl/internal/logger"
)

func ipNet(s string) *net.IPNet {
	ip, n, _ := net.ParseCIDR(s)
	n.IP = ip
	return n
}

func TestHostLinkMatchesCIDR(t *testing.T) {
	l, err := NewHostLink(logger.NewNop(), Conf{CIDR: "192.168.6.0/24", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	l.addrs = func(string) ([]net.Addr, error) {
		return []net.Addr{
			ipNet("127.0.0.1/8"),
			ipNet("fe80::1/64"),
			ipNet("10.0.0.5/8"),
			ipNet("192.168.6.20/24"),
		}, nil
	}
	if err := l.Associate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if l.Address() != "192.168.6.20" {
		t.Errorf("Address() = %q", l.Address())
	}
	if !l.Connected() {
		t.Error("Connected() = false")
	}
}

func TestHostLinkAnyAddress(t *testing.T) {
	l, _ := NewHostLink(logger.NewNop(), Conf{})
	l.addrs = func(string) ([]net.Addr, error) {
		return []net.Addr{ipNet("127.0.0.1/8"), ipNet("10.1.2.3/16")}, nil
	}
	if !l.Connected() || l.Address() != "10.1.2.3" {
		t.Errorf("Connected() with address %q", l.Address())
	}
}

func TestHostLinkLost(t *testing.T) {
	l, _ := NewHostLink(logger.NewNop(), Conf{Timeout: 20 * time.Millisecond, Poll: 5 * time.Millisecond})
	l.addrs = func(string) ([]net.Addr, error) { return nil, nil }
	if l.Connected() {
		t.Error("Connected() = true without addresses")
	}
	if err := l.Associate(context.Background()); !errors.Is(err, ErrNoAddress) {
		t.Errorf("expected ErrNoAddress, got %v", err)
	}
}

func TestHostLinkAssociateCancelled(t *testing.T) {
	l, _ := NewHostLink(logger.NewNop(), Conf{Timeout: time.Minute, Poll: time.Millisecond})
	l.addrs = func(string) ([]net.Addr, error) { return nil, nil }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Associate(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewHostLinkBadCIDR(t *testing.T) {
	if _, err := NewHostLink(logger.NewNop(), Conf{CIDR: "nope"}); err == nil {
		t.Error("expected error for bad cidr")
	}
}

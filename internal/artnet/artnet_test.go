package artnet

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Haba1234/go-artnet"
	"stripctl/internal/logger"
	"stripctl/internal/pixel"
)

type fakeSender struct {
	mu      sync.Mutex
	started bool
	stopped bool
	sent    map[artnet.Address][512]byte
}

func (s *fakeSender) Start() error {
	s.started = true
	return nil
}

func (s *fakeSender) Stop() {
	s.stopped = true
}

func (s *fakeSender) SendDMXToAddress(dmx [512]byte, address artnet.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = map[artnet.Address][512]byte{}
	}
	s.sent[address] = dmx
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestSplitKeepsPixelsWhole(t *testing.T) {
	tests := []struct {
		name      string
		leds      int
		bpp       int
		universes int
		lastLen   int
	}{
		{"rgb fits one", 170, 3, 1, 510},
		{"rgb spills", 171, 3, 2, 3},
		{"rgbw exact", 128, 4, 1, 512},
		{"rgbw spills", 300, 4, 3, 44 * 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := make([]byte, tt.leds*tt.bpp)
			for i := range frame {
				frame[i] = 255
			}
			out := Split(frame, tt.bpp, 255, 7)
			if len(out) != tt.universes {
				t.Fatalf("got %d universes, want %d", len(out), tt.universes)
			}
			for i, u := range out {
				if u.Universe != uint16(7+i) {
					t.Errorf("universe %d numbered %d", i, u.Universe)
				}
			}
			last := out[len(out)-1].Data
			lit := 0
			for _, v := range last {
				if v == 255 {
					lit++
				}
			}
			if lit != tt.lastLen {
				t.Errorf("last universe carries %d bytes, want %d", lit, tt.lastLen)
			}
		})
	}
}

func TestSplitScalesBrightness(t *testing.T) {
	out := Split([]byte{255, 128, 0}, 3, 128, 0)
	want := []uint8{128, 64, 0}
	for i, w := range want {
		if out[0].Data[i] != w {
			t.Errorf("channel %d = %d, want %d", i, out[0].Data[i], w)
		}
	}
	if got := Split(nil, 3, 255, 0); len(got) != 0 {
		t.Errorf("empty frame produced %d universes", len(got))
	}
}

func TestUniverseToAddress(t *testing.T) {
	a := universeToAddress(0x0102)
	if a.Net != 1 || a.SubUni != 2 {
		t.Errorf("address = %+v, want net 1 subuni 2", a)
	}
}

func TestMatchIP(t *testing.T) {
	addrs := []net.Addr{
		&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)},
		&net.IPNet{IP: net.ParseIP("10.0.0.5").To4(), Mask: net.CIDRMask(8, 32)},
		&net.IPNet{IP: net.ParseIP("192.168.6.20").To4(), Mask: net.CIDRMask(24, 32)},
	}
	ip, err := matchIP("", addrs)
	if err != nil {
		t.Fatal(err)
	}
	if ip.String() != "192.168.6.20" {
		t.Errorf("ip = %v", ip)
	}
	ip, err = matchIP("172.16.0.0/12", addrs)
	if err != nil || ip != nil {
		t.Errorf("got %v, %v; want no match", ip, err)
	}
	if _, err := matchIP("bogus", addrs); err == nil {
		t.Error("expected an error for a bad cidr")
	}
}

func TestDriverSends(t *testing.T) {
	s := &fakeSender{}
	d := newDriver(logger.NewNop(), Conf{Universe: 3}, pixel.MustParseLayout("RGB"), s)
	if err := d.Show([]byte{1, 2, 3}, 255); err == nil {
		t.Error("Show before Start should fail")
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := d.Show(make([]byte, 200*3), 255); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.count() != 2 {
		t.Fatalf("sent to %d addresses, want 2", s.count())
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if !s.started || !s.stopped {
		t.Errorf("started=%v stopped=%v", s.started, s.stopped)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sent[artnet.Address{SubUni: 4}]; !ok {
		t.Errorf("second universe not sent to subuni 4: %v", s.sent)
	}
}

// Package udp receives raw strip frames.
package udp

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"stripctl/internal/logger"
	"stripctl/internal/network"
)

// maxDatagram is large enough for any IPv4 UDP payload, so oversized
// frames are seen at their real length and rejected instead of truncated.
const maxDatagram = 65535

// Conf структура конфигурации.
type Conf struct {
	IP      string        // IP - адрес привязки.
	Port    int           // Port - порт.
	Timeout time.Duration // Timeout - ожидание одного приёма.
}

// Session is a bound UDP socket polled by the scheduler.
type Session struct {
	log     logger.Logger
	conn    *net.UDPConn
	timeout time.Duration
	buf     []byte
}

// Listen binds the socket once.
func Listen(log logger.Logger, cfg Conf, link network.Link) (*Session, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(cfg.IP), Port: cfg.Port}
	if cfg.IP != "" && addr.IP == nil {
		return nil, fmt.Errorf("invalid udp bind address %q", cfg.IP)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("udp listen on %s: %w", addr, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Millisecond
	}

	display := conn.LocalAddr().String()
	if (cfg.IP == "" || cfg.IP == "0.0.0.0") && link != nil && link.Address() != "" {
		display = net.JoinHostPort(link.Address(), fmt.Sprint(conn.LocalAddr().(*net.UDPAddr).Port))
	}
	log.With(logger.Fields{"module": "udp"}).Infof("UDP server listening on %s", display)

	return &Session{
		log:     log,
		conn:    conn,
		timeout: cfg.Timeout,
		buf:     make([]byte, maxDatagram),
	}, nil
}

// Poll reads at most one datagram, waiting no longer than the configured
// timeout. A timeout or a read error both mean "nothing this cycle".
func (s *Session) Poll() ([]byte, bool) {
	if s.conn == nil {
		return nil, false
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		s.log.With(logger.Fields{"module": "udp"}).Errorf("set read deadline: %v", err)
		return nil, false
	}
	n, from, err := s.conn.ReadFromUDP(s.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, false
		}
		s.log.With(logger.Fields{"module": "udp"}).Errorf("receive error: %v", err)
		return nil, false
	}
	s.log.With(logger.Fields{"module": "udp"}).Tracef("received %d bytes from %s", n, from)
	data := make([]byte, n)
	copy(data, s.buf[:n])
	return data, true
}

// LocalAddr is the bound address.
func (s *Session) LocalAddr() *net.UDPAddr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr().(*net.UDPAddr)
}

func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

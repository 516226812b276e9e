package netio

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
)

// Sender implements slp.Sender by writing SLP messages to a shared
// PacketConn. A single Sender is normally built over the same socket a
// Listener reads from, so unicast replies and multicast convergence
// requests leave from the agent's one bound port 427 (spec.md §6).
type Sender struct {
	conn   PacketConn
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

// NewSender wraps conn as an slp.Sender. logger may be nil.
func NewSender(conn PacketConn, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		conn:   conn,
		logger: logger.With(slog.String("component", "netio.sender")),
	}
}

// SendUnicast writes payload to dst on port 427.
func (s *Sender) SendUnicast(_ context.Context, dst netip.Addr, payload []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return fmt.Errorf("send unicast to %s: %w", dst, ErrSocketClosed)
	}

	if err := s.conn.WritePacket(payload, dst); err != nil {
		return fmt.Errorf("send unicast to %s: %w", dst, err)
	}

	s.logger.Debug("sent unicast", slog.String("dst", dst.String()), slog.Int("bytes", len(payload)))
	return nil
}

// SendMulticast writes payload to the SLP multicast group address. The
// address family of group (IPv4 239.255.255.253 or an IPv6 SLP scope)
// determines which socket must have joined it beforehand.
func (s *Sender) SendMulticast(_ context.Context, group netip.Addr, payload []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return fmt.Errorf("send multicast to %s: %w", group, ErrSocketClosed)
	}

	if err := s.conn.WritePacket(payload, group); err != nil {
		return fmt.Errorf("send multicast to %s: %w", group, err)
	}

	s.logger.Debug("sent multicast", slog.String("group", group.String()), slog.Int("bytes", len(payload)))
	return nil
}

// Close closes the underlying connection.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close sender: %w", err)
	}
	return nil
}

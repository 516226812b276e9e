package netio

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
)

// ListenerConfig holds configuration for an SLP packet listener.
type ListenerConfig struct {
	// Addr is the local IP address to bind to (unicast listener) or the
	// SLP multicast group address (multicast listener).
	Addr netip.Addr

	// IfName is the network interface name for SO_BINDTODEVICE /
	// multicast group join. May be empty to use the system default.
	IfName string

	// Multicast selects a multicast-group listener over a unicast one.
	Multicast bool
}

// packetBufPool recycles read buffers sized for one SLP message (spec.md
// §4.7's default MTU bound of 1400 bytes, rounded up for headroom).
var packetBufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 2048)
		return &buf
	},
}

// Listener wraps a PacketConn and provides a high-level, context-aware
// receive loop for SLP messages.
type Listener struct {
	conn PacketConn
}

// NewListener creates a Listener from the given configuration.
func NewListener(cfg ListenerConfig) (*Listener, error) {
	conn, err := createConn(cfg)
	if err != nil {
		return nil, err
	}

	return &Listener{conn: conn}, nil
}

// NewListenerFromConn creates a Listener from an existing PacketConn.
// Useful for testing with mock connections.
func NewListenerFromConn(conn PacketConn) *Listener {
	return &Listener{conn: conn}
}

// Recv blocks until an SLP message is received or ctx is cancelled.
// Returns a copy of the message bytes, which the caller owns and may
// retain, and transport metadata.
func (l *Listener) Recv(ctx context.Context) ([]byte, PacketMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, PacketMeta{}, fmt.Errorf("listener recv: %w", err)
	}

	bufp, ok := packetBufPool.Get().(*[]byte)
	if !ok {
		return nil, PacketMeta{}, fmt.Errorf("listener recv: %w", ErrPoolType)
	}
	defer packetBufPool.Put(bufp)

	n, meta, err := l.conn.ReadPacket(*bufp)
	if err != nil {
		return nil, PacketMeta{}, fmt.Errorf("listener read: %w", err)
	}

	out := make([]byte, n)
	copy(out, (*bufp)[:n])

	return out, meta, nil
}

// Close closes the underlying PacketConn.
func (l *Listener) Close() error {
	if err := l.conn.Close(); err != nil {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}

// createConn creates the appropriate PacketConn based on the config.
func createConn(cfg ListenerConfig) (PacketConn, error) {
	if cfg.Multicast {
		conn, err := NewMulticastListener(context.Background(), cfg.Addr, cfg.IfName)
		if err != nil {
			return nil, fmt.Errorf("create multicast listener: %w", err)
		}
		return conn, nil
	}

	conn, err := NewUnicastListener(context.Background(), cfg.Addr, cfg.IfName)
	if err != nil {
		return nil, fmt.Errorf("create unicast listener: %w", err)
	}
	return conn, nil
}

package netio

import (
	"errors"
	"net/netip"
)

// -------------------------------------------------------------------------
// SLPv2 Port — RFC 2608 Section 1
// -------------------------------------------------------------------------

// Port is the UDP and TCP port SLPv2 agents listen on (RFC 2608 §1,
// spec.md §6).
const Port uint16 = 427

// -------------------------------------------------------------------------
// Transport Metadata
// -------------------------------------------------------------------------

// PacketMeta contains transport-layer metadata extracted from a received
// SLP datagram via ancillary data (IP_PKTINFO/IPV6_PKTINFO). Used to
// classify the peer address and, when CheckSourceAddr is configured, to
// verify a SrvDeReg originates from the same address family as its
// registration (spec.md §6).
type PacketMeta struct {
	// SrcAddr is the source IP address from the IP header.
	SrcAddr netip.Addr

	// DstAddr is the destination IP address, obtained from IP_PKTINFO
	// ancillary data. Distinguishes a unicast reply from a multicast
	// request addressed to the SLP group.
	DstAddr netip.Addr

	// IfIndex is the interface index on which the packet was received.
	// Used when multiple interfaces belong to different scopes.
	IfIndex int

	// IfName is the interface name on which the packet was received.
	IfName string
}

// -------------------------------------------------------------------------
// PacketConn Interface
// -------------------------------------------------------------------------

// PacketConn abstracts SLP datagram send/receive over raw UDP sockets.
// Implementations handle platform-specific socket configuration including
// PKTINFO and multicast group membership.
//
// The interface is intentionally minimal to enable mock implementations
// for testing without elevated privileges.
type PacketConn interface {
	// ReadPacket reads a single SLP message into buf. Returns the number
	// of bytes read and transport metadata.
	ReadPacket(buf []byte) (n int, meta PacketMeta, err error)

	// WritePacket sends a message to dst on the SLP port.
	WritePacket(buf []byte, dst netip.Addr) error

	// Close releases the underlying socket resources.
	Close() error

	// LocalAddr returns the local address and port the socket is bound to.
	LocalAddr() netip.AddrPort
}

// -------------------------------------------------------------------------
// Sentinel Errors
// -------------------------------------------------------------------------

var (
	// ErrSocketClosed indicates an operation on a closed socket.
	ErrSocketClosed = errors.New("socket closed")

	// ErrUnsupportedFamily indicates an operation was attempted with a
	// multicast group whose address family does not match the listener.
	ErrUnsupportedFamily = errors.New("multicast group address family mismatch")

	// ErrPoolType indicates packetBufPool.Get() returned an unexpected
	// type, which can only happen if something outside this package
	// stores a value of the wrong type into the pool.
	ErrPoolType = errors.New("packet buffer pool returned unexpected type")
)

// ErrUnexpectedConnType indicates net.ListenPacket returned an unexpected
// connection type instead of *net.UDPConn.
var ErrUnexpectedConnType = errors.New("unexpected connection type from ListenPacket")

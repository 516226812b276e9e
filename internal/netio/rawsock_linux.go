//go:build linux

package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// -------------------------------------------------------------------------
// LinuxPacketConn — RFC 2608 Section 1, spec.md §6
// -------------------------------------------------------------------------

// LinuxPacketConn implements PacketConn using a UDP socket configured for
// SLPv2 unicast and multicast traffic on port 427.
//
//   - IPv4: IP_PKTINFO for destination address and interface
//   - IPv6: IPV6_RECVPKTINFO for destination address and interface
//   - SO_BINDTODEVICE for interface binding, when requested
//   - SO_REUSEADDR so SA and DA processes on the same host
//     can both join the multicast group
//   - IP_ADD_MEMBERSHIP/IPV6_JOIN_GROUP when constructed as a multicast
//     listener
type LinuxPacketConn struct {
	conn      *net.UDPConn
	localAddr netip.AddrPort
	ifName    string
	closed    bool
	mu        sync.Mutex
}

// ReadPacket reads a single SLP message from the UDP socket. Returns the
// number of bytes read and transport metadata extracted from ancillary
// data (destination address, interface).
func (c *LinuxPacketConn) ReadPacket(buf []byte) (int, PacketMeta, error) {
	oob := make([]byte, oobSize)

	n, oobn, _, src, err := c.conn.ReadMsgUDP(buf, oob)
	if err != nil {
		return 0, PacketMeta{}, fmt.Errorf("read SLP message: %w", err)
	}

	meta := parseMeta(src, oob[:oobn])
	meta.IfName = c.ifName

	return n, meta, nil
}

// WritePacket sends an SLP message to dst on port 427.
func (c *LinuxPacketConn) WritePacket(buf []byte, dst netip.Addr) error {
	udpAddr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(dst, Port))

	if _, err := c.conn.WriteToUDP(buf, udpAddr); err != nil {
		return fmt.Errorf("write SLP message to %s: %w", dst, err)
	}

	return nil
}

// Close releases the underlying socket.
func (c *LinuxPacketConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close SLP socket: %w", err)
	}
	return nil
}

// LocalAddr returns the local address and port the socket is bound to.
func (c *LinuxPacketConn) LocalAddr() netip.AddrPort {
	return c.localAddr
}

// -------------------------------------------------------------------------
// Constructors
// -------------------------------------------------------------------------

// NewUnicastListener creates a PacketConn bound to addr on port 427 for
// unicast SLP traffic (replies, TCP-alternative-path unicast requests).
// Supports both IPv4 and IPv6 addresses; the address family is
// auto-detected. When ifName is non-empty the socket is bound to that
// interface with SO_BINDTODEVICE.
func NewUnicastListener(ctx context.Context, addr netip.Addr, ifName string) (*LinuxPacketConn, error) {
	laddr := netip.AddrPortFrom(addr, Port)

	conn, err := listenUDP(ctx, laddr, ifName, netip.Addr{})
	if err != nil {
		return nil, fmt.Errorf("unicast listener on %s%%%s: %w", laddr, ifName, err)
	}

	return &LinuxPacketConn{conn: conn, localAddr: laddr, ifName: ifName}, nil
}

// NewMulticastListener creates a PacketConn bound to the SLP multicast
// group (group) on port 427, joined on the interface named by ifName
// (or the system default when empty). Used by DAs and multicast-capable
// SAs to receive SrvRqst/SrvTypeRqst/AttrRqst/DAAdvert convergence
// traffic addressed to the group (spec.md §6).
func NewMulticastListener(ctx context.Context, group netip.Addr, ifName string) (*LinuxPacketConn, error) {
	laddr := netip.AddrPortFrom(group, Port)

	conn, err := listenUDP(ctx, laddr, ifName, group)
	if err != nil {
		return nil, fmt.Errorf("multicast listener on %s%%%s: %w", laddr, ifName, err)
	}

	return &LinuxPacketConn{conn: conn, localAddr: laddr, ifName: ifName}, nil
}

// -------------------------------------------------------------------------
// Socket creation helpers
// -------------------------------------------------------------------------

// oobSize is the buffer size for ancillary (out-of-band) data.
// IPv4 IP_PKTINFO is 28 bytes aligned, IPv6 IPV6_PKTINFO is 36 bytes
// aligned; rounded up to 64 for alignment safety.
const oobSize = 64

// listenUDP creates and configures a UDP socket for SLP traffic.
// Auto-detects IPv4 vs IPv6 from the bind address. When group is valid,
// the socket joins that multicast group on ifName (or the default
// interface when ifName is empty).
func listenUDP(ctx context.Context, laddr netip.AddrPort, ifName string, group netip.Addr) (*net.UDPConn, error) {
	isIPv6 := laddr.Addr().Is6() && !laddr.Addr().Is4In6()

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setSocketOpts(c, ifName, group, isIPv6)
		},
	}

	network := "udp4"
	bindAddr := laddr
	if isIPv6 {
		network = "udp6"
	}
	if group.IsValid() {
		// Bind to the wildcard address + group port; membership is what
		// steers delivery, not the bind address.
		if isIPv6 {
			bindAddr = netip.AddrPortFrom(netip.IPv6Unspecified(), laddr.Port())
		} else {
			bindAddr = netip.AddrPortFrom(netip.IPv4Unspecified(), laddr.Port())
		}
	}

	pc, err := lc.ListenPacket(ctx, network, bindAddr.String())
	if err != nil {
		return nil, fmt.Errorf("listen UDP %s: %w", bindAddr, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		closeErr := pc.Close()
		return nil, errors.Join(
			fmt.Errorf("listen UDP %s: %w", bindAddr, ErrUnexpectedConnType),
			closeErr,
		)
	}

	return conn, nil
}

// setSocketOpts configures SLP-required socket options via the Control
// callback: address reuse, destination-address ancillary data, interface
// binding, and multicast group membership.
func setSocketOpts(c syscall.RawConn, ifName string, group netip.Addr, isIPv6 bool) error {
	var sockErr error

	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		intFD := int(fd)
		if isIPv6 {
			sockErr = applySockOptsV6(intFD, ifName, group)
		} else {
			sockErr = applySockOptsV4(intFD, ifName, group)
		}
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}

	return sockErr
}

// applySockOptsCommon sets socket options shared by IPv4 and IPv6.
func applySockOptsCommon(fd int, ifName string) error {
	// SO_REUSEADDR: allow the SA and DA processes on one host to both
	// bind the SLP port.
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}

	if ifName != "" {
		if err := unix.SetsockoptString(fd, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, ifName); err != nil {
			return fmt.Errorf("set SO_BINDTODEVICE(%s): %w", ifName, err)
		}
	}

	return nil
}

// applySockOptsV4 sets IPv4-specific socket options on the file descriptor.
func applySockOptsV4(fd int, ifName string, group netip.Addr) error {
	if err := applySockOptsCommon(fd, ifName); err != nil {
		return err
	}

	// IP_PKTINFO: receive destination address and interface index, used
	// to tell a multicast request apart from a unicast one.
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_PKTINFO, 1); err != nil {
		return fmt.Errorf("set IP_PKTINFO: %w", err)
	}

	if group.IsValid() {
		ifIndex, err := ifIndexByName(ifName)
		if err != nil {
			return err
		}

		mreq := &unix.IPMreqn{
			Multiaddr: group.As4(),
			Ifindex:   int32(ifIndex), //nolint:gosec // G115: interface indexes are small positive integers.
		}
		if err := unix.SetsockoptIPMreqn(fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq); err != nil {
			return fmt.Errorf("join IPv4 multicast group %s: %w", group, err)
		}
	}

	return nil
}

// applySockOptsV6 sets IPv6-specific socket options on the file descriptor.
func applySockOptsV6(fd int, ifName string, group netip.Addr) error {
	if err := applySockOptsCommon(fd, ifName); err != nil {
		return err
	}

	// IPV6_RECVPKTINFO: receive destination address and interface index.
	// Equivalent to IP_PKTINFO for IPv6. Returns struct in6_pktinfo.
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_RECVPKTINFO, 1); err != nil {
		return fmt.Errorf("set IPV6_RECVPKTINFO: %w", err)
	}

	if group.IsValid() {
		ifIndex, err := ifIndexByName(ifName)
		if err != nil {
			return err
		}

		mreq := &unix.IPv6Mreq{
			Multiaddr: group.As16(),
			Interface: uint32(ifIndex), //nolint:gosec // G115: interface indexes are small positive integers.
		}
		if err := unix.SetsockoptIPv6Mreq(fd, unix.IPPROTO_IPV6, unix.IPV6_JOIN_GROUP, mreq); err != nil {
			return fmt.Errorf("join IPv6 multicast group %s: %w", group, err)
		}
	}

	return nil
}

// ifIndexByName resolves an interface name to its kernel index. An empty
// name resolves to 0, letting the kernel pick the default multicast
// interface.
func ifIndexByName(ifName string) (int, error) {
	if ifName == "" {
		return 0, nil
	}

	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return 0, fmt.Errorf("resolve interface %s: %w", ifName, err)
	}

	return iface.Index, nil
}

// parseMeta extracts transport metadata from the source address and
// out-of-band ancillary data. Handles both IPv4 and IPv6 IP_PKTINFO
// control messages.
func parseMeta(src *net.UDPAddr, oob []byte) PacketMeta {
	meta := PacketMeta{}

	if src != nil {
		srcAddr, ok := netip.AddrFromSlice(src.IP)
		if ok {
			meta.SrcAddr = srcAddr.Unmap()
		}
	}

	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return meta
	}

	parseControlMessages(msgs, &meta)

	return meta
}

// parseControlMessages extracts PKTINFO from socket control messages.
// Handles both IPv4 (struct in_pktinfo) and IPv6 (struct in6_pktinfo)
// ancillary data.
func parseControlMessages(msgs []unix.SocketControlMessage, meta *PacketMeta) {
	for i := range msgs {
		switch {
		case msgs[i].Header.Level == unix.IPPROTO_IP && msgs[i].Header.Type == unix.IP_PKTINFO:
			parsePktInfoMessage(msgs[i].Data, meta)
		case msgs[i].Header.Level == unix.IPPROTO_IPV6 && msgs[i].Header.Type == unix.IPV6_PKTINFO:
			parsePktInfo6Message(msgs[i].Data, meta)
		}
	}
}

// parsePktInfoMessage extracts destination address and interface index from
// an IP_PKTINFO control message (struct in_pktinfo).
func parsePktInfoMessage(data []byte, meta *PacketMeta) {
	// struct in_pktinfo is 12 bytes:
	//   int       ipi_ifindex  (4 bytes, native endian)
	//   in_addr   ipi_spec_dst (4 bytes)
	//   in_addr   ipi_addr     (4 bytes)
	const pktInfoSize = 12
	if len(data) < pktInfoSize {
		return
	}

	ifIdx := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	meta.IfIndex = int(ifIdx)

	var ip4 [4]byte
	copy(ip4[:], data[8:12])
	meta.DstAddr = netip.AddrFrom4(ip4)
}

// parsePktInfo6Message extracts destination address and interface index from
// an IPV6_PKTINFO control message (struct in6_pktinfo).
func parsePktInfo6Message(data []byte, meta *PacketMeta) {
	// struct in6_pktinfo is 20 bytes:
	//   struct in6_addr ipi6_addr    (16 bytes, network byte order)
	//   unsigned int    ipi6_ifindex (4 bytes, native endian)
	const pktInfo6Size = 20
	if len(data) < pktInfo6Size {
		return
	}

	var ip6 [16]byte
	copy(ip6[:], data[0:16])
	meta.DstAddr = netip.AddrFrom16(ip6)

	ifIdx := uint32(data[16]) | uint32(data[17])<<8 | uint32(data[18])<<16 | uint32(data[19])<<24
	meta.IfIndex = int(ifIdx)
}

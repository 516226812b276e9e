package slp

import (
	"errors"
	"fmt"
	"net/netip"
)

// MulticastGroupV4 is the SLPv2 IPv4 multicast group (spec.md §6,
// RFC 2608 §11).
const MulticastGroupV4 = "239.255.255.253"

// MulticastGroupV6Prefix is the SLPv2 IPv6 multicast group family;
// scope X is substituted by the caller (RFC 2608 §11: ff0X::116).
const MulticastGroupV6Prefix = "ff0%s::116"

// Port is the UDP and TCP port SLPv2 agents listen on (spec.md §6).
const Port uint16 = 427

// IsMulticast reports whether addr is an IPv4 or IPv6 multicast address.
// Any multicast group matches, not only the SLP groups.
func IsMulticast(addr netip.Addr) bool {
	return addr.IsMulticast()
}

// IsLocal reports whether addr is a loopback, unspecified or invalid
// (zero) address.
func IsLocal(addr netip.Addr) bool {
	return addr.IsLoopback() || !addr.IsValid() || addr.IsUnspecified()
}

// ErrSourceFamilyMismatch indicates a SrvDeReg's source address does not
// share an IP address family with the registration it targets, the check
// named checkSourceAddr in spec.md §6.
var ErrSourceFamilyMismatch = errors.New("slp: source address family mismatch")

// CheckSourceFamily verifies peer and original share an IP address
// family, returning ErrSourceFamilyMismatch otherwise.
func CheckSourceFamily(peer, original netip.Addr) error {
	if peer.Is4() != original.Is4() {
		return fmt.Errorf("peer %s vs registered %s: %w", peer, original, ErrSourceFamilyMismatch)
	}
	return nil
}

// broadcastAddrV4 is the IPv4 limited broadcast address substituted for
// the multicast group when broadcast-only mode is in effect.
var broadcastAddrV4 = netip.MustParseAddr("255.255.255.255")

// SubstituteBroadcast returns group unchanged, or the IPv4 limited
// broadcast address in its place when broadcastOnly is set (spec.md §6
// "isBroadcastOnly": "replaces multicast with subnet broadcast"). IPv6
// has no broadcast concept, so IPv6 groups are never substituted.
func SubstituteBroadcast(group netip.Addr, broadcastOnly bool) netip.Addr {
	if !broadcastOnly || !group.Is4() {
		return group
	}
	return broadcastAddrV4
}

// MulticastGroup returns the SLPv2 multicast group address for the given
// address family, selected to match peer (IPv4 vs IPv6).
func MulticastGroup(peer netip.Addr) netip.Addr {
	if peer.Is4() || peer.Is4In6() {
		addr, _ := netip.ParseAddr(MulticastGroupV4)
		return addr
	}
	// RFC 2608 §11: site-local scope (5) is the commonly deployed default.
	addr, _ := netip.ParseAddr("ff05::116")
	return addr
}

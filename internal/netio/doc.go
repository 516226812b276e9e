// Package netio provides raw socket abstractions for SLPv2 message I/O.
//
// The Linux-specific implementation uses golang.org/x/sys/unix for UDP
// listeners bound to port 427, joined to the SLP multicast group when
// acting as a convergence-request recipient (RFC 2608 §1, spec.md §6).
package netio

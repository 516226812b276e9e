package commands

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/urbasus/goslp/internal/slp"
)

// slpPort is the well-known SLPv2 port (RFC 2608 §8).
const slpPort = 427

// ErrNoReply is returned when a unicast request receives no matching
// reply before the timeout.
var ErrNoReply = errors.New("slptool: no reply received")

var xidCounter uint16

// nextXID returns a process-unique transaction id for outbound requests.
func nextXID() uint16 {
	xidCounter++
	return xidCounter
}

// roundTrip sends msg to dst from an ephemeral UDP socket and collects
// replies carrying a matching XID until timeout elapses or maxReplies is
// reached (0 means collect until the timeout, used for multicast
// convergence; 1 is used for a single DA's unicast SrvAck).
func roundTrip(dst string, msg slp.Message, timeout time.Duration, maxReplies int) ([]slp.Message, error) {
	payload, err := slp.Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("open socket: %w", err)
	}
	defer conn.Close()

	raddr, err := net.ResolveUDPAddr("udp4", dst)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dst, err)
	}
	if _, err := conn.WriteToUDP(payload, raddr); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 65535)
	var replies []slp.Message

	for maxReplies == 0 || len(replies) < maxReplies {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return replies, fmt.Errorf("set read deadline: %w", err)
		}

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return replies, nil
			}
			return replies, fmt.Errorf("read reply: %w", err)
		}

		reply, err := slp.Decode(buf[:n])
		if err != nil || reply.Header.XID != msg.Header.XID {
			continue // malformed or unrelated packet on the wire, ignore
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

// multicastDest returns the SLPv2 multicast group address, port 427.
func multicastDest() string {
	return fmt.Sprintf("%s:%d", slp.MulticastGroupV4, slpPort)
}

// unicastDest appends the SLPv2 port to a bare host, unless the caller
// already included one.
func unicastDest(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return fmt.Sprintf("%s:%d", host, slpPort)
}

func newHeader(function slp.FunctionID, flags slp.Flags) slp.Header {
	return slp.Header{
		Version:     slp.Version,
		Function:    function,
		Flags:       flags,
		XID:         nextXID(),
		LanguageTag: "en",
	}
}

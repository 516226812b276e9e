package slp

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"
)

// Sentinel errors for dispatcher operations (spec.md §4.7).
var (
	// ErrNetworkTimedOut indicates a unicast request exhausted its
	// retransmit budget without a reply.
	ErrNetworkTimedOut = errors.New("slp: network timed out")

	// ErrRequestCancelled indicates Cancel was called on an in-flight
	// request.
	ErrRequestCancelled = errors.New("slp: request cancelled")
)

// DispatchConfig holds the tunables named in spec.md §4.7.
type DispatchConfig struct {
	// MCInitialWait is the wait before the first multicast retransmit
	// (default 3s).
	MCInitialWait time.Duration

	// MCMaxWait is the cumulative wait ceiling after which multicast
	// convergence terminates (default 15s).
	MCMaxWait time.Duration

	// UnicastRetry is the cumulative wait ceiling after which a unicast
	// request fails with ErrNetworkTimedOut.
	UnicastRetry time.Duration

	// MaxPDUSize bounds how large a previous-responder list may grow
	// before it can no longer fit in one PDU (spec.md §4.7: "the list
	// itself becomes the termination signal").
	MaxPDUSize int

	// IsBroadcastOnly, if true, makes DoMulticast substitute the IPv4
	// limited broadcast address for the requested multicast group, for
	// networks without multicast routing (spec.md §6 "isBroadcastOnly").
	IsBroadcastOnly bool

	// TraceDrop logs every reply the dispatcher drops: an unmatched xid,
	// or a full reply buffer during multicast convergence (spec.md §6
	// "traceDrop").
	TraceDrop bool
}

// DefaultDispatchConfig returns the RFC 2608-recommended defaults.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		MCInitialWait: 3 * time.Second,
		MCMaxWait:     15 * time.Second,
		UnicastRetry:  15 * time.Second,
		MaxPDUSize:    1400,
	}
}

// Sender abstracts the network write side so the dispatcher can be
// exercised without a live socket.
type Sender interface {
	SendUnicast(ctx context.Context, dst netip.Addr, payload []byte) error
	SendMulticast(ctx context.Context, group netip.Addr, payload []byte) error
}

// Reply is one inbound response observed by the dispatcher for an
// in-flight request.
type Reply struct {
	From    netip.Addr
	Message Message
}

// inFlight tracks one outstanding request (spec.md §3 "Dispatcher
// state").
type inFlight struct {
	xid         uint16
	fn          FunctionID
	target      netip.Addr // unicast peer, or the multicast group
	multicast   bool
	prevRespond map[string]struct{}
	replies     chan Reply
	done        chan struct{}
	cancel      context.CancelFunc
}

// Dispatcher drives retransmission, multicast convergence, and reply
// fan-in for outbound requests (spec.md §4.7). It owns no registration or
// Known-DA state; Agent wires those together.
type Dispatcher struct {
	cfg    DispatchConfig
	sender Sender
	logger *slog.Logger

	mu       sync.Mutex
	requests map[uint16]*inFlight
}

// NewDispatcher returns a Dispatcher that sends through sender using cfg.
// logger may be nil, in which case slog.Default() is used; when
// cfg.TraceDrop is set it logs every reply dropped for lack of a
// matching in-flight request (spec.md §6 "traceDrop").
func NewDispatcher(sender Sender, cfg DispatchConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:      cfg,
		sender:   sender,
		logger:   logger.With(slog.String("component", "dispatch")),
		requests: make(map[uint16]*inFlight),
	}
}

// DoUnicast sends payload to dst and retransmits with exponential backoff
// (1s, 2s, 4s, ...) until either a reply with matching xid arrives or the
// cumulative wait reaches cfg.UnicastRetry, at which point it returns
// ErrNetworkTimedOut (spec.md §4.7 "Unicast requests retransmit with
// exponential backoff").
func (d *Dispatcher) DoUnicast(ctx context.Context, xid uint16, fn FunctionID, dst netip.Addr, payload []byte) (Message, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req := &inFlight{
		xid: xid, fn: fn, target: dst,
		replies: make(chan Reply, 1),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	d.register(req)
	defer d.unregister(xid)

	wait := time.Second
	elapsed := time.Duration(0)
	for {
		if err := d.sender.SendUnicast(ctx, dst, payload); err != nil {
			return Message{}, err
		}
		timer := time.NewTimer(wait)
		select {
		case r := <-req.replies:
			timer.Stop()
			return r.Message, nil
		case <-timer.C:
			elapsed += wait
			if elapsed >= d.cfg.UnicastRetry {
				return Message{}, ErrNetworkTimedOut
			}
			wait *= 2
		case <-ctx.Done():
			timer.Stop()
			return Message{}, ErrRequestCancelled
		}
	}
}

// MulticastResult is the aggregated outcome of a multicast convergence
// round (spec.md §4.7).
type MulticastResult struct {
	Replies []Reply // deduplicated by (sender, URL set), arrival order preserved
}

// DoMulticast implements the convergence algorithm from spec.md §4.7:
// send to the SLP multicast group with an empty previous-responder list,
// wait MCInitialWait; on each reply append the sender to the
// previous-responder list, merge the payload, and reset the inactivity
// timer; retransmit with the grown list after each quiescent interval,
// doubling the wait up to MCMaxWait; terminate when the cumulative wait
// reaches MCMaxWait or the previous-responder list would no longer fit in
// one PDU.
func (d *Dispatcher) DoMulticast(ctx context.Context, xid uint16, fn FunctionID, group netip.Addr, buildPayload func(prList string) ([]byte, error)) (MulticastResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req := &inFlight{
		xid: xid, fn: fn, target: group, multicast: true,
		prevRespond: make(map[string]struct{}),
		replies:     make(chan Reply, 64),
		done:        make(chan struct{}),
		cancel:      cancel,
	}
	d.register(req)
	defer d.unregister(xid)

	var result MulticastResult
	seen := make(map[string]struct{})
	target := d.multicastTarget(group)

	wait := d.cfg.MCInitialWait
	elapsed := time.Duration(0)
	for {
		payload, err := buildPayload(joinPRList(req.prevRespond))
		if err != nil {
			return MulticastResult{}, err
		}
		if err := d.sender.SendMulticast(ctx, target, payload); err != nil {
			return MulticastResult{}, err
		}

		deadline := time.NewTimer(wait)
		quiescent := false
		for !quiescent {
			select {
			case r := <-req.replies:
				key := r.From.String()
				req.prevRespond[key] = struct{}{}
				dedupKey := key
				if r.Message.SrvRply != nil {
					urls := make([]string, 0, len(r.Message.SrvRply.URLs))
					for _, u := range r.Message.SrvRply.URLs {
						urls = append(urls, u.URL)
					}
					sort.Strings(urls)
					dedupKey += "|" + strings.Join(urls, ",")
				}
				if _, dup := seen[dedupKey]; !dup {
					seen[dedupKey] = struct{}{}
					result.Replies = append(result.Replies, r)
				}
				if !deadline.Stop() {
					<-deadline.C
				}
				deadline.Reset(wait)
			case <-deadline.C:
				quiescent = true
			case <-ctx.Done():
				return result, ErrRequestCancelled
			}
		}

		elapsed += wait
		if elapsed >= d.cfg.MCMaxWait {
			return result, nil
		}
		if prListEncodedLen(req.prevRespond) >= d.cfg.MaxPDUSize {
			return result, nil
		}
		wait *= 2
		if wait > d.cfg.MCMaxWait-elapsed {
			wait = d.cfg.MCMaxWait - elapsed
		}
	}
}

// multicastTarget returns the address DoMulticast actually sends to:
// group unchanged, or the IPv4 limited broadcast address in its place
// when the dispatcher is configured broadcast-only (spec.md §6
// "isBroadcastOnly").
func (d *Dispatcher) multicastTarget(group netip.Addr) netip.Addr {
	return SubstituteBroadcast(group, d.cfg.IsBroadcastOnly)
}

// Deliver routes an inbound reply to its matching in-flight request, if
// any. Unmatched replies (unknown xid, already completed) are dropped —
// this is the only place the dispatcher touches inbound traffic.
func (d *Dispatcher) Deliver(from netip.Addr, msg Message) {
	d.mu.Lock()
	req, ok := d.requests[msg.Header.XID]
	d.mu.Unlock()
	if !ok {
		if d.cfg.TraceDrop {
			d.logger.Debug("dropped reply: no matching in-flight request",
				slog.String("from", from.String()), slog.Uint64("xid", uint64(msg.Header.XID)))
		}
		return
	}
	select {
	case req.replies <- Reply{From: from, Message: msg}:
	default:
		// Reply buffer full: the convergence loop is still processing a
		// backlog; drop rather than block the event loop (spec.md §5).
		if d.cfg.TraceDrop {
			d.logger.Debug("dropped reply: buffer full",
				slog.String("from", from.String()), slog.Uint64("xid", uint64(msg.Header.XID)))
		}
	}
}

// Cancel stops retransmission and releases any accumulated replies for
// xid (spec.md §4.7 "Cancellation").
func (d *Dispatcher) Cancel(xid uint16) {
	d.mu.Lock()
	req, ok := d.requests[xid]
	d.mu.Unlock()
	if ok {
		req.cancel()
	}
}

func (d *Dispatcher) register(req *inFlight) {
	d.mu.Lock()
	d.requests[req.xid] = req
	d.mu.Unlock()
}

func (d *Dispatcher) unregister(xid uint16) {
	d.mu.Lock()
	delete(d.requests, xid)
	d.mu.Unlock()
}

// joinPRList renders the previous-responder set as the comma-separated
// string carried in outgoing PRList fields.
func joinPRList(prevRespond map[string]struct{}) string {
	if len(prevRespond) == 0 {
		return ""
	}
	parts := make([]string, 0, len(prevRespond))
	for addr := range prevRespond {
		parts = append(parts, addr)
	}
	return strings.Join(parts, ",")
}

// prListEncodedLen estimates the wire size the previous-responder list
// would occupy, used to decide when it can no longer fit in one PDU
// (spec.md §4.7).
func prListEncodedLen(prevRespond map[string]struct{}) int {
	return stringEncodedLen(joinPRList(prevRespond))
}

package slp

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"
)

// AgentRole names the roles an Agent may combine (spec.md §1: "a Service
// Agent (SA), User Agent (UA) client, and slpd daemon that can also act
// as a DA").
type AgentRole uint8

// Agent roles, combinable as a bitmask.
const (
	RoleSA AgentRole = 1 << iota
	RoleUA
	RoleDA
)

// Has reports whether r includes role.
func (r AgentRole) Has(role AgentRole) bool { return r&role != 0 }

// Config bundles the external property set from spec.md §6 into the
// structured object the core consumes, read once at start.
type Config struct {
	UseScopes       string
	DAAddresses     []netip.Addr
	IsBroadcastOnly bool
	MTU             int
	TraceMsg        bool
	TraceDrop       bool
	TraceReg        bool
	TraceDATraffic  bool
	SecurityEnabled bool
	CheckSourceAddr bool
	Heartbeat       time.Duration
}

// Agent bundles every piece of mutable state a handler touches —
// registration database, Known-DA tracker, dispatcher, config, and
// logger — into one explicit context passed to every handler, replacing
// the source's file-scope globals `G_KnownDAListHead`, `G_SlpdLogFile`,
// `G_SlpdProperty` (spec.md §9 design note).
type Agent struct {
	Role   AgentRole
	Config Config
	Logger *slog.Logger

	DB         *Database
	KnownDAs   *KnownDATracker
	Dispatcher *Dispatcher
	Keys       AuthKeyStore

	bootTime uint32
}

// NewAgent constructs an Agent wired with fresh database, tracker, and
// dispatcher instances.
func NewAgent(role AgentRole, cfg Config, logger *slog.Logger, sender Sender, keys AuthKeyStore, bootTime uint32) *Agent {
	dispatchCfg := DefaultDispatchConfig()
	dispatchCfg.IsBroadcastOnly = cfg.IsBroadcastOnly
	dispatchCfg.TraceDrop = cfg.TraceDrop

	return &Agent{
		Role:       role,
		Config:     cfg,
		Logger:     logger.With(slog.String("component", "agent")),
		DB:         NewDatabase(),
		KnownDAs:   NewKnownDATracker(cfg.Heartbeat),
		Dispatcher: NewDispatcher(sender, dispatchCfg, logger),
		Keys:       keys,
		bootTime:   bootTime,
	}
}

// HandleInbound maps a parsed message from peer to a database or
// dispatcher operation and produces the reply to send back, if any
// (spec.md §2, component I). A nil Message return means no reply is
// sent (e.g. a reply PDU delivered to the dispatcher, or a dropped parse
// error already logged by the caller).
func (a *Agent) HandleInbound(ctx context.Context, peer netip.Addr, msg Message, now time.Time) (*Message, error) {
	if a.Config.TraceMsg {
		a.Logger.Debug("inbound message",
			slog.String("peer", peer.String()),
			slog.Any("function", msg.Header.Function),
			slog.Uint64("xid", uint64(msg.Header.XID)),
		)
	}
	if a.Config.TraceDATraffic && msg.Header.Function == FuncDAAdvert {
		a.Logger.Debug("DA traffic: inbound DAAdvert", slog.String("peer", peer.String()))
	}

	reply, err := a.dispatchInbound(ctx, peer, msg, now)

	if a.Config.TraceMsg && reply != nil {
		a.Logger.Debug("outbound reply",
			slog.String("peer", peer.String()),
			slog.Any("function", reply.Header.Function),
			slog.Uint64("xid", uint64(reply.Header.XID)),
		)
	}
	return reply, err
}

func (a *Agent) dispatchInbound(ctx context.Context, peer netip.Addr, msg Message, now time.Time) (*Message, error) {
	if reply := a.checkMandatoryExtensions(msg); reply != nil {
		return reply, nil
	}
	switch msg.Header.Function {
	case FuncSrvRqst:
		return a.handleSrvRqst(peer, msg, now)
	case FuncSrvReg:
		return a.handleSrvReg(peer, msg, now)
	case FuncSrvDeReg:
		return a.handleSrvDeReg(peer, msg, now)
	case FuncAttrRqst:
		return a.handleAttrRqst(peer, msg, now)
	case FuncDAAdvert:
		a.handleDAAdvert(msg, now)
		return nil, nil
	case FuncSrvRply, FuncAttrRply, FuncSrvAck, FuncSrvTypeRply:
		a.Dispatcher.Deliver(peer, msg)
		return nil, nil
	default:
		a.Logger.WarnContext(ctx, "unsupported function id", slog.Any("function", msg.Header.Function))
		return errorReply(msg, ErrMsgNotSupported), nil
	}
}

func (a *Agent) handleSrvRqst(peer netip.Addr, msg Message, now time.Time) (*Message, error) {
	req := msg.SrvRqst
	if req.ServiceType == "service:directory-agent" {
		return nil, nil // not answered: this agent originates no DAAdvert
	}

	entries, err := a.DB.FindByType(req.ServiceType, req.ScopeList, req.Predicate, now)
	if err != nil {
		return errorReply(msg, ErrParseError), nil
	}

	urls := make([]URLEntry, 0, len(entries))
	for _, e := range entries {
		urls = append(urls, e.Reg.URL)
	}
	reply := msg
	reply.Header.Function = FuncSrvRply
	kept, overflowed := truncateURLsToMTU(reply.Header, urls, a.Config.MTU)
	if overflowed {
		reply.Header.Flags |= FlagOverflow
	}
	reply.SrvRply = &SrvRplyBody{ErrorCode: ErrNone, URLs: kept}
	return &reply, nil
}

func (a *Agent) handleSrvReg(peer netip.Addr, msg Message, now time.Time) (*Message, error) {
	body := msg.SrvReg
	if len(splitList(body.ScopeList)) == 0 || body.ServiceType == "" {
		return ackReply(msg, ErrInvalidRegistration), nil
	}
	if a.Config.SecurityEnabled && len(body.AttrAuth) == 0 {
		return ackReply(msg, ErrAuthenticationAbsent), nil
	}

	reg := Registration{
		Reg:       *body,
		Source:    SourceRemote,
		PeerAddr:  peer,
		Inserted:  now,
		ExpiresAt: now.Add(time.Duration(body.URL.Lifetime) * time.Second),
	}
	fresh := msg.Header.Flags&FlagFresh != 0
	if err := a.DB.Insert(reg, fresh); err != nil {
		return ackReply(msg, ErrInvalidUpdate), nil
	}
	return ackReply(msg, ErrNone), nil
}

func (a *Agent) handleSrvDeReg(peer netip.Addr, msg Message, now time.Time) (*Message, error) {
	body := msg.SrvDeReg
	if err := a.DB.Deregister(a.Keys, peer, a.Config.CheckSourceAddr, body.URL.URL, body.ScopeList, body.URL.Auth, now); err != nil {
		return ackReply(msg, ErrAuthenticationFailed), nil
	}
	return ackReply(msg, ErrNone), nil
}

func (a *Agent) handleAttrRqst(peer netip.Addr, msg Message, now time.Time) (*Message, error) {
	body := msg.AttrRqst
	attrLists, err := a.DB.FindAttrs(body.URLOrType, body.ScopeList, body.TagList, now)
	if err != nil {
		return errorReply(msg, ErrParseError), nil
	}
	reply := msg
	reply.Header.Function = FuncAttrRply
	merged := mergeAttrLists(attrLists)
	kept, overflowed := truncateAttrListToMTU(reply.Header, merged, a.Config.MTU)
	if overflowed {
		reply.Header.Flags |= FlagOverflow
	}
	reply.AttrRply = &AttrRplyBody{ErrorCode: ErrNone, AttrList: kept}
	return &reply, nil
}

func (a *Agent) handleDAAdvert(msg Message, now time.Time) {
	body := msg.DAAdvert
	if a.Config.SecurityEnabled && len(body.Auth) == 0 {
		return
	}
	addr, err := netip.ParseAddr(extractAddrFromURL(body.URL))
	if err != nil {
		return
	}
	a.KnownDAs.Observe(body.ErrorCode, addr, body.BootTime, body.ScopeList, body.URL, body.SPIList, now)
}

// mergeAttrLists concatenates per-entry attribute lists into a single
// comma-separated list, as AttrRply carries one combined list
// (spec.md §4.2).
func mergeAttrLists(lists []string) string {
	out := ""
	for _, l := range lists {
		if l == "" {
			continue
		}
		if out != "" {
			out += ","
		}
		out += l
	}
	return out
}

// truncateURLsToMTU drops trailing URL entries so the encoded SrvRply
// fits within mtu bytes, reporting whether anything was dropped
// (spec.md §4.2 "Overflow handling": "the reply is truncated at a
// PDU-body boundary"). mtu <= 0 disables the check.
func truncateURLsToMTU(header Header, urls []URLEntry, mtu int) ([]URLEntry, bool) {
	if mtu <= 0 {
		return urls, false
	}
	total := headerEncodedLen(header) + srvRplyEncodedLen(SrvRplyBody{})
	for i, u := range urls {
		total += urlEntryEncodedLen(u)
		if total > mtu {
			return urls[:i], true
		}
	}
	return urls, false
}

// truncateAttrListToMTU drops trailing comma-separated attributes so the
// encoded AttrRply fits within mtu bytes, reporting whether anything was
// dropped (spec.md §4.2 "Overflow handling"). mtu <= 0 disables the
// check.
func truncateAttrListToMTU(header Header, attrList string, mtu int) (string, bool) {
	if mtu <= 0 {
		return attrList, false
	}
	full := headerEncodedLen(header) + attrRplyEncodedLen(AttrRplyBody{AttrList: attrList})
	if full <= mtu {
		return attrList, false
	}

	var kept []string
	for _, attr := range splitList(attrList) {
		candidate := strings.Join(append(append([]string(nil), kept...), attr), ",")
		n := headerEncodedLen(header) + attrRplyEncodedLen(AttrRplyBody{AttrList: candidate})
		if n > mtu {
			break
		}
		kept = append(kept, attr)
	}
	return strings.Join(kept, ","), true
}

// extractAddrFromURL pulls the host portion out of a service: URL well
// enough for DA bootstamp tracking (e.g. "service:directory-agent://
// 10.0.0.1" -> "10.0.0.1"). Malformed URLs are the caller's problem to
// reject via netip.ParseAddr's error.
func extractAddrFromURL(url string) string {
	idx := lastIndexByte(url, '/')
	if idx < 0 {
		return url
	}
	return url[idx+1:]
}

func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}

// checkMandatoryExtensions returns a VER_NOT_SUPPORTED reply when msg
// carries an extension whose ID falls in the mandatory range (spec.md
// §4.2: "Unknown extensions with the mandatory ID range must cause a
// VER_NOT_SUPPORTED error reply"). This agent recognizes no extensions,
// so any mandatory-range extension is by definition unknown; non-
// mandatory unknown extensions are silently skipped.
func (a *Agent) checkMandatoryExtensions(msg Message) *Message {
	for _, ext := range msg.Extensions {
		if ext.IsMandatory() {
			return errorReply(msg, ErrVerNotSupported)
		}
	}
	return nil
}

// errorReply builds a reply of the function kind matching msg's request,
// carrying only an error code (used for reply kinds whose body is just
// {ErrorCode}).
func errorReply(msg Message, code ErrorCode) *Message {
	reply := msg
	switch msg.Header.Function {
	case FuncSrvRqst:
		reply.Header.Function = FuncSrvRply
		reply.SrvRply = &SrvRplyBody{ErrorCode: code}
	case FuncAttrRqst:
		reply.Header.Function = FuncAttrRply
		reply.AttrRply = &AttrRplyBody{ErrorCode: code}
	case FuncSrvTypeRqst:
		reply.Header.Function = FuncSrvTypeRply
		reply.SrvTypeRply = &SrvTypeRplyBody{ErrorCode: code}
	default:
		reply.Header.Function = FuncSrvAck
		reply.SrvAck = &SrvAckBody{ErrorCode: code}
	}
	return &reply
}

// ackReply builds a SrvAck reply (used by SrvReg/SrvDeReg handlers).
func ackReply(msg Message, code ErrorCode) *Message {
	reply := msg
	reply.Header.Function = FuncSrvAck
	reply.SrvAck = &SrvAckBody{ErrorCode: code}
	return &reply
}

// BootTime returns the agent's own boot epoch-seconds, advertised in
// DAAdvert messages this agent originates when acting as a DA.
func (a *Agent) BootTime() uint32 { return a.bootTime }

// Age runs the registration database and Known-DA liveness sweeps;
// callers invoke this from the event loop's timer wheel (spec.md §5).
func (a *Agent) Age(now time.Time) {
	removed := a.DB.Age(now)
	if removed > 0 && a.Config.TraceReg {
		a.Logger.Info("aged out expired registrations", slog.Int("count", removed))
	}
	a.KnownDAs.SweepLiveness(now)
}

// Reregister pushes every locally-sourced registration in the database to
// addr, draining the Known-DA tracker's re-register queue item by item.
// The caller supplies send because the wire send itself depends on the
// netio layer, which Agent does not import (spec.md §2 data-flow: I ->
// {F, G, H}, not I -> netio directly).
func (a *Agent) Reregister(ctx context.Context, send func(ctx context.Context, addr netip.Addr, msg Message) error) error {
	for _, item := range a.KnownDAs.DrainReregisterQueue() {
		if a.Config.TraceDATraffic {
			a.Logger.Debug("DA traffic: re-registering with DA", slog.String("da", item.Addr.String()))
		}
		for _, reg := range a.DB.Snapshot() {
			if reg.Source != SourceLocal && reg.Source != SourceStatic {
				continue
			}
			msg := Message{
				Header: Header{Version: Version, Function: FuncSrvReg, Flags: FlagFresh, LanguageTag: "en"},
				SrvReg: &reg.Reg,
			}
			if err := send(ctx, item.Addr, msg); err != nil {
				return fmt.Errorf("reregister to %s: %w", item.Addr, err)
			}
		}
	}
	return nil
}

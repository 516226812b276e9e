package slp

import (
	"net/netip"
	"sync"
	"time"
)

// KnownDA is one tracked Directory Agent (spec.md §3: "Owns: DA IPv4/IPv6
// address, boot timestamp, scope list, URL string, optional SPI list.
// Identity = address").
type KnownDA struct {
	Addr      netip.Addr
	BootTime  uint32
	ScopeList string
	URL       string
	SPIList   string
	LastSeen  time.Time

	// unreachable marks a DA that has missed 3x heartbeat advertisements
	// (spec.md §4.6 "Liveness"); it is skipped by forwarding but not yet
	// evicted.
	unreachable bool
}

// ReregisterItem is a unit of work enqueued when a DA is discovered or
// restarts: "push all our locally-owned registrations to this DA"
// (spec.md §4.6).
type ReregisterItem struct {
	Addr netip.Addr
}

// KnownDATracker maintains the fleet of Directory Agents this agent knows
// about, keyed by address so the non-advancing-linked-list traversal bug
// named in spec.md §9 cannot occur: a Go map has no cursor to forget to
// advance.
type KnownDATracker struct {
	mu             sync.Mutex
	entries        map[netip.Addr]*KnownDA
	reregisterQ    []ReregisterItem
	heartbeat      time.Duration
}

// NewKnownDATracker returns an empty tracker. heartbeat is the expected
// DAAdvert interval used to derive the unreachable/evict thresholds
// (spec.md §4.6 "Liveness": 3x heartbeat to mark unreachable, a further
// 2x to evict).
func NewKnownDATracker(heartbeat time.Duration) *KnownDATracker {
	return &KnownDATracker{entries: make(map[netip.Addr]*KnownDA), heartbeat: heartbeat}
}

// Observe applies the update rule from spec.md §4.6 to an advertisement
// carrying (addr, bootstamp, errorcode, scopes, url, spiList), enqueuing a
// re-register work item whenever this agent must assume the DA doesn't
// already have our registrations.
func (t *KnownDATracker) Observe(errorCode ErrorCode, addr netip.Addr, bootTime uint32, scopeList, url, spiList string, now time.Time) {
	if errorCode != ErrNone {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.entries[addr]
	if !ok {
		t.entries[addr] = &KnownDA{
			Addr: addr, BootTime: bootTime, ScopeList: scopeList,
			URL: url, SPIList: spiList, LastSeen: now,
		}
		t.reregisterQ = append(t.reregisterQ, ReregisterItem{Addr: addr})
		return
	}

	existing.LastSeen = now
	existing.unreachable = false
	if bootTime > existing.BootTime {
		existing.BootTime = bootTime
		existing.ScopeList = scopeList
		existing.URL = url
		existing.SPIList = spiList
		t.reregisterQ = append(t.reregisterQ, ReregisterItem{Addr: addr})
	}
	// bootTime <= existing.BootTime: already in sync, no re-register.
}

// DrainReregisterQueue removes and returns every pending re-register work
// item.
func (t *KnownDATracker) DrainReregisterQueue() []ReregisterItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	items := t.reregisterQ
	t.reregisterQ = nil
	return items
}

// SweepLiveness marks DAs unreachable after 3x heartbeat of silence and
// evicts them after a further 2x heartbeat (spec.md §4.6 "Liveness").
func (t *KnownDATracker) SweepLiveness(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	unreachableAfter := 3 * t.heartbeat
	evictAfter := unreachableAfter + 2*t.heartbeat
	for addr, e := range t.entries {
		age := now.Sub(e.LastSeen)
		switch {
		case age >= evictAfter:
			delete(t.entries, addr)
		case age >= unreachableAfter:
			e.unreachable = true
		}
	}
}

// DASForScope returns the DAs whose scope list contains scope, ordered by
// bootstamp descending — stable (longer-running) DAs first
// (spec.md §4.6 "Scope coverage"). Unreachable DAs are excluded.
func (t *KnownDATracker) DASForScope(scope string) []KnownDA {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []KnownDA
	for _, e := range t.entries {
		if e.unreachable {
			continue
		}
		if scopesIntersect(scope, canonicalizeScopes(e.ScopeList)) {
			out = append(out, *e)
		}
	}
	sortKnownDAsByBootTimeDesc(out)
	return out
}

// sortKnownDAsByBootTimeDesc sorts in place by BootTime descending,
// breaking ties by address string for determinism.
func sortKnownDAsByBootTimeDesc(das []KnownDA) {
	for i := 1; i < len(das); i++ {
		for j := i; j > 0 && less(das[j], das[j-1]); j-- {
			das[j], das[j-1] = das[j-1], das[j]
		}
	}
}

func less(a, b KnownDA) bool {
	if a.BootTime != b.BootTime {
		return a.BootTime > b.BootTime
	}
	return a.Addr.String() < b.Addr.String()
}

// Snapshot returns a copy of every known DA, for introspection.
func (t *KnownDATracker) Snapshot() []KnownDA {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]KnownDA, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	return out
}

// Len reports the number of tracked DAs.
func (t *KnownDATracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

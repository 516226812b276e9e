package slp

import (
	"errors"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"
)

// SourceTag classifies how a registered service entry entered the
// database (spec.md §3).
type SourceTag uint8

// Registration source tags.
const (
	SourceUnknown SourceTag = iota
	SourceRemote            // learned from a network SrvReg
	SourceLocal             // registered by a co-located SA over loopback
	SourceStatic            // loaded from the static registration file
)

// Sentinel errors for registration database operations (spec.md §4.5).
var (
	// ErrRegistrationNotFound indicates Deregister found no matching
	// identity.
	ErrRegistrationNotFound = errors.New("slp: registration not found")
)

// Registration is one stored service entry (spec.md §3: "Owns: message
// buffer, parsed SrvReg body, source tag, peer address, insertion/expiry
// timestamps").
type Registration struct {
	Reg       SrvRegBody
	Source    SourceTag
	PeerAddr  netip.Addr
	Inserted  time.Time
	ExpiresAt time.Time
}

// identity returns the registration's identity tuple: URL plus the
// scope list after canonicalization (spec.md §3: "Identity = (service-URL
// bytes, scope-list after canonicalization)").
func (r Registration) identity() regIdentity {
	return regIdentity{url: r.Reg.URL.URL, scopes: canonicalizeScopes(r.Reg.ScopeList)}
}

// regIdentity is the map key a Registration is stored and looked up
// under.
type regIdentity struct {
	url    string
	scopes string
}

// canonicalizeScopes lower-cases each comma-separated scope, trims
// surrounding whitespace, drops empties, sorts, and rejoins — so that
// "a, B,a" and "b,a" compare equal (spec.md §3).
func canonicalizeScopes(scopeList string) string {
	parts := splitList(scopeList)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

// splitList splits a comma-separated SLP list field into its elements,
// trimming whitespace around each and dropping empty elements produced by
// an empty input string.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// scopesIntersect reports whether any scope in the canonical list a
// matches any scope in b.
func scopesIntersect(a, b string) bool {
	if a == "" || b == "" {
		return true // an empty scope list means "unscoped", matches anything
	}
	bSet := make(map[string]struct{})
	for _, s := range splitList(b) {
		bSet[strings.ToLower(s)] = struct{}{}
	}
	for _, s := range splitList(a) {
		if _, ok := bSet[strings.ToLower(s)]; ok {
			return true
		}
	}
	return false
}

// Database is the in-memory registration store (spec.md §4.5). It is
// guarded by a mutex rather than being owned by a single event-loop
// goroutine, so the admin HTTP API can query it concurrently with the
// agent's own event loop (spec.md §5 scopes the no-locking rule to the
// core dispatch loop's own state, not to read-only introspection).
type Database struct {
	mu      sync.RWMutex
	entries map[regIdentity]*Registration
}

// NewDatabase returns an empty registration database.
func NewDatabase() *Database {
	return &Database{entries: make(map[regIdentity]*Registration)}
}

// Insert applies the update rule from spec.md §4.5: a brand-new identity
// is always accepted; an existing identity is replaced only when the new
// entry carries the FRESH flag, or its expiry is strictly newer than the
// stored one, or its authenticator is strictly newer. Otherwise the
// insert is rejected with ErrRegistrationUpdateRejected.
func (d *Database) Insert(reg Registration, fresh bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := reg.identity()
	existing, ok := d.entries[id]
	if !ok {
		d.entries[id] = &reg
		return nil
	}

	if fresh || reg.ExpiresAt.After(existing.ExpiresAt) || authIsNewer(reg.Reg.AttrAuth, existing.Reg.AttrAuth) {
		d.entries[id] = &reg
		return nil
	}
	return ErrRegistrationUpdateRejected
}

// authIsNewer reports whether any block in next has a strictly greater
// timestamp than every block in prev sharing its SPI. An empty next never
// counts as newer.
func authIsNewer(next, prev []AuthBlock) bool {
	if len(next) == 0 {
		return false
	}
	prevBySPI := make(map[string]uint32, len(prev))
	for _, b := range prev {
		prevBySPI[b.SPI] = b.Timestamp
	}
	for _, b := range next {
		if ts, ok := prevBySPI[b.SPI]; !ok || b.Timestamp > ts {
			return true
		}
	}
	return false
}

// Deregister removes the entry identified by (url, scopeList). When
// checkSourceAddr is set, peer must share the registration's stored
// address family or the deregistration is refused with
// ErrSourceFamilyMismatch (spec.md §6 "checkSourceAddr"). If the stored
// entry carries an authenticator, auth must verify against the same SPI
// or the deregistration is refused with ErrDeregAuthenticationFailed
// (spec.md §4.5).
func (d *Database) Deregister(keys AuthKeyStore, peer netip.Addr, checkSourceAddr bool, url, scopeList string, auth []AuthBlock, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := regIdentity{url: url, scopes: canonicalizeScopes(scopeList)}
	existing, ok := d.entries[id]
	if !ok {
		return ErrRegistrationNotFound
	}
	if checkSourceAddr {
		if err := CheckSourceFamily(peer, existing.PeerAddr); err != nil {
			return err
		}
	}
	if len(existing.Reg.AttrAuth) > 0 {
		if err := verifyDeregAuth(keys, existing.Reg.AttrAuth, auth, url, now); err != nil {
			return err
		}
	}
	delete(d.entries, id)
	return nil
}

// verifyDeregAuth checks that auth contains a block, over an SPI the
// stored registration was signed with, that verifies against the URL.
func verifyDeregAuth(keys AuthKeyStore, stored, offered []AuthBlock, url string, now time.Time) error {
	storedSPIs := make(map[string]struct{}, len(stored))
	for _, b := range stored {
		storedSPIs[b.SPI] = struct{}{}
	}
	for _, b := range offered {
		if _, ok := storedSPIs[b.SPI]; !ok {
			continue
		}
		if err := VerifyURLEntry(keys, b, 0, url, now); err == nil {
			return nil
		}
	}
	return ErrDeregAuthenticationFailed
}

// ErrDeregAuthenticationFailed is returned by Deregister when the stored
// entry requires an authenticator and none of the offered blocks verify
// (spec.md §4.5, reply error code AUTHENTICATION_FAILED).
var ErrDeregAuthenticationFailed = errors.New("slp: deregistration authentication failed")

// FindByType returns all non-expired entries whose service-type prefix
// matches svcType (e.g. a request for "service:printer" matches a stored
// "service:printer:lpr") and whose scope list intersects scopeList; when
// predicate is non-empty it is additionally evaluated against the
// entry's attributes (spec.md §4.5, RFC 2608 §8).
func (d *Database) FindByType(svcType, scopeList, predicate string, now time.Time) ([]Registration, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Registration
	for _, e := range d.entries {
		if e.ExpiresAt.Before(now) {
			continue
		}
		if !strings.HasPrefix(e.Reg.ServiceType, svcType) {
			continue
		}
		if !scopesIntersect(canonicalizeScopes(scopeList), e.identity().scopes) {
			continue
		}
		if predicate != "" {
			match, err := EvaluatePredicate(predicate, e.Reg.AttrList)
			if err != nil {
				return nil, err
			}
			if !match {
				continue
			}
		}
		out = append(out, *e)
	}
	return out, nil
}

// FindAttrs returns the attribute list of entries matching urlOrType
// (an exact URL, or a service-type prefix) and scopeList, filtered to
// tagList when non-empty (spec.md §4.5, RFC 2614).
func (d *Database) FindAttrs(urlOrType, scopeList, tagList string, now time.Time) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var attrLists []string
	for _, e := range d.entries {
		if e.ExpiresAt.Before(now) {
			continue
		}
		if e.Reg.URL.URL != urlOrType && !strings.HasPrefix(e.Reg.ServiceType, urlOrType) {
			continue
		}
		if !scopesIntersect(canonicalizeScopes(scopeList), e.identity().scopes) {
			continue
		}
		attrLists = append(attrLists, filterAttrsByTags(e.Reg.AttrList, tagList))
	}
	return attrLists, nil
}

// filterAttrsByTags returns the subset of attrList's comma-separated
// attributes whose tag appears in tagList. An empty tagList means "all
// attributes".
func filterAttrsByTags(attrList, tagList string) string {
	if strings.TrimSpace(tagList) == "" {
		return attrList
	}
	wanted := make(map[string]struct{})
	for _, t := range splitList(tagList) {
		wanted[strings.ToLower(t)] = struct{}{}
	}
	var kept []string
	for _, attr := range splitList(attrList) {
		tag := attr
		if idx := strings.IndexByte(attr, '='); idx >= 0 {
			tag = attr[:idx]
		}
		tag = strings.TrimSpace(strings.TrimPrefix(tag, "("))
		if _, ok := wanted[strings.ToLower(tag)]; ok {
			kept = append(kept, attr)
		}
	}
	return strings.Join(kept, ",")
}

// Age removes every entry whose expiry has passed as of now
// (spec.md §4.5: "remove entries whose inserted + lifetime < now").
// Returns the number of entries removed.
func (d *Database) Age(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for id, e := range d.entries {
		if e.ExpiresAt.Before(now) {
			delete(d.entries, id)
			removed++
		}
	}
	return removed
}

// ReplaceSource atomically swaps every entry tagged with source for the
// entries in regs: each reg is inserted or refreshed, and any existing
// entry with the same source whose identity is absent from regs is
// removed. Used to reconcile the static registration file on load and on
// SIGHUP reload (spec.md §6 "Persisted state").
func (d *Database) ReplaceSource(source SourceTag, regs []Registration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	want := make(map[regIdentity]struct{}, len(regs))
	for _, reg := range regs {
		id := reg.identity()
		want[id] = struct{}{}
		d.entries[id] = &reg
	}

	for id, e := range d.entries {
		if e.Source != source {
			continue
		}
		if _, ok := want[id]; !ok {
			delete(d.entries, id)
		}
	}
}

// Len reports the number of currently stored entries, expired or not;
// used by the admin introspection API and tests.
func (d *Database) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Snapshot returns a copy of every stored entry, for introspection.
func (d *Database) Snapshot() []Registration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Registration, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, *e)
	}
	return out
}

// ErrRegistrationUpdateRejected is returned by Insert when the update rule
// rejects a registration; callers map this to the INVALID_UPDATE reply
// error code (spec.md §4.5).
var ErrRegistrationUpdateRejected = errors.New("slp: registration update rejected (INVALID_UPDATE)")

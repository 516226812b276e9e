package slp

import "sync"

// StaticKeyStore is a fixed SPI->key table loaded once at start, the
// simplest AuthKeyStore implementation: no rotation, no external key
// management system, just the set of keys this agent was configured
// with (spec.md §4.4 "external key store").
type StaticKeyStore struct {
	mu      sync.RWMutex
	keys    map[string]AuthKey
	current string
}

// NewStaticKeyStore returns an empty key store. Keys are added with Add;
// the first key added becomes the current signing key unless SetCurrent
// is called afterward.
func NewStaticKeyStore() *StaticKeyStore {
	return &StaticKeyStore{keys: make(map[string]AuthKey)}
}

// Add registers key under its own SPI, making it the current signing key
// if none has been set yet.
func (s *StaticKeyStore) Add(key AuthKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.SPI] = key
	if s.current == "" {
		s.current = key.SPI
	}
}

// SetCurrent selects which configured SPI this agent signs outgoing
// messages with.
func (s *StaticKeyStore) SetCurrent(spi string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = spi
}

// LookupKey implements AuthKeyStore.
func (s *StaticKeyStore) LookupKey(spi string) (AuthKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[spi]
	if !ok {
		return AuthKey{}, ErrAuthUnknownSPI
	}
	return key, nil
}

// CurrentKey implements AuthKeyStore. It returns the zero AuthKey if no
// key has been added, which signCanonical rejects with
// ErrUnsupportedAuthAlgorithm.
func (s *StaticKeyStore) CurrentKey() AuthKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[s.current]
}

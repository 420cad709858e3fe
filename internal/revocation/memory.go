package revocation

import (
	"context"
	"sync"
	"time"

	"github.com/fennelauth/authcore/internal/clock"
)

// MemoryStore is an in-process Store for tests, guarded by a mutex so concurrent readers never observe torn state.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time // token -> expiry instant
	clock   clock.Clock
}

// NewMemoryStore creates an empty MemoryStore. If c is nil, clock.System{} is used.
func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.System{}
	}
	return &MemoryStore{entries: make(map[string]time.Time), clock: c}
}

// Revoke records token as revoked until ttl from now, unless an existing entry already lives at least that long.
func (s *MemoryStore) Revoke(_ context.Context, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry := s.clock.Now().Add(ttl)
	if existing, ok := s.entries[token]; ok && existing.After(expiry) {
		return nil
	}
	s.entries[token] = expiry
	return nil
}

// IsRevoked reports whether token has a non-expired revocation entry.
func (s *MemoryStore) IsRevoked(_ context.Context, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiry, ok := s.entries[token]
	if !ok {
		return false, nil
	}
	return s.clock.Now().Before(expiry), nil
}

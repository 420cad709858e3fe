package twofa

import (
	"context"
	"sync"
	"time"

	"github.com/fennelauth/authcore/internal/clock"
	"github.com/fennelauth/authcore/internal/value"
)

type failCounter struct {
	count      int
	lastFailed time.Time
	expiresAt  time.Time
}

// MemoryStore is an in-process Store for tests, guarded by a mutex. It mirrors RedisStore's ttl-as-backstop
// semantics: PutCode stamps IssuedAt using the injected clock but does not itself evict on expiry — the engine
// decides VALID/EXPIRED.
type MemoryStore struct {
	mu    sync.Mutex
	codes map[string]Record
	fails map[string]*failCounter
	clock clock.Clock
}

// NewMemoryStore creates an empty MemoryStore. If c is nil, clock.System{} is used.
func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.System{}
	}
	return &MemoryStore{
		codes: make(map[string]Record),
		fails: make(map[string]*failCounter),
		clock: c,
	}
}

func (s *MemoryStore) PutCode(_ context.Context, email value.Email, attemptID value.LoginAttemptID, code value.TwoFACode, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[email.String()] = Record{
		AttemptID: attemptID,
		Code:      code,
		IssuedAt:  s.clock.Now(),
	}
	return nil
}

func (s *MemoryStore) GetCode(_ context.Context, email value.Email) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.codes[email.String()]
	return rec, ok, nil
}

func (s *MemoryStore) RemoveCode(_ context.Context, email value.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, email.String())
	return nil
}

func (s *MemoryStore) RecordFailedAttempt(_ context.Context, email value.Email, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	key := email.String()
	fc, ok := s.fails[key]
	if !ok || now.After(fc.expiresAt) {
		fc = &failCounter{}
		s.fails[key] = fc
	}
	fc.count++
	fc.lastFailed = now
	fc.expiresAt = now.Add(window)
	return nil
}

func (s *MemoryStore) ResetFailedAttempts(_ context.Context, email value.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fails, email.String())
	return nil
}

func (s *MemoryStore) GetFailedAttempts(_ context.Context, email value.Email) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fc, ok := s.fails[email.String()]
	if !ok {
		return 0, nil
	}
	if s.clock.Now().After(fc.expiresAt) {
		return 0, nil
	}
	return fc.count, nil
}

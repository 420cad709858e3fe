package credential

import (
	"context"
	"sync"

	"github.com/fennelauth/authcore/internal/value"
	"github.com/fennelauth/authcore/internal/workerpool"
)

// MemoryStore is an in-process Store for tests, guarded by a RWMutex so concurrent readers never observe a torn
// row while a writer is mutating a different (or the same) email.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]User // keyed by User.Email.String()
	pool   *workerpool.Pool
	params value.HashParams
}

// NewMemoryStore creates an empty MemoryStore. pool dispatches password hashing/verification; if nil, a
// single-slot pool is created. params are the Argon2id parameters used for AddUser/UpdatePassword.
func NewMemoryStore(pool *workerpool.Pool, params value.HashParams) *MemoryStore {
	if pool == nil {
		pool = workerpool.New(1)
	}
	return &MemoryStore{
		users:  make(map[string]User),
		pool:   pool,
		params: params,
	}
}

func (s *MemoryStore) AddUser(ctx context.Context, user User, password value.Password) error {
	s.mu.RLock()
	_, exists := s.users[user.Email.String()]
	s.mu.RUnlock()
	if exists {
		return ErrUserAlreadyExists
	}

	hash, err := workerpool.Do(ctx, s.pool, func() (string, error) {
		return password.Hash(s.params)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := user.Email.String()
	if _, exists := s.users[key]; exists {
		return ErrUserAlreadyExists
	}
	user.PasswordHash = hash
	s.users[key] = user
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, email value.Email) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[email.String()]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *MemoryStore) ValidateUser(ctx context.Context, email value.Email, plaintext string) error {
	s.mu.RLock()
	user, ok := s.users[email.String()]
	s.mu.RUnlock()

	if !ok {
		return ErrUserNotFound
	}

	match, err := workerpool.Do(ctx, s.pool, func() (bool, error) {
		return value.Verify(plaintext, user.PasswordHash)
	})
	if err != nil {
		return err
	}
	if !match {
		return ErrInvalidCredentials
	}
	return nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := user.Email.String()
	if _, ok := s.users[key]; !ok {
		return ErrUserNotFound
	}
	s.users[key] = user
	return nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, email value.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := email.String()
	if _, ok := s.users[key]; !ok {
		return ErrUserNotFound
	}
	delete(s.users, key)
	return nil
}

func (s *MemoryStore) UpdatePassword(ctx context.Context, email value.Email, newPassword value.Password) error {
	s.mu.Lock()
	user, ok := s.users[email.String()]
	s.mu.Unlock()
	if !ok {
		return ErrUserNotFound
	}

	hash, err := workerpool.Do(ctx, s.pool, func() (string, error) {
		return newPassword.Hash(s.params)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok = s.users[email.String()]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = hash
	s.users[email.String()] = user
	return nil
}

func (s *MemoryStore) GetUserSettings(_ context.Context, email value.Email) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[email.String()]
	if !ok {
		return Settings{}, ErrUserNotFound
	}
	return Settings{RequiresTwoFA: user.RequiresTwoFA, TwoFAMethod: user.TwoFAMethod}, nil
}

package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the production Store, backed by Valkey/Redis. Keyspace: revoked:<token> → "1" (STRING with TTL),
// matching the teacher's single-key-with-TTL pattern for MFA tickets.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func revokedKey(token string) string {
	return "revoked:" + token
}

// Revoke records token as revoked until ttl from now. SET NX leaves an existing, still-live entry's TTL untouched so
// re-revoking never shortens the remaining ban.
func (s *RedisStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	ok, err := s.rdb.SetNX(ctx, revokedKey(token), "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if !ok {
		// Already revoked; leave the existing TTL in place.
		return nil
	}
	return nil
}

// IsRevoked reports whether token has a live revocation entry.
func (s *RedisStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revokedKey(token)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return n > 0, nil
}

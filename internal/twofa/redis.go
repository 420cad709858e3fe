package twofa

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fennelauth/authcore/internal/value"
)

// RedisStore is the production Store. Keyspace, per §6:
//
//	two_fa:<email>      → HASH{attempt_id, code, issued_at} with TTL
//	two_fa_fail:<email> → HASH{count, last_failed} with 1h TTL
//
// The key's own TTL is a garbage-collection backstop set generously past the configured 2FA expiration; the
// authoritative VALID/EXPIRED boundary is decided by the engine comparing its own clock against the returned
// IssuedAt, so behavior stays deterministic under test regardless of store-level TTL jitter.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func codeKey(email value.Email) string {
	return "two_fa:" + email.String()
}

func failKey(email value.Email) string {
	return "two_fa_fail:" + email.String()
}

// gcBackstopMultiplier sets the store-level key TTL well past the caller-supplied TTL so the engine's own
// issued_at comparison — not Redis eviction — decides the VALID/EXPIRED boundary.
const gcBackstopMultiplier = 3

func (s *RedisStore) PutCode(ctx context.Context, email value.Email, attemptID value.LoginAttemptID, code value.TwoFACode, ttl time.Duration) error {
	key := codeKey(email)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"attempt_id", attemptID.String(),
		"code", code.String(),
		"issued_at", strconv.FormatInt(time.Now().Unix(), 10),
	)
	pipe.Expire(ctx, key, ttl*gcBackstopMultiplier)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put 2FA code: %w", err)
	}
	return nil
}

func (s *RedisStore) GetCode(ctx context.Context, email value.Email) (Record, bool, error) {
	vals, err := s.rdb.HGetAll(ctx, codeKey(email)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("get 2FA code: %w", err)
	}
	if len(vals) == 0 {
		return Record{}, false, nil
	}

	attemptID, err := value.ParseLoginAttemptID(vals["attempt_id"])
	if err != nil {
		return Record{}, false, fmt.Errorf("parse stored attempt id: %w", err)
	}

	var code value.TwoFACode
	if vals["code"] != "" {
		code, err = value.ParseTwoFACode(vals["code"])
		if err != nil {
			return Record{}, false, fmt.Errorf("parse stored 2FA code: %w", err)
		}
	}

	issuedAtUnix, err := strconv.ParseInt(vals["issued_at"], 10, 64)
	if err != nil {
		return Record{}, false, fmt.Errorf("parse stored issued_at: %w", err)
	}

	return Record{
		AttemptID: attemptID,
		Code:      code,
		IssuedAt:  time.Unix(issuedAtUnix, 0).UTC(),
	}, true, nil
}

func (s *RedisStore) RemoveCode(ctx context.Context, email value.Email) error {
	if err := s.rdb.Del(ctx, codeKey(email)).Err(); err != nil {
		return fmt.Errorf("remove 2FA code: %w", err)
	}
	return nil
}

// recordFailedAttemptScript atomically increments the counter, stamps last_failed, and (re)sets the key's TTL to
// the failure window so the counter expires window seconds after its most recent increment.
//
//	KEYS[1] = two_fa_fail:<email>
//	ARGV[1] = now unix seconds
//	ARGV[2] = window TTL in seconds
var recordFailedAttemptScript = redis.NewScript(`
redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('HSET', KEYS[1], 'last_failed', ARGV[1])
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
return 1
`)

func (s *RedisStore) RecordFailedAttempt(ctx context.Context, email value.Email, window time.Duration) error {
	_, err := recordFailedAttemptScript.Run(ctx, s.rdb,
		[]string{failKey(email)},
		time.Now().Unix(), int(window.Seconds()),
	).Result()
	if err != nil {
		return fmt.Errorf("record failed 2FA attempt: %w", err)
	}
	return nil
}

func (s *RedisStore) ResetFailedAttempts(ctx context.Context, email value.Email) error {
	if err := s.rdb.Del(ctx, failKey(email)).Err(); err != nil {
		return fmt.Errorf("reset failed 2FA attempts: %w", err)
	}
	return nil
}

func (s *RedisStore) GetFailedAttempts(ctx context.Context, email value.Email) (int, error) {
	val, err := s.rdb.HGet(ctx, failKey(email), "count").Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("get failed 2FA attempts: %w", err)
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parse failed 2FA attempt count: %w", err)
	}
	return count, nil
}

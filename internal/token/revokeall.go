package token

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fennelauth/authcore/internal/value"
)

// Keyspace for the per-user active-refresh-jti set, used only to support RevokeAllForUser:
//
//	user_refresh:<email> → SET of outstanding refresh-token jtis

func userRefreshKey(email value.Email) string {
	return "user_refresh:" + email.String()
}

// trackScript atomically adds a jti to the user's active set, refreshing the set's TTL, and sweeps any member whose
// own revocation entry already exists (meaning it was rotated or revoked) so the set does not grow unboundedly.
// Adapted from the teacher's createScript, keyed by jti instead of by the token UUID it tracked.
//
//	KEYS[1] = user_refresh:<email>
//	ARGV[1] = jti
//	ARGV[2] = set TTL in seconds
var trackScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
for _, member in ipairs(members) do
    if redis.call('EXISTS', 'revoked:' .. member) == 1 then
        redis.call('SREM', KEYS[1], member)
    end
end

redis.call('SADD', KEYS[1], ARGV[1])
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
return 1
`)

// revokeAllScript atomically revokes every jti tracked for a user and clears the set. Adapted from the teacher's
// revokeAllScript in refresh.go.
//
//	KEYS[1] = user_refresh:<email>
//	ARGV[1] = revocation TTL in seconds applied to each member
var revokeAllScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
for _, member in ipairs(members) do
    redis.call('SET', 'revoked:' .. member, '1', 'EX', tonumber(ARGV[1]))
end
redis.call('DEL', KEYS[1])
return #members
`)

func (s *Service) trackRefreshJTI(ctx context.Context, email value.Email, jti string, ttl time.Duration) error {
	if s.rdb == nil {
		return nil
	}
	_, err := trackScript.Run(ctx, s.rdb,
		[]string{userRefreshKey(email)},
		jti, int(ttl.Seconds()),
	).Result()
	if err != nil {
		return fmt.Errorf("track refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every outstanding refresh token jti tracked for email, called by ResetPassword so a
// compromised-password reset also invalidates every session's ability to mint new access tokens. Access tokens
// already issued remain valid until their own (short) expiry rather than being individually tracked. A Service
// with no Redis client configured (e.g. in tests that never exercise rotation) treats this as a no-op, matching
// trackRefreshJTI's own nil-rdb behavior.
func (s *Service) RevokeAllForUser(ctx context.Context, email value.Email) error {
	if s.rdb == nil {
		return nil
	}
	_, err := revokeAllScript.Run(ctx, s.rdb,
		[]string{userRefreshKey(email)},
		int(s.refreshTTL.Seconds()),
	).Result()
	if err != nil {
		return fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return nil
}

// Package revocation implements the time-bounded set of revoked token identifiers (C3): tokens are inserted with a
// TTL equal to their remaining validity and are considered banned until that TTL lapses.
package revocation

import (
	"context"
	"time"
)

// Store records revoked token strings and answers whether a token is currently revoked. Re-revoking an
// already-revoked token is a no-op; implementations must not shorten an existing entry's remaining TTL.
type Store interface {
	// Revoke records token as revoked until at least ttl from now. Idempotent.
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	// IsRevoked reports whether token has a non-expired revocation entry.
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// Package token implements the token service (C5): signs and verifies access and refresh JWTs, and atomically
// rotates refresh tokens.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fennelauth/authcore/internal/value"
)

// Claims is the shared claim shape for both access and refresh tokens: {sub: email, exp, jti}. Access and refresh
// tokens differ only by signing key and TTL, per spec. ID (jti) is a fresh UUID v4 minted at issuance and is what the
// revocation store tracks, rather than the full token string.
type Claims struct {
	jwt.RegisteredClaims
}

func newClaims(email value.Email, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email.String(),
			Issuer:    issuer,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// Email parses the claim's subject back into a value.Email. Claims are only ever produced by this package from an
// already-validated Email, so a parse failure here indicates token tampering or a signing-key mismatch across
// deployments, not ordinary user input.
func (c Claims) Email() (value.Email, error) {
	return value.ParseEmail(c.Subject)
}

// RemainingTTL returns how long the token has left to live relative to now. Zero or negative once expired.
func (c Claims) RemainingTTL(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

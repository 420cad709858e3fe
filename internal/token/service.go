package token

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/fennelauth/authcore/internal/clock"
	"github.com/fennelauth/authcore/internal/revocation"
	"github.com/fennelauth/authcore/internal/value"
)

// Service signs and verifies access/refresh JWTs and performs single-use refresh-token rotation. Revocation is
// tracked by jti (a UUID minted at issuance), not by the raw token string, so the revocation store's keys stay short
// regardless of token size.
type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	revocation    revocation.Store
	rdb           *redis.Client
	clock         clock.Clock
}

// NewService constructs a Service. rdb backs the per-user active-refresh-token set used by RevokeAllForUser; it may
// be nil if that capability is not needed (RevokeAllForUser and refresh-jti tracking are then no-ops).
func NewService(accessSecret, refreshSecret, issuer string, accessTTL, refreshTTL time.Duration, revocationStore revocation.Store, rdb *redis.Client, c clock.Clock) (*Service, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, fmt.Errorf("access and refresh signing secrets must not be empty")
	}
	if accessSecret == refreshSecret {
		return nil, fmt.Errorf("access and refresh signing secrets must differ")
	}
	if c == nil {
		c = clock.System{}
	}
	return &Service{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        issuer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		revocation:    revocationStore,
		rdb:           rdb,
		clock:         c,
	}, nil
}

func (s *Service) sign(claims Claims, secret []byte) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(tokenStr string, secret []byte) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.clock.Now))
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// IssueAccess mints a signed access token for email.
func (s *Service) IssueAccess(email value.Email) (string, error) {
	claims := newClaims(email, s.issuer, s.accessTTL, s.clock.Now())
	return s.sign(claims, s.accessSecret)
}

// IssueRefresh mints a signed refresh token for email and tracks its jti in the user's active-refresh-token set so
// RevokeAllForUser can later ban every outstanding refresh token at once.
func (s *Service) IssueRefresh(ctx context.Context, email value.Email) (string, error) {
	claims := newClaims(email, s.issuer, s.refreshTTL, s.clock.Now())
	signed, err := s.sign(claims, s.refreshSecret)
	if err != nil {
		return "", err
	}
	if err := s.trackRefreshJTI(ctx, email, claims.ID, s.refreshTTL); err != nil {
		return "", err
	}
	return signed, nil
}

// ValidateAccess parses and verifies an access token, rejecting on bad signature, expiry, or revocation.
func (s *Service) ValidateAccess(ctx context.Context, tokenStr string) (Claims, error) {
	return s.validate(ctx, tokenStr, s.accessSecret)
}

// ValidateRefresh parses and verifies a refresh token, rejecting on bad signature, expiry, or revocation.
func (s *Service) ValidateRefresh(ctx context.Context, tokenStr string) (Claims, error) {
	return s.validate(ctx, tokenStr, s.refreshSecret)
}

func (s *Service) validate(ctx context.Context, tokenStr string, secret []byte) (Claims, error) {
	claims, err := s.parse(tokenStr, secret)
	if err != nil {
		return Claims{}, err
	}
	banned, err := s.revocation.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Claims{}, fmt.Errorf("check token revocation: %w", err)
	}
	if banned {
		return Claims{}, ErrBannedToken
	}
	return claims, nil
}

// Revoke bans claims' jti for its remaining validity, making the token (and its use in Rotate/logout) rejected from
// this point on.
func (s *Service) Revoke(ctx context.Context, claims Claims) error {
	ttl := claims.RemainingTTL(s.clock.Now())
	if ttl <= 0 {
		return nil
	}
	return s.revocation.Revoke(ctx, claims.ID, ttl)
}

// Rotate implements the refresh-rotation protocol from §4.5: validate, revoke-with-remaining-TTL, issue a new pair.
// Revocation of the old token completes before the new pair is minted, so a concurrent reuse of oldRefreshToken
// observes the revocation and fails with ErrBannedToken.
func (s *Service) Rotate(ctx context.Context, oldRefreshToken string) (newAccess, newRefresh string, email value.Email, err error) {
	claims, err := s.ValidateRefresh(ctx, oldRefreshToken)
	if err != nil {
		return "", "", value.Email{}, err
	}

	email, err = claims.Email()
	if err != nil {
		return "", "", value.Email{}, fmt.Errorf("parse subject from refresh claims: %w", err)
	}

	if err := s.Revoke(ctx, claims); err != nil {
		return "", "", value.Email{}, fmt.Errorf("revoke consumed refresh token: %w", err)
	}

	newAccess, err = s.IssueAccess(email)
	if err != nil {
		return "", "", value.Email{}, err
	}
	newRefresh, err = s.IssueRefresh(ctx, email)
	if err != nil {
		return "", "", value.Email{}, err
	}

	return newAccess, newRefresh, email, nil
}

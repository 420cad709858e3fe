// Package twofa implements the two-factor code store (C4): one outstanding (LoginAttemptId, TwoFACode, issued_at)
// record per email, plus a per-email failed-attempt counter with its own TTL.
package twofa

import (
	"context"
	"time"

	"github.com/fennelauth/authcore/internal/value"
)

// Record is an outstanding 2FA challenge for an email. For an AuthenticatorApp challenge Code is the zero value
// (value.TwoFACode{}) since the code is derived from the user's TOTP secret at verify time rather than stored.
type Record struct {
	AttemptID value.LoginAttemptID
	Code      value.TwoFACode
	IssuedAt  time.Time
}

// Store holds at most one outstanding Record per email plus a failed-attempt counter. Implementations must serialize
// writers per email; the engine additionally wraps get-then-decide sequences in a per-email mutex (see
// internal/engine/keylock) since the compare-then-delete step spans two Store calls.
type Store interface {
	// PutCode replaces any outstanding record for email and stamps IssuedAt to now.
	PutCode(ctx context.Context, email value.Email, attemptID value.LoginAttemptID, code value.TwoFACode, ttl time.Duration) error
	// GetCode returns the outstanding record for email, or ok=false if none exists. A record past its ttl may still
	// be returned; callers decide expiry by comparing IssuedAt against their own clock.
	GetCode(ctx context.Context, email value.Email) (rec Record, ok bool, err error)
	// RemoveCode deletes the outstanding record for email. Not-found is not an error.
	RemoveCode(ctx context.Context, email value.Email) error

	// RecordFailedAttempt increments the failed-attempt counter for email, creating it at 1 if absent, and refreshes
	// its TTL to window.
	RecordFailedAttempt(ctx context.Context, email value.Email, window time.Duration) error
	// ResetFailedAttempts deletes the counter for email.
	ResetFailedAttempts(ctx context.Context, email value.Email) error
	// GetFailedAttempts returns the current counter value, or 0 if absent.
	GetFailedAttempts(ctx context.Context, email value.Email) (int, error)
}

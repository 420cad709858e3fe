// Package credential implements the credential store (C2): persists users, hashes and verifies passwords, and
// updates account settings.
package credential

import (
	"context"
	"errors"
	"time"

	"github.com/fennelauth/authcore/internal/value"
)

// Sentinel errors returned by Store implementations.
var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// TwoFAMethod identifies how a user's second factor is delivered.
type TwoFAMethod string

const (
	TwoFAMethodEmail            TwoFAMethod = "email"
	TwoFAMethodAuthenticatorApp TwoFAMethod = "authenticator_app"
	TwoFAMethodSMS              TwoFAMethod = "sms"
)

// User is the persisted credential record, keyed by email. PasswordHash is always an Argon2id digest string, never
// plaintext. MFATOTPSecret is only set (and only meaningful) when TwoFAMethod is TwoFAMethodAuthenticatorApp; it
// holds an AES-256-GCM-encrypted TOTP secret, encrypted/decrypted by internal/mfa.
type User struct {
	Email         value.Email
	PasswordHash  string
	RequiresTwoFA bool
	TwoFAMethod   TwoFAMethod
	MFATOTPSecret []byte
	CreatedAt     time.Time
}

// Settings is the subset of User exposed by GetSettings/UpdateSettings.
type Settings struct {
	RequiresTwoFA bool
	TwoFAMethod   TwoFAMethod
}

// Store persists users and verifies passwords. Concurrent readers must never observe torn state; a writer holds an
// exclusive lock on the logical row (keyed by email) for the duration of its update, and independent emails may be
// written concurrently.
type Store interface {
	// AddUser hashes password off the caller's goroutine via internal/workerpool and persists user with the
	// resulting digest as PasswordHash (user.PasswordHash is ignored on input). Returns ErrUserAlreadyExists if the
	// email is taken.
	AddUser(ctx context.Context, user User, password value.Password) error
	// GetUser returns the persisted record for email, including its password hash. Returns ErrUserNotFound if absent.
	GetUser(ctx context.Context, email value.Email) (User, error)
	// ValidateUser verifies plaintext against the stored hash for email. Returns ErrUserNotFound if the email is
	// unknown and ErrInvalidCredentials if the password is wrong; callers at the engine boundary collapse both to
	// the same client-visible status to avoid leaking account existence. Verification runs off the caller's
	// goroutine via internal/workerpool.
	ValidateUser(ctx context.Context, email value.Email, plaintext string) error
	// UpdateUser idempotently replaces the row keyed by email. Returns ErrUserNotFound if absent.
	UpdateUser(ctx context.Context, user User) error
	// DeleteUser removes the row for email. Returns ErrUserNotFound if absent.
	DeleteUser(ctx context.Context, email value.Email) error
	// UpdatePassword hashes newPassword and replaces the stored digest for email. Returns ErrUserNotFound if absent.
	UpdatePassword(ctx context.Context, email value.Email, newPassword value.Password) error
	// GetUserSettings returns the account-settings subset of the user record. Returns ErrUserNotFound if absent.
	GetUserSettings(ctx context.Context, email value.Email) (Settings, error)
}

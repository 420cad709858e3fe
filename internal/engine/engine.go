// Package engine implements the auth engine (C6): the single place that sequences the
// credential store, revocation-aware token service, 2FA store, mailer, clock, and RNG into the
// ten public operations the transport adapter calls.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/fennelauth/authcore/internal/audit"
	"github.com/fennelauth/authcore/internal/clock"
	"github.com/fennelauth/authcore/internal/config"
	"github.com/fennelauth/authcore/internal/credential"
	"github.com/fennelauth/authcore/internal/engine/keylock"
	"github.com/fennelauth/authcore/internal/mailer"
	"github.com/fennelauth/authcore/internal/mfa"
	"github.com/fennelauth/authcore/internal/random"
	"github.com/fennelauth/authcore/internal/token"
	"github.com/fennelauth/authcore/internal/twofa"
	"github.com/fennelauth/authcore/internal/value"
)

// Engine holds every collaborator the ten operations need, all behind interfaces so production
// wires real stores and tests wire in-memory ones.
type Engine struct {
	credentials credential.Store
	tokens      *token.Service
	twoFA       twofa.Store
	mailer      mailer.Mailer
	clock       clock.Clock
	rng         random.Rng
	audit       audit.Sink
	cfg         *config.Config
	locks       *keylock.Locker
}

// New constructs an Engine. None of the arguments may be nil except rng, which defaults to
// random.System{}.
func New(credentials credential.Store, tokens *token.Service, twoFA twofa.Store, mailr mailer.Mailer, c clock.Clock, rng random.Rng, auditSink audit.Sink, cfg *config.Config) *Engine {
	if rng == nil {
		rng = random.System{}
	}
	return &Engine{
		credentials: credentials,
		tokens:      tokens,
		twoFA:       twoFA,
		mailer:      mailr,
		clock:       c,
		rng:         rng,
		audit:       auditSink,
		cfg:         cfg,
		locks:       keylock.New(),
	}
}

// Signup creates a new user. requiresTwoFA/twoFAMethod become the account's initial 2FA settings.
func (e *Engine) Signup(ctx context.Context, rawEmail, rawPassword string, requiresTwoFA bool, twoFAMethod credential.TwoFAMethod) error {
	email, password, err := parseCredentials(rawEmail, rawPassword)
	if err != nil {
		return err
	}

	err = e.credentials.AddUser(ctx, credential.User{
		Email:         email,
		RequiresTwoFA: requiresTwoFA,
		TwoFAMethod:   twoFAMethod,
		CreatedAt:     e.clock.Now(),
	}, password)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, credential.ErrUserAlreadyExists):
		return ErrUserAlreadyExists
	default:
		return UnexpectedError{Cause: err}
	}
}

// LoginResult is returned by Login. If TwoFARequired, AccessToken/RefreshToken are empty and the
// caller must drive VerifyTwoFA with LoginAttemptID.
type LoginResult struct {
	TwoFARequired  bool
	LoginAttemptID value.LoginAttemptID
	AccessToken    string
	RefreshToken   string
}

// Login validates a password and either issues tokens directly or starts a 2FA challenge.
func (e *Engine) Login(ctx context.Context, rawEmail, rawPassword string) (LoginResult, error) {
	email, err := value.ParseEmail(rawEmail)
	if err != nil {
		return LoginResult{}, ErrIncorrectCredentials
	}

	if err := e.credentials.ValidateUser(ctx, email, rawPassword); err != nil {
		if errors.Is(err, credential.ErrUserNotFound) || errors.Is(err, credential.ErrInvalidCredentials) {
			return LoginResult{}, ErrIncorrectCredentials
		}
		return LoginResult{}, UnexpectedError{Cause: err}
	}

	user, err := e.credentials.GetUser(ctx, email)
	if err != nil {
		return LoginResult{}, UnexpectedError{Cause: fmt.Errorf("fetch user after validate: %w", err)}
	}

	if !user.RequiresTwoFA {
		return e.issueSession(ctx, email)
	}

	attemptID := value.FreshLoginAttemptID()

	// A fresh login challenge resets the failed-attempt counter (§4.6 LOCKED): a correct password
	// is proof enough to give the account a new run at the 2FA step rather than leaving it locked
	// for the rest of the failed-attempts window.
	if err := e.twoFA.ResetFailedAttempts(ctx, email); err != nil {
		return LoginResult{}, UnexpectedError{Cause: fmt.Errorf("reset failed-attempt counter: %w", err)}
	}

	if user.TwoFAMethod == credential.TwoFAMethodAuthenticatorApp {
		if err := e.twoFA.PutCode(ctx, email, attemptID, value.TwoFACode{}, e.cfg.TwoFATTL); err != nil {
			return LoginResult{}, UnexpectedError{Cause: fmt.Errorf("store pending TOTP challenge: %w", err)}
		}
		return LoginResult{TwoFARequired: true, LoginAttemptID: attemptID}, nil
	}

	code, err := value.RandomTwoFACode(e.rng)
	if err != nil {
		return LoginResult{}, UnexpectedError{Cause: fmt.Errorf("generate 2FA code: %w", err)}
	}
	if err := e.twoFA.PutCode(ctx, email, attemptID, code, e.cfg.TwoFATTL); err != nil {
		return LoginResult{}, UnexpectedError{Cause: fmt.Errorf("store 2FA code: %w", err)}
	}

	// The code is stored before the mailer is called. A send failure fails the login with
	// UnexpectedError; the stored code stays in place until a later login replaces it.
	if err := e.mailer.Send2FACode(ctx, email, code); err != nil {
		return LoginResult{}, UnexpectedError{Cause: fmt.Errorf("send 2FA code: %w", err)}
	}

	return LoginResult{TwoFARequired: true, LoginAttemptID: attemptID}, nil
}

// VerifyTwoFAResult is returned by a successful VerifyTwoFA.
type VerifyTwoFAResult struct {
	AccessToken string
}

// VerifyTwoFA implements the §4.6 state machine (INITIAL/LOCKED/VALID/EXPIRED) for one email,
// serialized against concurrent verify attempts for the same email via a per-email lock.
func (e *Engine) VerifyTwoFA(ctx context.Context, rawEmail, rawAttemptID, rawCode string) (VerifyTwoFAResult, error) {
	email, err := value.ParseEmail(rawEmail)
	if err != nil {
		return VerifyTwoFAResult{}, ErrIncorrectCredentials
	}
	attemptID, err := value.ParseLoginAttemptID(rawAttemptID)
	if err != nil {
		return VerifyTwoFAResult{}, ErrIncorrectCredentials
	}

	unlock := e.locks.Lock(email.String())
	defer unlock()

	attempts, err := e.twoFA.GetFailedAttempts(ctx, email)
	if err != nil {
		return VerifyTwoFAResult{}, UnexpectedError{Cause: fmt.Errorf("get failed-attempt counter: %w", err)}
	}
	if attempts >= e.cfg.FailedAttemptsLimit {
		e.recordAudit(ctx, email, audit.Event2FAFailed, "locked")
		return VerifyTwoFAResult{}, ErrIncorrectCredentials
	}

	record, ok, err := e.twoFA.GetCode(ctx, email)
	if err != nil {
		return VerifyTwoFAResult{}, UnexpectedError{Cause: fmt.Errorf("get 2FA record: %w", err)}
	}
	if !ok {
		if err := e.twoFA.RecordFailedAttempt(ctx, email, e.cfg.FailedAttemptsWindow); err != nil {
			return VerifyTwoFAResult{}, UnexpectedError{Cause: fmt.Errorf("record failed attempt: %w", err)}
		}
		e.recordAudit(ctx, email, audit.Event2FAFailed, "no outstanding challenge")
		return VerifyTwoFAResult{}, ErrIncorrectCredentials
	}

	if e.clock.Now().After(record.IssuedAt.Add(e.cfg.TwoFATTL)) {
		if err := e.twoFA.RemoveCode(ctx, email); err != nil {
			return VerifyTwoFAResult{}, UnexpectedError{Cause: fmt.Errorf("remove expired 2FA record: %w", err)}
		}
		if err := e.twoFA.RecordFailedAttempt(ctx, email, e.cfg.FailedAttemptsWindow); err != nil {
			return VerifyTwoFAResult{}, UnexpectedError{Cause: fmt.Errorf("record failed attempt: %w", err)}
		}
		e.recordAudit(ctx, email, audit.Event2FAFailed, "expired")
		return VerifyTwoFAResult{}, ErrIncorrectCredentials
	}

	if !record.AttemptID.Equal(attemptID) {
		if err := e.twoFA.RecordFailedAttempt(ctx, email, e.cfg.FailedAttemptsWindow); err != nil {
			return VerifyTwoFAResult{}, UnexpectedError{Cause: fmt.Errorf("record failed attempt: %w", err)}
		}
		e.recordAudit(ctx, email, audit.Event2FAFailed, "attempt id mismatch")
		return VerifyTwoFAResult{}, ErrIncorrectCredentials
	}

	matched, err := e.matchCode(ctx, email, record, rawCode)
	if err != nil {
		return VerifyTwoFAResult{}, err
	}
	if !matched {
		if err := e.twoFA.RecordFailedAttempt(ctx, email, e.cfg.FailedAttemptsWindow); err != nil {
			return VerifyTwoFAResult{}, UnexpectedError{Cause: fmt.Errorf("record failed attempt: %w", err)}
		}
		e.recordAudit(ctx, email, audit.Event2FAFailed, "code mismatch")
		return VerifyTwoFAResult{}, ErrIncorrectCredentials
	}

	if err := e.twoFA.RemoveCode(ctx, email); err != nil {
		return VerifyTwoFAResult{}, UnexpectedError{Cause: fmt.Errorf("remove consumed 2FA record: %w", err)}
	}
	if err := e.twoFA.ResetFailedAttempts(ctx, email); err != nil {
		return VerifyTwoFAResult{}, UnexpectedError{Cause: fmt.Errorf("reset failed-attempt counter: %w", err)}
	}

	access, err := e.tokens.IssueAccess(email)
	if err != nil {
		return VerifyTwoFAResult{}, UnexpectedError{Cause: err}
	}

	e.recordAudit(ctx, email, audit.Event2FASuccess, "")
	return VerifyTwoFAResult{AccessToken: access}, nil
}

// matchCode compares the submitted code against record, dispatching to TOTP validation when
// record.Code is the zero value (an AuthenticatorApp challenge).
func (e *Engine) matchCode(ctx context.Context, email value.Email, record twofa.Record, rawCode string) (bool, error) {
	if !record.Code.IsZero() {
		code, err := value.ParseTwoFACode(rawCode)
		if err != nil {
			return false, nil
		}
		return record.Code.Equal(code), nil
	}

	if !e.cfg.MFAConfigured() {
		return false, UnexpectedError{Cause: mfa.ErrNotConfigured}
	}
	user, err := e.credentials.GetUser(ctx, email)
	if err != nil {
		return false, UnexpectedError{Cause: fmt.Errorf("fetch user for TOTP verify: %w", err)}
	}
	if len(user.MFATOTPSecret) == 0 {
		return false, nil
	}
	secret, err := mfa.DecryptTOTPSecret(user.MFATOTPSecret, e.cfg.MFAEncryptionKey)
	if err != nil {
		return false, UnexpectedError{Cause: fmt.Errorf("decrypt TOTP secret: %w", err)}
	}
	return mfa.Validate(rawCode, secret), nil
}

// Logout revokes the session token for its remaining validity.
func (e *Engine) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return ErrMissingToken
	}
	claims, err := e.tokens.ValidateAccess(ctx, rawToken)
	if err != nil {
		return mapTokenError(err)
	}
	if err := e.tokens.Revoke(ctx, claims); err != nil {
		return UnexpectedError{Cause: err}
	}
	return nil
}

// RefreshResult is returned by Refresh.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

// Refresh applies the §4.5 rotation protocol to a refresh token.
func (e *Engine) Refresh(ctx context.Context, rawToken string) (RefreshResult, error) {
	if rawToken == "" {
		return RefreshResult{}, ErrMissingToken
	}
	access, refresh, _, err := e.tokens.Rotate(ctx, rawToken)
	if err != nil {
		return RefreshResult{}, mapTokenError(err)
	}
	return RefreshResult{AccessToken: access, RefreshToken: refresh}, nil
}

// ForgotPassword always reports success and returns a syntactically-valid LoginAttemptID to avoid
// leaking account existence through the response body (testable property 7); only an account that
// in fact exists gets one backed by a stored, emailed code. An unknown or malformed email still
// gets a freshly-minted, unbacked LoginAttemptID, so callers on both paths see the identical shape
// and a follow-up reset_password with it fails the same way a wrong code would.
func (e *Engine) ForgotPassword(ctx context.Context, rawEmail string) (value.LoginAttemptID, error) {
	email, err := value.ParseEmail(rawEmail)
	if err != nil {
		return value.FreshLoginAttemptID(), nil
	}

	if _, err := e.credentials.GetUser(ctx, email); err != nil {
		if errors.Is(err, credential.ErrUserNotFound) {
			return value.FreshLoginAttemptID(), nil
		}
		return value.LoginAttemptID{}, UnexpectedError{Cause: err}
	}

	attemptID := value.FreshLoginAttemptID()
	code, err := value.RandomTwoFACode(e.rng)
	if err != nil {
		return value.LoginAttemptID{}, UnexpectedError{Cause: fmt.Errorf("generate reset code: %w", err)}
	}
	if err := e.twoFA.PutCode(ctx, email, attemptID, code, e.cfg.TwoFATTL); err != nil {
		return value.LoginAttemptID{}, UnexpectedError{Cause: fmt.Errorf("store reset code: %w", err)}
	}
	if err := e.mailer.Send2FACode(ctx, email, code); err != nil {
		return value.LoginAttemptID{}, UnexpectedError{Cause: fmt.Errorf("send reset code: %w", err)}
	}
	return attemptID, nil
}

// ResetPassword checks that an outstanding record for email exists, has not expired, and matches
// both attemptId and code, then replaces the account's password. Unlike VerifyTwoFA it neither
// consults the failed-attempt lockout nor records failed attempts.
func (e *Engine) ResetPassword(ctx context.Context, rawEmail, rawAttemptID, rawCode, rawNewPassword string) error {
	email, err := value.ParseEmail(rawEmail)
	if err != nil {
		return ErrInvalidToken
	}
	attemptID, err := value.ParseLoginAttemptID(rawAttemptID)
	if err != nil {
		return ErrInvalidToken
	}
	code, err := value.ParseTwoFACode(rawCode)
	if err != nil {
		return ErrInvalidToken
	}
	newPassword, err := value.ParsePassword(rawNewPassword)
	if err != nil {
		return ErrInvalidCredentials
	}

	unlock := e.locks.Lock(email.String())
	defer unlock()

	record, ok, err := e.twoFA.GetCode(ctx, email)
	if err != nil {
		return UnexpectedError{Cause: fmt.Errorf("get reset record: %w", err)}
	}
	if !ok || e.clock.Now().After(record.IssuedAt.Add(e.cfg.TwoFATTL)) {
		return ErrInvalidToken
	}
	if !record.AttemptID.Equal(attemptID) || !record.Code.Equal(code) {
		return ErrInvalidToken
	}

	if err := e.credentials.UpdatePassword(ctx, email, newPassword); err != nil {
		if errors.Is(err, credential.ErrUserNotFound) {
			return ErrInvalidToken
		}
		return UnexpectedError{Cause: err}
	}
	if err := e.twoFA.RemoveCode(ctx, email); err != nil {
		return UnexpectedError{Cause: fmt.Errorf("remove consumed reset record: %w", err)}
	}
	// A password reset invalidates every other session's ability to refresh (§3): whoever reset the
	// password may not be the account owner, so outstanding refresh tokens should not survive it.
	if err := e.tokens.RevokeAllForUser(ctx, email); err != nil {
		return UnexpectedError{Cause: fmt.Errorf("revoke outstanding sessions after reset: %w", err)}
	}
	return nil
}

// DeleteAccount removes the user identified by an authenticated access token.
func (e *Engine) DeleteAccount(ctx context.Context, rawToken string) error {
	email, err := e.authenticate(ctx, rawToken)
	if err != nil {
		return err
	}
	if err := e.credentials.DeleteUser(ctx, email); err != nil {
		if errors.Is(err, credential.ErrUserNotFound) {
			return ErrIncorrectCredentials
		}
		return UnexpectedError{Cause: err}
	}
	return nil
}

// GetAccountSettings returns the 2FA settings for an authenticated caller.
func (e *Engine) GetAccountSettings(ctx context.Context, rawToken string) (credential.Settings, error) {
	email, err := e.authenticate(ctx, rawToken)
	if err != nil {
		return credential.Settings{}, err
	}
	settings, err := e.credentials.GetUserSettings(ctx, email)
	if err != nil {
		if errors.Is(err, credential.ErrUserNotFound) {
			return credential.Settings{}, ErrIncorrectCredentials
		}
		return credential.Settings{}, UnexpectedError{Cause: err}
	}
	return settings, nil
}

// UpdateAccountSettings replaces the 2FA settings for an authenticated caller. Switching to
// AuthenticatorApp provisions a fresh TOTP secret and returns its otpauth:// URI for the client
// to render as a QR code; the caller is responsible for confirming the first code out of band.
func (e *Engine) UpdateAccountSettings(ctx context.Context, rawToken string, requiresTwoFA bool, method credential.TwoFAMethod) (string, error) {
	email, err := e.authenticate(ctx, rawToken)
	if err != nil {
		return "", err
	}

	user, err := e.credentials.GetUser(ctx, email)
	if err != nil {
		if errors.Is(err, credential.ErrUserNotFound) {
			return "", ErrIncorrectCredentials
		}
		return "", UnexpectedError{Cause: err}
	}

	user.RequiresTwoFA = requiresTwoFA
	user.TwoFAMethod = method

	var provisioningURI string
	if method == credential.TwoFAMethodAuthenticatorApp {
		if !e.cfg.MFAConfigured() {
			return "", UnexpectedError{Cause: mfa.ErrNotConfigured}
		}
		secret, uri, err := mfa.GenerateKey(e.cfg.JWTIssuer, email.String())
		if err != nil {
			return "", UnexpectedError{Cause: err}
		}
		encrypted, err := mfa.EncryptTOTPSecret(secret, e.cfg.MFAEncryptionKey)
		if err != nil {
			return "", UnexpectedError{Cause: err}
		}
		user.MFATOTPSecret = encrypted
		provisioningURI = uri
	} else {
		user.MFATOTPSecret = nil
	}

	if err := e.credentials.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, credential.ErrUserNotFound) {
			return "", ErrIncorrectCredentials
		}
		return "", UnexpectedError{Cause: err}
	}
	return provisioningURI, nil
}

func (e *Engine) authenticate(ctx context.Context, rawToken string) (value.Email, error) {
	if rawToken == "" {
		return value.Email{}, ErrMissingToken
	}
	claims, err := e.tokens.ValidateAccess(ctx, rawToken)
	if err != nil {
		return value.Email{}, mapTokenError(err)
	}
	email, err := claims.Email()
	if err != nil {
		return value.Email{}, UnexpectedError{Cause: fmt.Errorf("parse subject from access claims: %w", err)}
	}
	return email, nil
}

func (e *Engine) issueSession(ctx context.Context, email value.Email) (LoginResult, error) {
	access, err := e.tokens.IssueAccess(email)
	if err != nil {
		return LoginResult{}, UnexpectedError{Cause: err}
	}

	result := LoginResult{AccessToken: access}
	if e.cfg.IssueRefreshOnLogin {
		refresh, err := e.tokens.IssueRefresh(ctx, email)
		if err != nil {
			return LoginResult{}, UnexpectedError{Cause: err}
		}
		result.RefreshToken = refresh
	}
	return result, nil
}

func (e *Engine) recordAudit(ctx context.Context, email value.Email, event audit.Event, reason string) {
	if e.audit == nil {
		return
	}
	_ = e.audit.Record(ctx, audit.Entry{
		Email:  email,
		Event:  event,
		Reason: reason,
		UnixTS: e.clock.Now().Unix(),
	})
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrBannedToken):
		return ErrBannedToken
	case errors.Is(err, token.ErrInvalidToken):
		return ErrInvalidToken
	default:
		return UnexpectedError{Cause: err}
	}
}

func parseCredentials(rawEmail, rawPassword string) (value.Email, value.Password, error) {
	if rawEmail == "" || rawPassword == "" {
		return value.Email{}, value.Password{}, ErrMalformedCredentials
	}
	email, err := value.ParseEmail(rawEmail)
	if err != nil {
		return value.Email{}, value.Password{}, ErrInvalidCredentials
	}
	password, err := value.ParsePassword(rawPassword)
	if err != nil {
		return value.Email{}, value.Password{}, ErrInvalidCredentials
	}
	return email, password, nil
}

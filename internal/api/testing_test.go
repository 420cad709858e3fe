package api

import (
	"context"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/fennelauth/authcore/internal/audit"
	"github.com/fennelauth/authcore/internal/clock"
	"github.com/fennelauth/authcore/internal/config"
	"github.com/fennelauth/authcore/internal/credential"
	"github.com/fennelauth/authcore/internal/engine"
	"github.com/fennelauth/authcore/internal/revocation"
	"github.com/fennelauth/authcore/internal/token"
	"github.com/fennelauth/authcore/internal/twofa"
	"github.com/fennelauth/authcore/internal/value"
	"github.com/fennelauth/authcore/internal/workerpool"
)

var testHashParams = value.HashParams{Memory: 65536, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

// captureMailer records the last code sent per recipient instead of delivering it.
type captureMailer struct {
	codes map[string]value.TwoFACode
}

func (m *captureMailer) Send2FACode(_ context.Context, to value.Email, code value.TwoFACode) error {
	m.codes[to.String()] = code
	return nil
}

func (m *captureMailer) codeFor(t *testing.T, email string) string {
	t.Helper()
	code, ok := m.codes[email]
	if !ok {
		t.Fatalf("no code was sent to %s", email)
	}
	return code.String()
}

func newTestApp(t *testing.T) (*fiber.App, *config.Config, *captureMailer) {
	t.Helper()

	cfg := &config.Config{
		JWTIssuer:            "authcore-test",
		JWTCookieName:        "jwt",
		AccessTTL:            time.Hour,
		RefreshTTL:           24 * time.Hour,
		TwoFATTL:             10 * time.Minute,
		RevocationTTL:        10 * time.Minute,
		FailedAttemptsLimit:  5,
		FailedAttemptsWindow: time.Hour,
		IssueRefreshOnLogin:  true,
		Argon2Memory:         testHashParams.Memory,
		Argon2Iterations:     testHashParams.Iterations,
		Argon2Parallelism:    testHashParams.Parallelism,
		Argon2SaltLength:     testHashParams.SaltLength,
		Argon2KeyLength:      testHashParams.KeyLength,
	}

	c := clock.System{}
	creds := credential.NewMemoryStore(workerpool.New(2), testHashParams)
	twoFA := twofa.NewMemoryStore(c)
	revStore := revocation.NewMemoryStore(c)

	tokens, err := token.NewService("access-secret-for-tests", "refresh-secret-for-tests", cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL, revStore, nil, c)
	if err != nil {
		t.Fatalf("token.NewService() error = %v", err)
	}

	mailer := &captureMailer{codes: make(map[string]value.TwoFACode)}
	auditSink := audit.NewMemorySink()
	eng := engine.New(creds, tokens, twoFA, mailer, c, nil, auditSink, cfg)

	log := zerolog.Nop()
	app := fiber.New()

	authHandler := NewAuthHandler(eng, cfg, log)
	app.Post("/signup", authHandler.Signup)
	app.Post("/login", authHandler.Login)
	app.Post("/verify-2fa", authHandler.VerifyTwoFA)
	app.Post("/logout", authHandler.Logout)
	app.Post("/refresh", authHandler.Refresh)
	app.Post("/forgot-password", authHandler.ForgotPassword)
	app.Post("/reset-password", authHandler.ResetPassword)

	accountHandler := NewAccountHandler(eng, cfg, log)
	app.Get("/account/settings", accountHandler.GetSettings)
	app.Patch("/account/settings", accountHandler.UpdateSettings)
	app.Delete("/account", accountHandler.Delete)

	return app, cfg, mailer
}

package mailer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/fennelauth/authcore/internal/value"
)

// LoggingMailer logs 2FA codes instead of delivering them, for local development when SMTP is
// not configured.
type LoggingMailer struct {
	log zerolog.Logger
}

// NewLoggingMailer creates a Mailer that writes codes to log.
func NewLoggingMailer(log zerolog.Logger) *LoggingMailer {
	return &LoggingMailer{log: log}
}

func (m *LoggingMailer) Send2FACode(_ context.Context, to value.Email, code value.TwoFACode) error {
	m.log.Warn().
		Str("email", to.String()).
		Str("code", code.String()).
		Msg("dev mode: SMTP not configured, logging 2FA code instead of sending it")
	return nil
}

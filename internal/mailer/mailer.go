// Package mailer sends one-time 2FA codes to users out of band. The production implementation
// is SMTP; a logging implementation is provided for local development.
package mailer

import (
	"context"

	"github.com/fennelauth/authcore/internal/value"
)

// Mailer delivers a 2FA code to a user. Implementations must not block indefinitely; callers
// pass ctx so the engine can bound how long login/forgot_password waits on delivery.
type Mailer interface {
	Send2FACode(ctx context.Context, email value.Email, code value.TwoFACode) error
}

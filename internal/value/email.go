// Package value implements the small, validated value types shared across the credential core: Email, Password,
// TwoFACode, and LoginAttemptId. None of these types expose their raw contents in a way that lets a caller bypass
// validation — every instance in circulation has already passed Parse.
package value

import (
	"errors"
	"net/mail"
	"strings"
)

// ErrInvalidEmail is returned when a string fails RFC-5322-practical validation.
var ErrInvalidEmail = errors.New("invalid email format")

const maxEmailLength = 254

// Email is a validated, normalized email address. The domain is lowercased on parse; the local part is preserved
// verbatim and compared case-sensitively. This is a deliberate product decision (see DESIGN.md) rather than an
// oversight: two addresses differing only in local-part case are treated as distinct accounts.
type Email struct {
	local  string
	domain string
}

// ParseEmail validates s and returns a normalized Email. It rejects whitespace, a missing '@', an empty local or
// domain part, and addresses longer than 254 characters.
func ParseEmail(s string) (Email, error) {
	if strings.TrimSpace(s) != s || s == "" {
		return Email{}, ErrInvalidEmail
	}
	if len(s) > maxEmailLength {
		return Email{}, ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(s)
	if err != nil {
		return Email{}, ErrInvalidEmail
	}
	// mail.ParseAddress accepts "Name <addr>" forms and trims some whitespace; reject anything that isn't exactly
	// the bare address the caller supplied save for case, since silently accepting "Display Name <a@b.com>" as an
	// email value would surprise callers.
	if !strings.EqualFold(addr.Address, s) {
		return Email{}, ErrInvalidEmail
	}

	at := strings.LastIndexByte(addr.Address, '@')
	if at <= 0 || at == len(addr.Address)-1 {
		return Email{}, ErrInvalidEmail
	}

	local := addr.Address[:at]
	domain := strings.ToLower(addr.Address[at+1:])

	return Email{local: local, domain: domain}, nil
}

// String returns the canonical form: the original-case local part joined to the lowercased domain.
func (e Email) String() string {
	return e.local + "@" + e.domain
}

// Domain returns the lowercased domain portion.
func (e Email) Domain() string {
	return e.domain
}

// Equal reports whether two Email values are identical after normalization (local part compared case-sensitively).
func (e Email) Equal(other Email) bool {
	return e.local == other.local && e.domain == other.domain
}

// IsZero reports whether e is the zero value (never produced by ParseEmail).
func (e Email) IsZero() bool {
	return e.local == "" && e.domain == ""
}

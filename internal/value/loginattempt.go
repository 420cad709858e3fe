package value

import (
	"errors"

	"github.com/google/uuid"
)

// ErrInvalidLoginAttemptID is returned when a string is not a canonical UUID v4.
var ErrInvalidLoginAttemptID = errors.New("invalid login attempt id")

// LoginAttemptID is an opaque per-attempt identifier binding a 2FA challenge to a specific login event.
type LoginAttemptID struct {
	id uuid.UUID
}

// ParseLoginAttemptID accepts only canonical UUID v4 strings.
func ParseLoginAttemptID(s string) (LoginAttemptID, error) {
	id, err := uuid.Parse(s)
	if err != nil || len(s) != 36 {
		return LoginAttemptID{}, ErrInvalidLoginAttemptID
	}
	if id.Version() != 4 {
		return LoginAttemptID{}, ErrInvalidLoginAttemptID
	}
	return LoginAttemptID{id: id}, nil
}

// FreshLoginAttemptID generates a new version-4 UUID.
func FreshLoginAttemptID() LoginAttemptID {
	return LoginAttemptID{id: uuid.New()}
}

// String returns the canonical UUID string form.
func (a LoginAttemptID) String() string {
	return a.id.String()
}

// Equal reports whether two LoginAttemptID values are identical.
func (a LoginAttemptID) Equal(other LoginAttemptID) bool {
	return a.id == other.id
}

// IsZero reports whether a is the unset zero value.
func (a LoginAttemptID) IsZero() bool {
	return a.id == uuid.Nil
}

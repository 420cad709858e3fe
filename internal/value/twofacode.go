package value

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fennelauth/authcore/internal/random"
)

// ErrInvalidTwoFACode is returned when a string is not exactly six ASCII digits.
var ErrInvalidTwoFACode = errors.New("two-factor code must be exactly six digits")

const twoFACodeMax = 1_000_000 // 10^6, exclusive upper bound

// TwoFACode is a validated six-digit one-time code.
type TwoFACode struct {
	digits string
}

// ParseTwoFACode validates that s is exactly six ASCII digits.
func ParseTwoFACode(s string) (TwoFACode, error) {
	if len(s) != 6 {
		return TwoFACode{}, ErrInvalidTwoFACode
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return TwoFACode{}, ErrInvalidTwoFACode
		}
	}
	return TwoFACode{digits: s}, nil
}

// RandomTwoFACode draws uniformly from [0, 10^6) via rng and zero-pads the result. It rejects and redraws any
// 4-byte value at or above the largest multiple of 10^6 that fits in 32 bits, so the modulo reduction below
// introduces no bias.
func RandomTwoFACode(rng random.Rng) (TwoFACode, error) {
	const limit = (1 << 32) / twoFACodeMax * twoFACodeMax

	for {
		b, err := rng.Bytes(4)
		if err != nil {
			return TwoFACode{}, fmt.Errorf("generate two-factor code: %w", err)
		}
		v := binary.BigEndian.Uint32(b)
		if v < limit {
			return TwoFACode{digits: fmt.Sprintf("%06d", v%twoFACodeMax)}, nil
		}
	}
}

// String returns the six-digit code.
func (c TwoFACode) String() string {
	return c.digits
}

// Equal reports byte-for-byte equality between two codes.
func (c TwoFACode) Equal(other TwoFACode) bool {
	return c.digits == other.digits
}

// IsZero reports whether c is the unset zero value.
func (c TwoFACode) IsZero() bool {
	return c.digits == ""
}

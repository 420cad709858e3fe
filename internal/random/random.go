// Package random provides the cryptographically secure randomness port used for salts, codes, and tokens throughout
// the credential core.
package random

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Rng is a cryptographically secure random source. The production implementation and the one used in tests are the
// same — crypto/rand already gives deterministic-enough behavior for the core's purposes, and unlike a PRNG seed,
// there is no safe way to make secrets reproducible across test runs.
type Rng interface {
	// Bytes fills and returns n cryptographically secure random bytes.
	Bytes(n int) ([]byte, error)
	// Token returns a hex-encoded string of n random bytes.
	Token(n int) (string, error)
}

// System is the production Rng, backed by crypto/rand.
type System struct{}

// Bytes returns n cryptographically secure random bytes.
func (System) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}

// Token returns a hex-encoded string of n random bytes.
func (s System) Token(n int) (string, error) {
	b, err := s.Bytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

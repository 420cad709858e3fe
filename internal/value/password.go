package value

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/alexedwards/argon2id"
)

// ErrPasswordTooShort is returned when a candidate password is shorter than 8 characters.
var ErrPasswordTooShort = errors.New("password must be at least 8 characters")

// HashParams mirrors the fields of argon2id.Params used to hash and verify passwords. Kept as a standalone type
// (rather than importing argon2id.Params into call sites) so the rest of the core doesn't need the argon2id import
// just to configure hashing.
type HashParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashParams are the parameters mandated by the spec: 15360 KiB memory, 2 iterations, parallelism 1.
var DefaultHashParams = HashParams{
	Memory:      15360,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Password is a plaintext password that has passed policy validation. It is only ever handed to Hash; nothing in
// this package persists or logs the plaintext.
type Password struct {
	plaintext string
}

// ParsePassword validates that s is at least 8 characters long.
func ParsePassword(s string) (Password, error) {
	if utf8.RuneCountInString(s) < 8 {
		return Password{}, ErrPasswordTooShort
	}
	return Password{plaintext: s}, nil
}

// Hash produces an Argon2id digest string encoding algorithm, parameters, salt, and hash.
func (p Password) Hash(params HashParams) (string, error) {
	hash, err := argon2id.CreateHash(p.plaintext, &argon2id.Params{
		Memory:      params.Memory,
		Iterations:  params.Iterations,
		Parallelism: params.Parallelism,
		SaltLength:  params.SaltLength,
		KeyLength:   params.KeyLength,
	})
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// Verify reports whether plaintext matches the given Argon2id hash. Comparison is constant-time relative to the
// digest length, courtesy of argon2id.ComparePasswordAndHash.
func Verify(plaintext, hash string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(plaintext, hash)
	if err != nil {
		return false, fmt.Errorf("verify password: %w", err)
	}
	return match, nil
}

// NeedsRehash reports whether hash was produced with parameters that differ from params, meaning it should be
// regenerated the next time the plaintext is available (i.e. on a successful login).
func NeedsRehash(hash string, params HashParams) bool {
	decoded, salt, key, err := argon2id.DecodeHash(hash)
	if err != nil {
		return false
	}
	return decoded.Memory != params.Memory ||
		decoded.Iterations != params.Iterations ||
		decoded.Parallelism != params.Parallelism ||
		uint32(len(salt)) != params.SaltLength ||
		uint32(len(key)) != params.KeyLength
}

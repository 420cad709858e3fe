// Package mfa implements authenticator-app two-factor authentication: TOTP secret
// encryption at rest, TOTP code validation, and recovery-code generation/verification.
package mfa

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/pquerna/otp/totp"

	"github.com/fennelauth/authcore/internal/value"
)

var ErrNotConfigured = errors.New("authenticator-app 2FA is not configured")

// EncryptTOTPSecret encrypts a TOTP secret using AES-256-GCM. hexKey must be exactly 64 hex
// characters (32 bytes). The returned bytes are the base64 text of nonce || ciphertext || tag.
func EncryptTOTPSecret(secret, hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(secret), nil)
	encoded := base64.StdEncoding.EncodeToString(ciphertext)
	return []byte(encoded), nil
}

// DecryptTOTPSecret decrypts a secret produced by EncryptTOTPSecret.
func DecryptTOTPSecret(encrypted []byte, hexKey string) (string, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return "", fmt.Errorf("decode encryption key: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(string(encrypted))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// GenerateKey provisions a new TOTP key for accountName under issuer, returning the raw
// secret and the otpauth:// URI for QR-code provisioning.
func GenerateKey(issuer, accountName string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: issuer, AccountName: accountName})
	if err != nil {
		return "", "", fmt.Errorf("generate TOTP key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// Validate reports whether code is a valid TOTP code for secret at the current time.
func Validate(code, secret string) bool {
	return totp.Validate(code, secret)
}

// ValidateCode validates an already-parsed value.TwoFACode against secret, so callers can
// reuse the same shape validation the email-code path applies.
func ValidateCode(code value.TwoFACode, secret string) bool {
	return totp.Validate(code.String(), secret)
}

const recoveryCodeCount = 10

// GenerateRecoveryCodes generates a fresh set of recovery codes in the format
// "xxxx-xxxx-xxxx-xxxx-xxxx", each representing 10 random bytes (80 bits of entropy).
func GenerateRecoveryCodes() ([]string, error) {
	codes := make([]string, recoveryCodeCount)
	for i := range codes {
		b := make([]byte, 10)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate recovery code entropy: %w", err)
		}
		h := hex.EncodeToString(b)
		codes[i] = h[:4] + "-" + h[4:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:]
	}
	return codes, nil
}

// HashRecoveryCode hashes a recovery code with the same Argon2id parameters used for
// passwords. The hyphen separators are stripped so codes entered with or without them hash
// identically.
func HashRecoveryCode(code string, params value.HashParams) (string, error) {
	stripped := strings.ReplaceAll(code, "-", "")
	pw, err := value.ParsePassword(stripped)
	if err != nil {
		return "", fmt.Errorf("parse recovery code as password: %w", err)
	}
	return pw.Hash(params)
}

// VerifyRecoveryCode checks a plaintext recovery code against its Argon2id hash.
func VerifyRecoveryCode(code, hash string) (bool, error) {
	stripped := strings.ReplaceAll(code, "-", "")
	return value.Verify(stripped, hash)
}

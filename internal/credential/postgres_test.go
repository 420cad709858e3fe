package credential

import (
	"errors"
	"strings"
	"testing"
)

func TestCredentialSentinelErrors(t *testing.T) {
	t.Parallel()

	sentinels := []struct {
		name string
		err  error
	}{
		{"ErrUserAlreadyExists", ErrUserAlreadyExists},
		{"ErrUserNotFound", ErrUserNotFound},
		{"ErrInvalidCredentials", ErrInvalidCredentials},
	}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				if !errors.Is(a.err, b.err) {
					t.Errorf("errors.Is(%s, %s) = false, want true", a.name, b.name)
				}
			} else if errors.Is(a.err, b.err) {
				t.Errorf("errors.Is(%s, %s) = true, want false", a.name, b.name)
			}
		}
	}
}

func TestSelectColumnsMatchesScanUserOrder(t *testing.T) {
	t.Parallel()

	want := []string{"email", "password_hash", "requires_2fa", "two_fa_method", "mfa_totp_secret", "created_at"}
	got := strings.Split(selectColumns, ", ")

	if len(got) != len(want) {
		t.Fatalf("selectColumns has %d columns, want %d: %q", len(got), len(want), selectColumns)
	}
	for i, col := range want {
		if got[i] != col {
			t.Errorf("selectColumns[%d] = %q, want %q (scanUser scans positionally)", i, got[i], col)
		}
	}
}

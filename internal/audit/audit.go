// Package audit records security-relevant events emitted by the auth engine, starting with
// 2FA verification attempts.
package audit

import (
	"context"

	"github.com/fennelauth/authcore/internal/value"
)

// Event identifies the kind of audited occurrence.
type Event string

const (
	Event2FASuccess Event = "2fa_success"
	Event2FAFailed  Event = "2fa_failed"
)

// Entry is a single audit record, per spec: {email, event, reason?, unix_ts}.
type Entry struct {
	Email  value.Email
	Event  Event
	Reason string
	UnixTS int64
}

// Sink persists audit entries. Implementations must not block the caller on a slow downstream;
// a failure to record an entry must never fail the auth operation that produced it.
type Sink interface {
	Record(ctx context.Context, entry Entry) error
}

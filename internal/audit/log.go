package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes entries through a structured logger. It is the production default: audit
// entries land in the same log stream as the rest of the service, at Info for success and Warn
// for failure, so they're cheap to ship wherever the deployment already aggregates logs.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a LogSink writing through log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Record(_ context.Context, entry Entry) error {
	event := s.log.Info()
	if entry.Event == Event2FAFailed {
		event = s.log.Warn()
	}

	event.
		Str("email", entry.Email.String()).
		Str("event", string(entry.Event)).
		Int64("unix_ts", entry.UnixTS)

	if entry.Reason != "" {
		event.Str("reason", entry.Reason)
	}

	event.Msg("2FA verification attempt")
	return nil
}

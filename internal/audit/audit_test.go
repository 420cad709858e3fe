package audit

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fennelauth/authcore/internal/value"
)

func mustEmail(t *testing.T, s string) value.Email {
	t.Helper()
	e, err := value.ParseEmail(s)
	if err != nil {
		t.Fatalf("ParseEmail(%q) error = %v", s, err)
	}
	return e
}

func TestMemorySinkRecordsInOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := NewMemorySink()
	email := mustEmail(t, "alice@example.com")

	if err := sink.Record(ctx, Entry{Email: email, Event: Event2FAFailed, Reason: "mismatch", UnixTS: 1}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := sink.Record(ctx, Entry{Email: email, Event: Event2FASuccess, UnixTS: 2}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries := sink.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(Entries()) = %d, want 2", len(entries))
	}
	if entries[0].Event != Event2FAFailed || entries[1].Event != Event2FASuccess {
		t.Errorf("entries out of order: %+v", entries)
	}
}

func TestMemorySinkEntriesReturnsCopy(t *testing.T) {
	t.Parallel()
	sink := NewMemorySink()
	_ = sink.Record(context.Background(), Entry{Email: mustEmail(t, "alice@example.com"), Event: Event2FASuccess})

	entries := sink.Entries()
	entries[0].Reason = "mutated"

	if sink.Entries()[0].Reason == "mutated" {
		t.Error("Entries() leaked internal slice; mutation through the returned copy affected the sink")
	}
}

func TestLogSinkRecord(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))
	email := mustEmail(t, "alice@example.com")

	if err := sink.Record(context.Background(), Entry{Email: email, Event: Event2FAFailed, Reason: "bad code", UnixTS: 42}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"alice@example.com", "2fa_failed", "bad code", "warn"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

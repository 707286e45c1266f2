package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return New(Config{
		Handler:   slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		Component: ComponentLedger,
	})
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	logger.Info("hello", FieldUser, "alice")
	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "user=alice") {
		t.Errorf("log line missing fields: %q", out)
	}

	buf.Reset()
	logger.WithComponent(ComponentTarot).Warn("drawn")
	if got := buf.String(); !strings.Contains(got, "component=tarot") || strings.Contains(got, "component=ledger") {
		t.Errorf("WithComponent should replace the component: %q", got)
	}
}

func TestFromContext(t *testing.T) {
	if l := FromContext(context.Background()); l.Component() != "unknown" {
		t.Errorf("FromContext(empty) component = %q, want unknown", l.Component())
	}

	logger := Discard()
	ctx := NewContext(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Error("FromContext should return the stored logger")
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf))
	ctx := context.Background()

	sl.LogTransactionRecorded(ctx, "alice", "Coffee", 300, "Food", "ref-1")
	out := buf.String()
	for _, want := range []string{"operation=record", "amount=300", "ref=ref-1", "category=Food"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}

	buf.Reset()
	r := httptest.NewRequest(http.MethodPost, "/transactions", nil)
	sl.LogHTTPEnd(ctx, r, http.StatusInternalServerError, 12, "10.0.0.1")
	if out := buf.String(); !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "status_code=500") {
		t.Errorf("unexpected HTTP log: %q", out)
	}

	buf.Reset()
	sl.LogError(ctx, "failed", errors.New("boom"), ComponentStore, OpSummary, nil)
	if out := buf.String(); !strings.Contains(out, "error=boom") || !strings.Contains(out, "operation=summary") {
		t.Errorf("unexpected error log: %q", out)
	}
}

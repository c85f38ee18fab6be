package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Format: "json", Component: ComponentImport, Output: &buf})
	l.InfoContext(context.Background(), "Import started", FieldAccountID, "acc-1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if rec[FieldComponent] != ComponentImport {
		t.Fatalf("component: %v", rec[FieldComponent])
	}
	if rec[FieldAccountID] != "acc-1" {
		t.Fatalf("account: %v", rec[FieldAccountID])
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Format: "json", Output: &buf}))

	sl.LogImportCompleted(context.Background(), "acc-1", "book-1", 3, 0, 1)
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec[FieldImported] != float64(3) || rec[FieldParseErrors] != float64(1) || rec[FieldBookID] != "book-1" {
		t.Fatalf("unexpected record: %v", rec)
	}

	buf.Reset()
	sl.LogError(context.Background(), "Recompute failed", errors.New("boom"), ComponentAggregate, OpRecompute, nil)
	rec = nil
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec[FieldError] != "boom" || rec["level"] != "ERROR" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Fatalf("unexpected fallback logger: %+v", l)
	}
}

func TestMiddlewareChain(t *testing.T) {
	base := New(Config{Component: ComponentHTTP, Output: &bytes.Buffer{}})

	var got *Logger
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	})
	h := Middleware(base)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(final))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil || got.Component() != ComponentHTTP {
		t.Fatalf("expected http logger in context, got %+v", got)
	}
}

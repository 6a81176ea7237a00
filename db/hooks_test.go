package db

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recordingHook struct {
	mu      sync.Mutex
	queries []string
	errs    []error
}

func (h *recordingHook) BeforeQuery(ctx context.Context, _ string) context.Context { return ctx }

func (h *recordingHook) AfterQuery(_ context.Context, query string, _ time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queries = append(h.queries, compactQuery(query))
	h.errs = append(h.errs, err)
}

type panicHook struct{}

func (panicHook) BeforeQuery(context.Context, string) context.Context { panic("before") }
func (panicHook) AfterQuery(context.Context, string, time.Duration, error) {
	panic("after")
}

func TestHooksSeeEveryStatement(t *testing.T) {
	rec := &recordingHook{}
	d := newTestDB(t, func(c *Config) { c.Hooks = []Hook{panicHook{}, nil, rec} })

	if _, err := d.CountUsers(context.Background()); err != nil {
		t.Fatalf("CountUsers: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.queries) != 1 || rec.queries[0] != "SELECT COUNT(*) FROM users" {
		t.Fatalf("queries = %q", rec.queries)
	}
	if rec.errs[0] != nil {
		t.Fatalf("unexpected error %v", rec.errs[0])
	}
}

func TestQueryHooksFinishWhenRowsClose(t *testing.T) {
	rec := &recordingHook{}
	d := newTestDB(t, func(c *Config) { c.Hooks = []Hook{rec} })
	ctx := context.Background()
	mustUser(t, d, "a@example.com", "USER")
	mustUser(t, d, "b@example.com", "USER")

	recorded := func() int {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.queries)
	}
	base := recorded()

	rows, err := d.run.query(ctx, `SELECT id FROM users`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	n := 0
	for rows.Next() {
		n++
	}
	if got := recorded(); got != base {
		t.Fatalf("hooks ran before Close: %d new entries", got-base)
	}
	if err := rows.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_ = rows.Close()

	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.queries) != base+1 || rec.queries[base] != "SELECT id FROM users" || rec.errs[base] != nil {
		t.Fatalf("queries = %q errs = %v", rec.queries[base:], rec.errs[base:])
	}
}

func TestLogHookLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := &LogHook{Logger: logger, SlowQuery: 10 * time.Millisecond}
	ctx := context.Background()

	h.AfterQuery(ctx, "SELECT 1", time.Millisecond, nil)
	h.AfterQuery(ctx, "SELECT 2", time.Second, nil)
	h.AfterQuery(ctx, "SELECT 3", time.Millisecond, &Error{Sentinel: ErrBusy})
	h.AfterQuery(ctx, "SELECT 4", time.Millisecond, &Error{Sentinel: ErrNotFound})

	var levels []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		levels = append(levels, rec["level"].(string))
	}
	want := []string{"DEBUG", "WARN", "ERROR", "DEBUG"}
	if strings.Join(levels, ",") != strings.Join(want, ",") {
		t.Fatalf("levels = %v, want %v", levels, want)
	}
}

func TestTraceHookRecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	d := newTestDB(t, func(c *Config) {
		c.Hooks = []Hook{&TraceHook{Tracer: tp.Tracer("test")}}
	})
	if _, err := d.UserByID(context.Background(), "missing"); err == nil {
		t.Fatal("expected not found")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "db.query" {
		t.Fatalf("span name = %q", spans[0].Name)
	}
}

package db

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Hook observes every statement the store runs.
// Implementations must be goroutine-safe.
type Hook interface {
	// BeforeQuery may return a derived context (for example one carrying a span).
	BeforeQuery(ctx context.Context, query string) context.Context
	// AfterQuery receives the already-mapped error, nil on success.
	AfterQuery(ctx context.Context, query string, d time.Duration, err error)
}

type hookChain struct {
	hooks []Hook
}

func newHookChain(hooks []Hook) hookChain {
	filtered := make([]Hook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return hookChain{hooks: filtered}
}

func (c hookChain) before(ctx context.Context, query string) context.Context {
	for _, h := range c.hooks {
		ctx = safeBefore(h, ctx, query)
	}
	return ctx
}

func (c hookChain) after(ctx context.Context, query string, d time.Duration, err error) {
	for _, h := range c.hooks {
		safeAfter(h, ctx, query, d, err)
	}
}

func safeBefore(h Hook, ctx context.Context, query string) (out context.Context) {
	out = ctx
	defer func() {
		if r := recover(); r != nil {
			slog.Error("db: hook panic in BeforeQuery", "panic", r)
			out = ctx
		}
	}()
	if next := h.BeforeQuery(ctx, query); next != nil {
		out = next
	}
	return out
}

func safeAfter(h Hook, ctx context.Context, query string, d time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("db: hook panic in AfterQuery", "panic", r)
		}
	}()
	h.AfterQuery(ctx, query, d, err)
}

// LogHook logs statements: failures at error, slow ones at warn, the rest at debug.
type LogHook struct {
	Logger *slog.Logger
	// SlowQuery of zero disables slow-query warnings.
	SlowQuery time.Duration
}

func (h *LogHook) BeforeQuery(ctx context.Context, _ string) context.Context { return ctx }

func (h *LogHook) AfterQuery(ctx context.Context, query string, d time.Duration, err error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		slog.String("query", compactQuery(query)),
		slog.Duration("duration", d),
	}
	switch {
	case err != nil && !IsNotFound(err):
		logger.ErrorContext(ctx, "db: query error", append(attrs, slog.Any("error", err))...)
	case h.SlowQuery > 0 && d > h.SlowQuery:
		logger.WarnContext(ctx, "db: slow query", attrs...)
	default:
		logger.DebugContext(ctx, "db: query", attrs...)
	}
}

// TraceHook records one OpenTelemetry span per statement.
type TraceHook struct {
	Tracer trace.Tracer
}

// NewTraceHook uses the global tracer provider.
func NewTraceHook() *TraceHook {
	return &TraceHook{Tracer: otel.Tracer("campusconnect/db")}
}

func (h *TraceHook) BeforeQuery(ctx context.Context, query string) context.Context {
	ctx, _ = h.Tracer.Start(ctx, "db.query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "sqlite"),
			attribute.String("db.statement", compactQuery(query)),
		),
	)
	return ctx
}

func (h *TraceHook) AfterQuery(ctx context.Context, _ string, _ time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil && !IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func compactQuery(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > 500 {
		return q[:500] + "…"
	}
	return q
}

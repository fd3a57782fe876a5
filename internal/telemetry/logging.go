package telemetry

import (
	"context"
	"log/slog"
)

// Logger is a minimal wrapper allowing trace correlation injection,
// grounded on the ambient correlated-slog idiom this module inherited
// and pointed at the real OpenTelemetry span context instead of a
// hand-rolled tracer.
type Logger interface {
	InfoCtx(ctx context.Context, msg string, attrs ...any)
	WarnCtx(ctx context.Context, msg string, attrs ...any)
	ErrorCtx(ctx context.Context, msg string, attrs ...any)
}

type correlatedLogger struct{ base *slog.Logger }

// NewLogger returns a correlated Logger wrapping base (slog.Default if nil).
func NewLogger(base *slog.Logger) Logger {
	if base == nil {
		base = slog.Default()
	}
	return &correlatedLogger{base: base}
}

func withTraceAttrs(ctx context.Context, attrs []any) []any {
	traceID, spanID := extractIDs(ctx)
	if traceID == "" && spanID == "" {
		return attrs
	}
	return append(attrs, slog.String("trace_id", traceID), slog.String("span_id", spanID))
}

func (l *correlatedLogger) InfoCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.InfoContext(ctx, msg, withTraceAttrs(ctx, attrs)...)
}

func (l *correlatedLogger) WarnCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.WarnContext(ctx, msg, withTraceAttrs(ctx, attrs)...)
}

func (l *correlatedLogger) ErrorCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.ErrorContext(ctx, msg, withTraceAttrs(ctx, attrs)...)
}

// Package telemetry provides the ambient logging, tracing and metrics
// stack shared by the engine and worker pool: a slog logger correlated
// with trace/span IDs, OpenTelemetry spans around analysis operations,
// and a concrete set of Prometheus metrics.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this module's spans in exported traces.
const tracerName = "streamvision"

// Tracer returns the global OpenTelemetry tracer for this module. Callers
// that never configure an SDK exporter still get a valid no-op tracer,
// matching otel's own default behavior.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name as a child of ctx's current span,
// returning the derived context to thread through the call.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// extractIDs reads the trace and span IDs off ctx's current span, if
// any. It mirrors the correlation idiom used for the hand-rolled
// tracer this module replaces with the real OpenTelemetry SDK, so
// logging can stay format-compatible while sourcing real span context.
func extractIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

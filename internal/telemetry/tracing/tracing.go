// Package tracing wires OpenTelemetry spans around the network task's
// visibility sessions (clock-sync exchanges get no span of their own), and
// extracts correlation IDs for the structured logger.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "satsim/netlink"

// Tracer returns the package-wide tracer, sourced from the globally
// configured otel TracerProvider.
func Tracer() trace.Tracer { return otel.Tracer(tracerName) }

// StartSpan starts a child span named name under ctx.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name)
}

// ExtractIDs returns the trace and span IDs present in ctx, or empty
// strings if ctx carries no active span.
func ExtractIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

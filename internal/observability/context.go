package observability

import (
	"context"

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
)

// DetachTraceContextFrom returns base carrying the span and baggage of src.
// Work started from a request keeps the request's trace but is cancelled
// only when base is.
func DetachTraceContextFrom(src, base context.Context) context.Context {
	ctx := base
	if sc := trace.SpanContextFromContext(src); sc.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, sc)
	}
	if b := baggage.FromContext(src); b.Len() > 0 {
		ctx = baggage.ContextWithBaggage(ctx, b)
	}
	return ctx
}

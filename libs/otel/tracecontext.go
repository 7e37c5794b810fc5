package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	keyTraceparent = "traceparent"
	keyTracestate  = "tracestate"
)

// TraceContextStrings returns the W3C headers for ctx, empty when ctx has no
// span. Outbox rows store them so the publisher can continue the trace.
func TraceContextStrings(ctx context.Context) (traceparent, tracestate string) {
	c := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, c)
	return c.Get(keyTraceparent), c.Get(keyTracestate)
}

// ContextWithTraceContext is the inverse of TraceContextStrings.
func ContextWithTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	c := propagation.MapCarrier{keyTraceparent: traceparent}
	if tracestate != "" {
		c[keyTracestate] = tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, c)
}

// Detached keeps the span of ctx but drops its deadline and cancellation.
// Dispatched side effects run on it after the request has returned.
func Detached(ctx context.Context) context.Context {
	return trace.ContextWithSpanContext(context.Background(), trace.SpanContextFromContext(ctx))
}

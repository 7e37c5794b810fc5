package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestConfigFromEnvDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")

	cfg := ConfigFromEnv("booking-service")
	if cfg.Enabled() {
		t.Fatalf("expected tracing disabled without endpoint")
	}
	if cfg.SampleRatio != 0.25 || cfg.ServiceName != "booking-service" {
		t.Fatalf("unexpected cfg %+v", cfg)
	}

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317")
	if cfg := ConfigFromEnv("x"); !cfg.Enabled() || cfg.Endpoint != "jaeger:4317" {
		t.Fatalf("unexpected cfg %+v", cfg)
	}

	t.Setenv("OTEL_ENABLED", "false")
	if ConfigFromEnv("x").Enabled() {
		t.Fatalf("OTEL_ENABLED=false should win over endpoint")
	}
}

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "auth-service"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestTraceContextRoundTripAndDetach(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx, cancel := context.WithCancel(trace.ContextWithSpanContext(context.Background(), sc))

	tp, ts := TraceContextStrings(ctx)
	if tp == "" {
		t.Fatalf("expected traceparent")
	}
	restored := ContextWithTraceContext(context.Background(), tp, ts)
	if trace.SpanContextFromContext(restored).TraceID() != traceID {
		t.Fatalf("trace id lost")
	}

	detached := Detached(ctx)
	cancel()
	if detached.Err() != nil {
		t.Fatalf("detached context cancelled with parent")
	}
	if trace.SpanContextFromContext(detached).TraceID() != traceID {
		t.Fatalf("detached context lost span")
	}
}

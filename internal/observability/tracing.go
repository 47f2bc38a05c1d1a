// Package observability wires OpenTelemetry tracing for the decision
// endpoint: a root span per request with child spans per orchestration
// phase (spec §4.7), exported to stdout in dev/diagnostic deployments.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/sentinelpolicy/policygate"

// TracerProvider wraps the SDK tracer provider so callers can shut it down
// cleanly alongside the HTTP server.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// NewTracerProvider builds a tracer provider for the given exporter kind.
// "stdout" writes spans to stdout (pretty-printed); any other value (in
// particular "none") leaves the global tracer provider at its default,
// which is a zero-cost no-op, so Tracer() calls stay cheap when tracing is
// disabled.
func NewTracerProvider(exporterKind, serviceVersion string) (*TracerProvider, error) {
	if exporterKind != "stdout" {
		return &TracerProvider{}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("observability: create trace exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("policy-gate"),
			semconv.ServiceVersionKey.String(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	return &TracerProvider{provider: provider}, nil
}

// Shutdown flushes and releases the underlying tracer provider, if any.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// Tracer returns the package-scoped tracer used for decision-endpoint spans.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a child span under the root request span in ctx.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// Common attribute keys for decision-endpoint spans.
var (
	AttrSessionID = attribute.Key("policygate.session_id")
	AttrAgentID   = attribute.Key("policygate.agent_id")
	AttrToolName  = attribute.Key("policygate.tool_name")
	AttrDecision  = attribute.Key("policygate.allowed")
	AttrErrorCode = attribute.Key("policygate.error_code")
	AttrEnvID     = attribute.Key("policygate.env_id")
)

package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the runtime tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("hotmod")

// SpanManager handles trace span lifecycle around module operations.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartLoadSpan starts a span for a module load.
	StartLoadSpan(ctx context.Context, module, path string) (context.Context, trace.Span)

	// StartReloadSpan starts a span for a module reload.
	StartReloadSpan(ctx context.Context, module string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function.
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartLoadSpan starts a span for a module load.
func (m *otelSpanManager) StartLoadSpan(ctx context.Context, module, path string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "hotmod.load",
		trace.WithAttributes(
			attribute.String("module", module),
			attribute.String("path", path),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartReloadSpan starts a span for a module reload.
func (m *otelSpanManager) StartReloadSpan(ctx context.Context, module string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "hotmod.reload",
		trace.WithAttributes(
			attribute.String("module", module),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

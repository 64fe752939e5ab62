package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordLoad does nothing.
func (NoopMetrics) RecordLoad(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordUnload does nothing.
func (NoopMetrics) RecordUnload(_ context.Context, _ string) {}

// RecordReload does nothing.
func (NoopMetrics) RecordReload(_ context.Context, _ string, _, _ bool, _ time.Duration) {}

// RecordPublish does nothing.
func (NoopMetrics) RecordPublish(_ context.Context, _ string, _ int) {}

// RecordSubscriberPanic does nothing.
func (NoopMetrics) RecordSubscriberPanic(_ context.Context, _ string) {}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

// noopSpan is a span that does nothing.
var noopSpan = noop.Span{}

// StartLoadSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartLoadSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartReloadSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartReloadSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records module runtime metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordLoad records a module load attempt with its duration and error status.
	RecordLoad(ctx context.Context, module string, duration time.Duration, err error)

	// RecordUnload records a module unload.
	RecordUnload(ctx context.Context, module string)

	// RecordReload records a reload attempt. rolledBack is true when the
	// previous instance had to be restored.
	RecordReload(ctx context.Context, module string, success, rolledBack bool, duration time.Duration)

	// RecordPublish records an event publication and its subscriber count.
	RecordPublish(ctx context.Context, topic string, subscribers int)

	// RecordSubscriberPanic records a recovered subscriber panic.
	RecordSubscriberPanic(ctx context.Context, topic string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	loads       metric.Int64Counter
	loadLatency metric.Float64Histogram
	loadErrors  metric.Int64Counter
	unloads     metric.Int64Counter
	reloads     metric.Int64Counter
	rollbacks   metric.Int64Counter
	publishes   metric.Int64Counter
	fanout      metric.Int64Histogram
	panics      metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	return newOtelMetricsWithMeter(otel.Meter("hotmod"))
}

func newOtelMetricsWithMeter(meter metric.Meter) (*otelMetrics, error) {
	loads, err := meter.Int64Counter("hotmod.module.loads",
		metric.WithDescription("Number of module load attempts"),
	)
	if err != nil {
		return nil, err
	}

	loadLatency, err := meter.Float64Histogram("hotmod.module.load_latency_ms",
		metric.WithDescription("Module load latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	loadErrors, err := meter.Int64Counter("hotmod.module.load_errors",
		metric.WithDescription("Number of failed module loads"),
	)
	if err != nil {
		return nil, err
	}

	unloads, err := meter.Int64Counter("hotmod.module.unloads",
		metric.WithDescription("Number of module unloads"),
	)
	if err != nil {
		return nil, err
	}

	reloads, err := meter.Int64Counter("hotmod.module.reloads",
		metric.WithDescription("Number of module reload attempts"),
	)
	if err != nil {
		return nil, err
	}

	rollbacks, err := meter.Int64Counter("hotmod.module.rollbacks",
		metric.WithDescription("Number of reloads that restored the previous instance"),
	)
	if err != nil {
		return nil, err
	}

	publishes, err := meter.Int64Counter("hotmod.bus.publishes",
		metric.WithDescription("Number of events published on the bus"),
	)
	if err != nil {
		return nil, err
	}

	fanout, err := meter.Int64Histogram("hotmod.bus.fanout",
		metric.WithDescription("Subscribers reached per publish"),
	)
	if err != nil {
		return nil, err
	}

	panics, err := meter.Int64Counter("hotmod.bus.subscriber_panics",
		metric.WithDescription("Number of recovered subscriber panics"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		loads:       loads,
		loadLatency: loadLatency,
		loadErrors:  loadErrors,
		unloads:     unloads,
		reloads:     reloads,
		rollbacks:   rollbacks,
		publishes:   publishes,
		fanout:      fanout,
		panics:      panics,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordLoad records a module load attempt.
func (m *otelMetrics) RecordLoad(ctx context.Context, module string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("module", module),
	}

	m.loads.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.loadLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.loadErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordUnload records a module unload.
func (m *otelMetrics) RecordUnload(ctx context.Context, module string) {
	m.unloads.Add(ctx, 1, metric.WithAttributes(attribute.String("module", module)))
}

// RecordReload records a reload attempt.
func (m *otelMetrics) RecordReload(ctx context.Context, module string, success, rolledBack bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("module", module),
		attribute.Bool("success", success),
	}
	m.reloads.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.loadLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if rolledBack {
		m.rollbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("module", module)))
	}
}

// RecordPublish records an event publication.
func (m *otelMetrics) RecordPublish(ctx context.Context, topic string, subscribers int) {
	attrs := []attribute.KeyValue{
		attribute.String("topic", topic),
	}
	m.publishes.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.fanout.Record(ctx, int64(subscribers), metric.WithAttributes(attrs...))
}

// RecordSubscriberPanic records a recovered subscriber panic.
func (m *otelMetrics) RecordSubscriberPanic(ctx context.Context, topic string) {
	m.panics.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

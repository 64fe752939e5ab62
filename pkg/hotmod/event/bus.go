package event

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/randalmurphal/hotmod/pkg/hotmod/observability"
)

// Callback receives the data value passed to Publish.
type Callback func(data any)

// Handle identifies one subscription for later removal.
type Handle string

// subscriber pairs a callback with its handle.
type subscriber struct {
	handle Handle
	fn     Callback
}

// Bus is a synchronous in-process publish/subscribe broker.
//
// Publish snapshots the subscriber list under the bus lock, releases the
// lock, then invokes each callback in registration order. A panicking
// subscriber is recovered, logged, and never prevents delivery to the
// remaining subscribers. Because the lock is never held across callback
// invocation, subscribers may call Subscribe, Unsubscribe, or Publish
// from inside a delivery without deadlocking; such mutations affect only
// later publishes, never the in-flight snapshot.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]subscriber

	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	failures *failureLog
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used for subscriber failures.
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithMetrics sets the metrics recorder for publish and panic counts.
func WithMetrics(rec observability.MetricsRecorder) BusOption {
	return func(b *Bus) {
		if rec != nil {
			b.metrics = rec
		}
	}
}

// WithFailureLog keeps the most recent n subscriber failures for
// diagnostics, retrievable via RecentFailures.
func WithFailureLog(n int) BusOption {
	return func(b *Bus) {
		b.failures = newFailureLog(n)
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs:    make(map[string][]subscriber),
		metrics: observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a callback for a topic and returns its handle.
// Multiple subscriptions to the same topic are delivered in registration
// order. Subscribe never fails; a nil callback is registered as a no-op.
func (b *Bus) Subscribe(topic string, fn Callback) Handle {
	if fn == nil {
		fn = func(any) {}
	}
	handle := Handle(uuid.NewString())

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], subscriber{handle: handle, fn: fn})
	b.mu.Unlock()

	return handle
}

// Unsubscribe removes the callback registered under handle for topic.
// Removing an unknown handle is a no-op.
func (b *Bus) Unsubscribe(topic string, handle Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, sub := range subs {
		if sub.handle == handle {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			return
		}
	}
}

// Publish delivers data to every subscriber of topic, synchronously, in
// registration order. The subscriber list is the one that existed when
// Publish was called. Publish itself never fails.
func (b *Bus) Publish(topic string, data any) {
	b.mu.Lock()
	snapshot := make([]subscriber, len(b.subs[topic]))
	copy(snapshot, b.subs[topic])
	b.mu.Unlock()

	b.metrics.RecordPublish(context.Background(), topic, len(snapshot))

	for _, sub := range snapshot {
		b.deliver(topic, sub, data)
	}
}

// deliver invokes one callback with panic isolation.
func (b *Bus) deliver(topic string, sub subscriber, data any) {
	defer func() {
		if r := recover(); r != nil {
			observability.LogSubscriberPanic(b.logger, topic, r)
			b.metrics.RecordSubscriberPanic(context.Background(), topic)
			if b.failures != nil {
				b.failures.record(topic, sub.handle, r)
			}
		}
	}()
	sub.fn(data)
}

// Clear removes all subscribers for the given topics, or every
// subscriber when no topic is given.
func (b *Bus) Clear(topics ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(topics) == 0 {
		b.subs = make(map[string][]subscriber)
		return
	}
	for _, topic := range topics {
		delete(b.subs, topic)
	}
}

// SubscriberCount returns the number of subscribers for a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// RecentFailures returns the retained subscriber failures, oldest first.
// Returns nil unless the bus was built with WithFailureLog.
func (b *Bus) RecentFailures() []Failure {
	if b.failures == nil {
		return nil
	}
	return b.failures.snapshot()
}

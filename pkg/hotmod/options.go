package hotmod

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/hotmod/pkg/hotmod/observability"
	"github.com/randalmurphal/hotmod/pkg/hotmod/webhook"
)

// ReloadCallback observes the outcome of watcher-driven reloads. It runs
// on the watcher's goroutine after the reload completed.
type ReloadCallback func(name string, success bool)

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger shared by the host and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) { h.logger = logger }
}

// WithMetrics sets the metrics recorder for lifecycle and bus activity.
func WithMetrics(rec observability.MetricsRecorder) Option {
	return func(h *Host) {
		if rec != nil {
			h.metrics = rec
		}
	}
}

// WithSpans sets the span manager for load and reload tracing.
func WithSpans(spans observability.SpanManager) Option {
	return func(h *Host) {
		if spans != nil {
			h.spans = spans
		}
	}
}

// WithHotReload enables or disables watcher-driven reloads. Enabled by
// default.
func WithHotReload(enabled bool) Option {
	return func(h *Host) { h.hotReload = enabled }
}

// WithDebounce sets the quiet period before a file change triggers a
// reload.
func WithDebounce(d time.Duration) Option {
	return func(h *Host) {
		if d > 0 {
			h.debounce = d
		}
	}
}

// WithReloadCallback registers an observer for watcher-driven reloads.
func WithReloadCallback(fn ReloadCallback) Option {
	return func(h *Host) { h.reloadCallback = fn }
}

// WithNotifier attaches a webhook notifier to the host's bus so module
// failures reach an external endpoint.
func WithNotifier(n *webhook.Notifier) Option {
	return func(h *Host) { h.notifier = n }
}

// WithSourceExtensions overrides the file extensions the watcher treats
// as module source.
func WithSourceExtensions(exts ...string) Option {
	return func(h *Host) { h.sourceExts = exts }
}

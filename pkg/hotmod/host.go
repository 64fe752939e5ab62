package hotmod

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/randalmurphal/hotmod/pkg/hotmod/config"
	"github.com/randalmurphal/hotmod/pkg/hotmod/event"
	"github.com/randalmurphal/hotmod/pkg/hotmod/observability"
	"github.com/randalmurphal/hotmod/pkg/hotmod/registry"
	"github.com/randalmurphal/hotmod/pkg/hotmod/watcher"
	"github.com/randalmurphal/hotmod/pkg/hotmod/webhook"
)

// Host ties the registry, the event bus, and the file watcher into one
// runtime. Modules loaded through the host get hot reload for free when
// their source files change on disk.
type Host struct {
	bus      *event.Bus
	registry *registry.Registry
	watcher  *watcher.Watcher

	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	hotReload      bool
	debounce       time.Duration
	reloadCallback ReloadCallback
	sourceExts     []string
	notifier       *webhook.Notifier

	mu       sync.Mutex
	bySource map[string]string // absolute source path -> module name
	started  bool
	stopped  bool
}

// New creates a host that materializes modules through loader.
func New(loader registry.Loader, opts ...Option) *Host {
	h := &Host{
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
		hotReload: true,
		debounce:  watcher.DefaultDebounce,
		bySource:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.bus = event.NewBus(
		event.WithLogger(h.logger),
		event.WithMetrics(h.metrics),
	)
	h.registry = registry.New(loader, h.bus,
		registry.WithLogger(h.logger),
		registry.WithMetrics(h.metrics),
		registry.WithSpans(h.spans),
	)

	watchOpts := []watcher.Option{
		watcher.WithLogger(h.logger),
		watcher.WithDebounce(h.debounce),
	}
	if len(h.sourceExts) > 0 {
		watchOpts = append(watchOpts, watcher.WithExtensions(h.sourceExts...))
	}
	h.watcher = watcher.New(h.onSourceChanged, watchOpts...)

	if h.notifier != nil {
		h.notifier.Attach(h.bus)
	}
	return h
}

// Bus exposes the host's event bus for application subscriptions.
func (h *Host) Bus() *event.Bus { return h.bus }

// Start loads every record and announces host.started. Individual load
// failures are reported on the bus and do not abort startup; the
// returned map holds per-module outcomes keyed by name.
func (h *Host) Start(ctx context.Context, records []registry.Record) map[string]bool {
	h.mu.Lock()
	h.started = true
	h.mu.Unlock()

	results := make(map[string]bool, len(records))
	for _, rec := range records {
		results[rec.Name] = h.Load(ctx, rec)
	}

	h.bus.Publish(event.TopicHostStarted, nil)
	return results
}

// Load loads a single record and, when hot reload is on, arms a watch
// on the record's source directory.
func (h *Host) Load(ctx context.Context, rec registry.Record) bool {
	ok := h.registry.Load(ctx, rec)
	if !rec.Enabled {
		return ok
	}

	if abs, err := filepath.Abs(rec.Source); err == nil {
		h.mu.Lock()
		h.bySource[abs] = rec.Name
		h.mu.Unlock()

		if ok && h.hotReload {
			if err := h.watcher.WatchDirectory(filepath.Dir(abs)); err != nil && h.logger != nil {
				h.logger.Warn("hot reload unavailable for module",
					slog.String("module", rec.Name),
					slog.String("error", err.Error()))
			}
		}
	}
	return ok
}

// Unload shuts a module down and forgets its source mapping.
func (h *Host) Unload(ctx context.Context, name string) bool {
	ok := h.registry.Unload(ctx, name)
	if ok {
		h.mu.Lock()
		for path, n := range h.bySource {
			if n == name {
				delete(h.bySource, path)
			}
		}
		h.mu.Unlock()
	}
	return ok
}

// Reload replaces a module's running code with a fresh read of its
// source, keeping its current configuration.
func (h *Host) Reload(ctx context.Context, name string) bool {
	return h.registry.Reload(ctx, name, config.Config{})
}

// ReloadWithConfig reloads and hands the new instance a fresh
// configuration.
func (h *Host) ReloadWithConfig(ctx context.Context, name string, cfg config.Config) bool {
	return h.registry.Reload(ctx, name, cfg)
}

// GetModule returns the active instance for name.
func (h *Host) GetModule(name string) (any, bool) {
	return h.registry.GetModule(name)
}

// StateOf returns the lifecycle state of a known module.
func (h *Host) StateOf(name string) (registry.State, bool) {
	return h.registry.StateOf(name)
}

// ListLoadedNames returns loaded module names in load order.
func (h *Host) ListLoadedNames() []string {
	return h.registry.ListLoadedNames()
}

// ModuleTests collects the declared test files of loaded modules.
func (h *Host) ModuleTests() map[string][]string {
	return h.registry.ModuleTests()
}

// Shutdown stops watching, unloads modules in reverse load order, and
// announces host.shutdown before clearing all bus subscriptions.
// Shutting down twice is a no-op.
func (h *Host) Shutdown(ctx context.Context) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	if err := h.watcher.Stop(); err != nil && h.logger != nil {
		h.logger.Warn("watcher stop failed", slog.String("error", err.Error()))
	}

	h.registry.UnloadAll(ctx)
	h.bus.Publish(event.TopicHostShutdown, nil)
	h.bus.Clear()

	if h.logger != nil {
		h.logger.Info("host stopped")
	}
}

// onSourceChanged maps a settled file change back to its module and
// reloads it. Changes to files no module was loaded from are ignored.
func (h *Host) onSourceChanged(path string) {
	h.mu.Lock()
	name, ok := h.bySource[path]
	stopped := h.stopped
	h.mu.Unlock()
	if !ok || stopped {
		return
	}

	success := h.Reload(context.Background(), name)
	if h.reloadCallback != nil {
		h.reloadCallback(name, success)
	}
}

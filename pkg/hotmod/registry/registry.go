package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/hotmod/pkg/hotmod/config"
	hmerrors "github.com/randalmurphal/hotmod/pkg/hotmod/errors"
	"github.com/randalmurphal/hotmod/pkg/hotmod/event"
	"github.com/randalmurphal/hotmod/pkg/hotmod/observability"
)

// Registry owns the authoritative mapping from module name to record and
// performs the lifecycle transitions: load, unload, reload with rollback.
//
// All lifecycle errors are caught at the registry boundary and converted
// into a boolean result plus a published lifecycle event; they never
// propagate to the caller. A failure in one module never prevents
// operations on any other module.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	loaded  []string // names in successful-load order

	loader  Loader
	bus     *event.Bus
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec observability.MetricsRecorder) Option {
	return func(r *Registry) {
		if rec != nil {
			r.metrics = rec
		}
	}
}

// WithSpans sets the span manager for load/reload tracing.
func WithSpans(spans observability.SpanManager) Option {
	return func(r *Registry) {
		if spans != nil {
			r.spans = spans
		}
	}
}

// New creates a registry that materializes modules through loader and
// announces lifecycle transitions on bus.
func New(loader Loader, bus *event.Bus, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		loader:  loader,
		bus:     bus,
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load materializes rec's module and invokes its initialize hook.
//
// Disabled records are skipped. A load failure reports module.error with
// phase "load" and retains no state. An initialize failure reports
// module.error with phase "initialize"; the instance is still installed
// so it can be unloaded, but Load returns false. Only a load where
// initialize also succeeded returns true and publishes module.loaded.
func (r *Registry) Load(ctx context.Context, rec Record) bool {
	if !rec.Enabled {
		if r.logger != nil {
			r.logger.Info("module disabled, skipping",
				slog.String("module", rec.Name))
		}
		return false
	}

	e := r.getOrCreate(rec)
	if !e.acquire(ctx) {
		return false
	}
	defer e.release()

	r.mu.Lock()
	if e.state != Unloaded {
		r.mu.Unlock()
		if r.logger != nil {
			r.logger.Warn("module already loaded, use Reload to replace it",
				slog.String("module", rec.Name))
		}
		return false
	}
	e.state = Loading
	e.rec = rec
	r.mu.Unlock()

	start := time.Now()
	ctx, span := r.spans.StartLoadSpan(ctx, rec.Name, rec.Source)

	inst, err := r.loader.Load(ctx, rec.Name, rec.Source)
	if err != nil {
		r.setState(e, Unloaded)
		r.spans.EndSpanWithError(span, err)
		r.metrics.RecordLoad(ctx, rec.Name, time.Since(start), err)
		observability.LogModuleError(r.logger, rec.Name, hmerrors.PhaseLoad, err)
		r.bus.Publish(event.TopicModuleError, event.ModuleError{
			Name:  rec.Name,
			Error: err.Error(),
			Phase: hmerrors.PhaseLoad,
		})
		return false
	}

	handled, initErr := safeInitialize(inst, r.bus, rec.Config)
	if !handled && r.logger != nil {
		r.logger.Debug("module has no initialize hook",
			slog.String("module", rec.Name))
	}

	// The instance is installed even when initialize failed, so the
	// record can still be unloaded explicitly.
	r.mu.Lock()
	e.state = Loaded
	e.active = inst
	r.appendLoadedLocked(rec.Name)
	r.mu.Unlock()

	if initErr != nil {
		ierr := &hmerrors.InitializeError{Module: rec.Name, Err: initErr}
		r.spans.EndSpanWithError(span, ierr)
		r.metrics.RecordLoad(ctx, rec.Name, time.Since(start), ierr)
		observability.LogModuleError(r.logger, rec.Name, hmerrors.PhaseInitialize, ierr)
		r.bus.Publish(event.TopicModuleError, event.ModuleError{
			Name:  rec.Name,
			Error: ierr.Error(),
			Phase: hmerrors.PhaseInitialize,
		})
		return false
	}

	r.spans.EndSpanWithError(span, nil)
	r.metrics.RecordLoad(ctx, rec.Name, time.Since(start), nil)
	observability.LogModuleLoaded(r.logger, rec.Name, rec.Source,
		float64(time.Since(start).Milliseconds()))
	r.bus.Publish(event.TopicModuleLoaded, event.ModuleLoaded{
		Name:   rec.Name,
		Path:   rec.Source,
		Config: rec.Config.Raw(),
	})
	return true
}

// LoadAll loads each record independently, best-effort, and returns the
// per-module outcomes keyed by name.
func (r *Registry) LoadAll(ctx context.Context, records []Record) map[string]bool {
	results := make(map[string]bool, len(records))
	for _, rec := range records {
		results[rec.Name] = r.Load(ctx, rec)
	}
	return results
}

// Unload shuts the module down and removes its record. Shutdown hook
// failures are logged but do not fail the unload.
func (r *Registry) Unload(ctx context.Context, name string) bool {
	r.mu.Lock()
	e := r.entries[name]
	r.mu.Unlock()
	if e == nil {
		if r.logger != nil {
			r.logger.Warn("module not loaded", slog.String("module", name))
		}
		return false
	}

	if !e.acquire(ctx) {
		return false
	}
	defer e.release()

	r.mu.Lock()
	inst := e.active
	r.mu.Unlock()
	if inst == nil {
		if r.logger != nil {
			r.logger.Warn("module not loaded", slog.String("module", name))
		}
		return false
	}

	if _, err := safeShutdown(inst); err != nil && r.logger != nil {
		r.logger.Warn("module shutdown hook failed",
			slog.String("module", name),
			slog.String("error", err.Error()))
	}

	if rel, ok := r.loader.(Releaser); ok {
		rel.Release(name)
	}

	r.mu.Lock()
	e.active = nil
	e.previous = nil
	e.state = Unloaded
	delete(r.entries, name)
	r.removeLoadedLocked(name)
	r.mu.Unlock()

	r.metrics.RecordUnload(ctx, name)
	observability.LogModuleUnloaded(r.logger, name)
	return true
}

// UnloadAll unloads every record with an active instance, in reverse
// load order, each independently best-effort.
func (r *Registry) UnloadAll(ctx context.Context) {
	r.mu.Lock()
	names := make([]string, len(r.loaded))
	copy(names, r.loaded)
	r.mu.Unlock()

	for i := len(names) - 1; i >= 0; i-- {
		r.Unload(ctx, names[i])
	}
}

// Reload replaces the module's running code with a fresh read of its
// source. cfg, when non-zero, refreshes the configuration passed to the
// new instance's initialize hook.
//
// On failure the previous instance is restored and reinitialized;
// should that also fail, the record transitions to Unloaded and requires
// an explicit fresh Load. Reload returns true only when the new code
// ended up active.
func (r *Registry) Reload(ctx context.Context, name string, cfg config.Config) bool {
	r.mu.Lock()
	e := r.entries[name]
	r.mu.Unlock()
	if e == nil {
		if r.logger != nil {
			r.logger.Warn("module not loaded, cannot reload", slog.String("module", name))
		}
		return false
	}

	if !e.acquire(ctx) {
		return false
	}
	defer e.release()

	r.mu.Lock()
	if e.active == nil {
		r.mu.Unlock()
		if r.logger != nil {
			r.logger.Warn("module not loaded, cannot reload", slog.String("module", name))
		}
		return false
	}
	if cfg.Raw() != nil {
		e.rec.Config = cfg
	}
	rec := e.rec
	old := e.active
	e.previous = old
	e.state = Reloading
	r.mu.Unlock()

	start := time.Now()
	ctx, span := r.spans.StartReloadSpan(ctx, name)
	observability.LogReloadStart(r.logger, name, "source changed")

	// The outgoing instance gets a chance to release resources; its
	// failure must not abort the reload.
	if _, err := safeShutdown(old); err != nil && r.logger != nil {
		r.logger.Warn("shutdown of outgoing instance failed",
			slog.String("module", name),
			slog.String("error", err.Error()))
	}

	var cause error
	inst, err := r.loader.Load(ctx, rec.Name, rec.Source)
	if err != nil {
		cause = err
	} else if _, initErr := safeInitialize(inst, r.bus, rec.Config); initErr != nil {
		cause = &hmerrors.InitializeError{Module: name, Err: initErr}
	}

	if cause == nil {
		r.mu.Lock()
		e.active = inst
		e.previous = nil
		e.state = Loaded
		r.mu.Unlock()

		r.spans.EndSpanWithError(span, nil)
		r.metrics.RecordReload(ctx, name, true, false, time.Since(start))
		observability.LogReloadComplete(r.logger, name,
			float64(time.Since(start).Milliseconds()))
		r.bus.Publish(event.TopicModuleReloaded, event.ModuleReloaded{Name: name})
		return true
	}

	reloadErr := &hmerrors.ReloadError{Module: name, Err: cause}
	rolledBack, termErr := r.rollback(e, rec, reloadErr)

	r.spans.EndSpanWithError(span, termErr)
	r.metrics.RecordReload(ctx, name, false, rolledBack, time.Since(start))
	r.bus.Publish(event.TopicModuleReloadFailed, event.ModuleReloadFailed{
		Name:  name,
		Error: cause.Error(),
	})
	return false
}

// rollback restores the previous instance after a failed reload.
// Returns whether the previous instance is active again, plus the error
// describing the final outcome. When the re-initialize also fails, the
// record is left unloaded and needs an explicit fresh Load: a
// half-working instance must never be presented as active.
func (r *Registry) rollback(e *entry, rec Record, reloadErr *hmerrors.ReloadError) (bool, error) {
	r.mu.Lock()
	old := e.previous
	e.state = RolledBack
	r.mu.Unlock()

	if _, err := safeInitialize(old, r.bus, rec.Config); err != nil {
		cerr := &hmerrors.RollbackError{
			Module:      rec.Name,
			ReloadErr:   reloadErr.Err,
			RollbackErr: err,
		}
		observability.LogRollbackFailed(r.logger, rec.Name, reloadErr.Err, err)

		if rel, ok := r.loader.(Releaser); ok {
			rel.Release(rec.Name)
		}

		r.mu.Lock()
		e.active = nil
		e.previous = nil
		e.state = Unloaded
		r.removeLoadedLocked(rec.Name)
		r.mu.Unlock()
		return false, cerr
	}

	reloadErr.RolledBack = true
	r.mu.Lock()
	e.previous = nil
	e.state = Loaded // active still points at the restored old instance
	r.mu.Unlock()

	observability.LogRollback(r.logger, rec.Name, reloadErr.Err)
	return true, reloadErr
}

// GetModule returns the active instance for name.
func (r *Registry) GetModule(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[name]
	if e == nil || e.active == nil {
		return nil, false
	}
	return e.active, true
}

// StateOf returns the lifecycle state of a known record.
func (r *Registry) StateOf(name string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[name]
	if e == nil {
		return Unloaded, false
	}
	return e.state, true
}

// ListLoadedNames returns the names of loaded modules in load order.
func (r *Registry) ListLoadedNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.loaded))
	copy(out, r.loaded)
	return out
}

// ModuleTests collects the declared test files of every loaded module
// that implements TestProvider.
func (r *Registry) ModuleTests() map[string][]string {
	r.mu.Lock()
	instances := make(map[string]any, len(r.loaded))
	for _, name := range r.loaded {
		if e := r.entries[name]; e != nil && e.active != nil {
			instances[name] = e.active
		}
	}
	r.mu.Unlock()

	tests := make(map[string][]string)
	for name, inst := range instances {
		if tp, ok := inst.(TestProvider); ok {
			if files := tp.Tests(); len(files) > 0 {
				tests[name] = files
			}
		}
	}
	return tests
}

func (r *Registry) getOrCreate(rec Record) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[rec.Name]; ok {
		return e
	}
	e := newEntry(rec)
	r.entries[rec.Name] = e
	return e
}

func (r *Registry) setState(e *entry, s State) {
	r.mu.Lock()
	e.state = s
	r.mu.Unlock()
}

// appendLoadedLocked records a name in load order; caller holds r.mu.
func (r *Registry) appendLoadedLocked(name string) {
	for _, n := range r.loaded {
		if n == name {
			return
		}
	}
	r.loaded = append(r.loaded, name)
}

// removeLoadedLocked drops a name from the load order; caller holds r.mu.
func (r *Registry) removeLoadedLocked(name string) {
	for i, n := range r.loaded {
		if n == name {
			r.loaded = append(r.loaded[:i:i], r.loaded[i+1:]...)
			return
		}
	}
}

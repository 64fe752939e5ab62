package registry

import (
	"context"

	"github.com/randalmurphal/hotmod/pkg/hotmod/config"
)

// State is the lifecycle state of one module record.
type State int

const (
	// Unloaded means no instance is active for the record.
	Unloaded State = iota

	// Loading means a load is materializing the first instance.
	Loading

	// Loaded means an instance is active.
	Loaded

	// Reloading means a reload is replacing the active instance; the
	// previous instance is retained for rollback until the transition
	// resolves.
	Reloading

	// RolledBack means the last reload failed and the previous instance
	// was restored; the record settles back to Loaded once the restored
	// instance reinitializes.
	RolledBack
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Reloading:
		return "reloading"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Record declares one loadable module. Records are produced by the
// configuration layer; the registry owns their runtime state.
type Record struct {
	// Name is the unique identifier, the key of the registry.
	Name string

	// Source is the path to the module's loadable source.
	Source string

	// Enabled gates loading; disabled records never get an instance.
	Enabled bool

	// Config is passed verbatim to the module's initialize hook.
	Config config.Config
}

// entry is the registry's internal per-record state.
//
// opMu serializes lifecycle operations (load, unload, reload) for this
// record and is held across module hook invocations. All other fields
// are guarded by the registry mutex, which is only ever held for
// bookkeeping, so lookups stay responsive while a hook runs.
type entry struct {
	opMu chan struct{} // 1-buffered; acquired for the span of one lifecycle op

	rec      Record
	state    State
	active   any
	previous any
}

func newEntry(rec Record) *entry {
	e := &entry{
		opMu: make(chan struct{}, 1),
		rec:  rec,
	}
	return e
}

// acquire blocks until this record's operation slot is free or the
// context is done.
func (e *entry) acquire(ctx context.Context) bool {
	select {
	case e.opMu <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *entry) release() {
	<-e.opMu
}

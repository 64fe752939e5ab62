package luamod

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	lua "github.com/Shopify/go-lua"

	hmerrors "github.com/randalmurphal/hotmod/pkg/hotmod/errors"
)

// SourceExtension is the file extension of loadable module sources.
const SourceExtension = ".lua"

// Loader materializes modules from Lua source files. Every Load creates
// a fresh interpreter state and re-reads the file from disk, so a reload
// always picks up the current source. Instances are bound under the
// module name; loading the same name again replaces the prior binding.
type Loader struct {
	mu        sync.Mutex
	instances map[string]*Instance
	logger    *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the loader's logger, which is inherited by instances.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates an empty Lua loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		instances: make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads and executes the Lua file at source in a fresh state and
// returns the resulting instance.
func (l *Loader) Load(ctx context.Context, name, source string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(source); err != nil {
		if os.IsNotExist(err) {
			return nil, &hmerrors.PathNotFoundError{Module: name, Path: source}
		}
		return nil, &hmerrors.LoadError{Module: name, Path: source, Err: err}
	}

	state := lua.NewState()
	lua.OpenLibraries(state)

	if err := lua.LoadFile(state, source, ""); err != nil {
		return nil, &hmerrors.LoadError{Module: name, Path: source,
			Err: fmt.Errorf("compile: %w", err)}
	}
	if err := state.ProtectedCall(0, 0, 0); err != nil {
		return nil, &hmerrors.LoadError{Module: name, Path: source,
			Err: fmt.Errorf("execute: %w", err)}
	}

	inst := newInstance(name, source, state, l.logger)

	l.mu.Lock()
	l.instances[name] = inst
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.Debug("lua module materialized",
			slog.String("module", name),
			slog.String("path", source))
	}
	return inst, nil
}

// Release drops the binding kept under name. Called by the registry on
// unload and after a failed rollback.
func (l *Loader) Release(name string) {
	l.mu.Lock()
	delete(l.instances, name)
	l.mu.Unlock()
}

// Instance returns the currently bound instance for name, if any.
func (l *Loader) Instance(name string) (*Instance, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inst, ok := l.instances[name]
	return inst, ok
}

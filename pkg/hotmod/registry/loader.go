package registry

import (
	"context"
	"fmt"

	"github.com/randalmurphal/hotmod/pkg/hotmod/config"
	"github.com/randalmurphal/hotmod/pkg/hotmod/event"
)

// Loader materializes a module's code fresh from its source location.
// Load must re-read the source on every call (no caching) and bind the
// result under the module name, so a later Load for the same name
// replaces rather than shadows the prior code.
type Loader interface {
	Load(ctx context.Context, name, source string) (any, error)
}

// Releaser is an optional Loader capability: drop any loader-internal
// registration kept under the module name when the module is unloaded.
type Releaser interface {
	Release(name string)
}

// Initializer is the optional initialize hook of a module instance.
// Its absence is not an error.
type Initializer interface {
	Initialize(bus *event.Bus, cfg config.Config) error
}

// Shutdowner is the optional shutdown hook of a module instance.
type Shutdowner interface {
	Shutdown() error
}

// TestProvider is the optional hook listing a module's test files,
// relative to the module's source directory.
type TestProvider interface {
	Tests() []string
}

// safeInitialize invokes the instance's initialize hook if present,
// converting panics into errors. Returns (handled=false) when the
// instance has no initialize hook.
func safeInitialize(inst any, bus *event.Bus, cfg config.Config) (handled bool, err error) {
	init, ok := inst.(Initializer)
	if !ok {
		return false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("initialize panicked: %v", r)
		}
	}()
	return true, init.Initialize(bus, cfg)
}

// safeShutdown invokes the instance's shutdown hook if present,
// converting panics into errors.
func safeShutdown(inst any) (handled bool, err error) {
	sd, ok := inst.(Shutdowner)
	if !ok {
		return false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("shutdown panicked: %v", r)
		}
	}()
	return true, sd.Shutdown()
}

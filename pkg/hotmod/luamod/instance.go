package luamod

import (
	"fmt"
	"log/slog"
	"sync"

	lua "github.com/Shopify/go-lua"

	"github.com/randalmurphal/hotmod/pkg/hotmod/config"
	"github.com/randalmurphal/hotmod/pkg/hotmod/event"
	"github.com/randalmurphal/hotmod/pkg/hotmod/registry"
)

// handlersGlobal is the Lua-side table holding subscribed callbacks,
// keyed by an integer reference the Go side controls.
const handlersGlobal = "__hotmod_handlers"

// Hook names looked up as globals in the module's Lua state.
const (
	hookInitialize = "initialize"
	hookShutdown   = "shutdown"
	hookTests      = "get_tests"
)

// Instance is one live Lua module. All entry into the interpreter state
// is serialized through the instance mutex; Lua states are not safe for
// concurrent use.
//
// Bus publishes made from Lua are buffered and flushed after the current
// entry into the state returns, so a module publishing from inside its
// own hooks or handlers can never re-enter its interpreter state.
type Instance struct {
	name   string
	source string
	logger *slog.Logger

	mu      sync.Mutex
	state   *lua.State
	bus     *event.Bus
	closed  bool
	nextRef int
	subs    []busSub
	pending []pendingPublish
}

type busSub struct {
	topic  string
	handle event.Handle
}

type pendingPublish struct {
	topic string
	data  any
}

// Interface checks: the registry talks to instances through these.
var (
	_ registry.Initializer  = (*Instance)(nil)
	_ registry.Shutdowner   = (*Instance)(nil)
	_ registry.TestProvider = (*Instance)(nil)
)

func newInstance(name, source string, state *lua.State, logger *slog.Logger) *Instance {
	return &Instance{
		name:   name,
		source: source,
		state:  state,
		logger: logger,
	}
}

// Name returns the module name the instance is bound under.
func (i *Instance) Name() string { return i.name }

// Source returns the path the instance was materialized from.
func (i *Instance) Source() string { return i.source }

// Initialize wires the bus bridge into the Lua state and calls the
// module's initialize(bus, config) global, if declared. A missing hook
// is logged and skipped.
func (i *Instance) Initialize(bus *event.Bus, cfg config.Config) error {
	i.mu.Lock()
	i.bus = bus
	i.closed = false
	i.registerBridge()

	l := i.state
	l.Global(hookInitialize)
	if !l.IsFunction(-1) {
		l.Pop(1)
		i.mu.Unlock()
		if i.logger != nil {
			i.logger.Debug("module has no initialize hook",
				slog.String("module", i.name))
		}
		return nil
	}

	l.Global("bus")
	pushValue(l, cfg.Raw())
	err := l.ProtectedCall(2, 0, 0)
	pending := i.takePendingLocked()
	i.mu.Unlock()

	i.flush(pending)
	if err != nil {
		return fmt.Errorf("lua initialize: %w", err)
	}
	return nil
}

// Shutdown calls the module's shutdown() global, if declared, and drops
// the instance's bus subscriptions so a replaced interpreter state can
// no longer be entered through stale callbacks.
func (i *Instance) Shutdown() error {
	i.mu.Lock()
	subs := i.subs
	i.subs = nil

	var err error
	l := i.state
	l.Global(hookShutdown)
	if l.IsFunction(-1) {
		if callErr := l.ProtectedCall(0, 0, 0); callErr != nil {
			err = fmt.Errorf("lua shutdown: %w", callErr)
		}
	} else {
		l.Pop(1)
		if i.logger != nil {
			i.logger.Debug("module has no shutdown hook",
				slog.String("module", i.name))
		}
	}
	i.closed = true
	pending := i.takePendingLocked()
	i.mu.Unlock()

	if i.bus != nil {
		for _, sub := range subs {
			i.bus.Unsubscribe(sub.topic, sub.handle)
		}
	}
	i.flush(pending)
	return err
}

// Tests returns the module's declared test files from get_tests(), if
// declared; paths are relative to the module's source directory.
func (i *Instance) Tests() []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	l := i.state
	l.Global(hookTests)
	if !l.IsFunction(-1) {
		l.Pop(1)
		return nil
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		if i.logger != nil {
			i.logger.Warn("get_tests hook failed",
				slog.String("module", i.name),
				slog.String("error", err.Error()))
		}
		return nil
	}

	var tests []string
	if l.TypeOf(-1) == lua.TypeTable {
		n := l.RawLength(-1)
		for idx := 1; idx <= n; idx++ {
			l.RawGetInt(-1, idx)
			if s, ok := l.ToString(-1); ok {
				tests = append(tests, s)
			}
			l.Pop(1)
		}
	}
	l.Pop(1)
	return tests
}

// registerBridge installs the "bus" global with publish and subscribe
// functions, plus the hidden handlers table. Caller holds i.mu.
func (i *Instance) registerBridge() {
	l := i.state

	l.NewTable()
	l.SetGlobal(handlersGlobal)

	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "publish", Function: i.luaPublish},
		{Name: "subscribe", Function: i.luaSubscribe},
	}, 0)
	l.SetGlobal("bus")
}

// luaPublish implements bus.publish(topic, data) from Lua. The publish
// is buffered until the current entry into the state returns.
func (i *Instance) luaPublish(l *lua.State) int {
	topic := lua.CheckString(l, 1)
	var data any
	if l.Top() >= 2 {
		data = toGoValue(l, 2)
	}
	i.pending = append(i.pending, pendingPublish{topic: topic, data: data})
	return 0
}

// luaSubscribe implements bus.subscribe(topic, fn) from Lua.
func (i *Instance) luaSubscribe(l *lua.State) int {
	topic := lua.CheckString(l, 1)
	if !l.IsFunction(2) {
		lua.Errorf(l, "bus.subscribe: second argument must be a function")
		return 0
	}

	i.nextRef++
	ref := i.nextRef
	l.Global(handlersGlobal)
	l.PushValue(2)
	l.RawSetInt(-2, ref)
	l.Pop(1)

	handle := i.bus.Subscribe(topic, func(data any) {
		i.invokeHandler(ref, data)
	})
	i.subs = append(i.subs, busSub{topic: topic, handle: handle})
	return 0
}

// invokeHandler calls a subscribed Lua function with the published data.
func (i *Instance) invokeHandler(ref int, data any) {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}

	l := i.state
	l.Global(handlersGlobal)
	l.RawGetInt(-1, ref)
	l.Remove(-2)
	if !l.IsFunction(-1) {
		l.Pop(1)
		i.mu.Unlock()
		return
	}
	pushValue(l, data)
	err := l.ProtectedCall(1, 0, 0)
	pending := i.takePendingLocked()
	i.mu.Unlock()

	if err != nil && i.logger != nil {
		i.logger.Error("lua event handler failed",
			slog.String("module", i.name),
			slog.String("error", err.Error()))
	}
	i.flush(pending)
}

// takePendingLocked drains the publish outbox. Caller holds i.mu.
func (i *Instance) takePendingLocked() []pendingPublish {
	pending := i.pending
	i.pending = nil
	return pending
}

// flush delivers buffered publishes. Never called while holding i.mu,
// so deliveries that land back in this instance can re-enter the state.
func (i *Instance) flush(pending []pendingPublish) {
	if i.bus == nil {
		return
	}
	for _, p := range pending {
		i.bus.Publish(p.topic, p.data)
	}
}

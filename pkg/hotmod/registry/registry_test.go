package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/hotmod/pkg/hotmod/config"
	"github.com/randalmurphal/hotmod/pkg/hotmod/event"
)

// stubInstance implements the optional hooks with programmable behavior.
type stubInstance struct {
	mu            sync.Mutex
	id            int
	initCalls     int
	shutdownCalls int
	failInit      bool
	panicInit     bool
	failShutdown  bool
	panicShutdown bool
	tests         []string
	lastConfig    config.Config
}

func (s *stubInstance) Initialize(_ *event.Bus, cfg config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initCalls++
	s.lastConfig = cfg
	if s.panicInit {
		panic("init blew up")
	}
	if s.failInit {
		return errors.New("init failed")
	}
	return nil
}

func (s *stubInstance) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownCalls++
	if s.panicShutdown {
		panic("shutdown blew up")
	}
	if s.failShutdown {
		return errors.New("shutdown failed")
	}
	return nil
}

func (s *stubInstance) Tests() []string { return s.tests }

// stubLoader returns programmed instances per name and records releases.
type stubLoader struct {
	mu       sync.Mutex
	nextID   int
	failures map[string]error
	prepare  func(*stubInstance)
	byName   map[string]*stubInstance
	released []string
}

func newStubLoader() *stubLoader {
	return &stubLoader{
		failures: make(map[string]error),
		byName:   make(map[string]*stubInstance),
	}
}

func (s *stubLoader) Load(_ context.Context, name, _ string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[name]; err != nil {
		return nil, err
	}
	s.nextID++
	inst := &stubInstance{id: s.nextID}
	if s.prepare != nil {
		s.prepare(inst)
	}
	s.byName[name] = inst
	return inst, nil
}

func (s *stubLoader) Release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, name)
}

func (s *stubLoader) failWith(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = err
}

func enabled(name string) Record {
	return Record{Name: name, Source: name + ".src", Enabled: true}
}

// busEvents captures every event on a topic for assertions.
func busEvents[T any](bus *event.Bus, topic string) *[]T {
	out := &[]T{}
	bus.Subscribe(topic, func(data any) {
		if v, ok := data.(T); ok {
			*out = append(*out, v)
		}
	})
	return out
}

func TestRegistry_LoadSuccess(t *testing.T) {
	loader := newStubLoader()
	bus := event.NewBus()
	loaded := busEvents[event.ModuleLoaded](bus, event.TopicModuleLoaded)
	r := New(loader, bus)

	require.True(t, r.Load(context.Background(), enabled("alpha")))

	state, ok := r.StateOf("alpha")
	require.True(t, ok)
	assert.Equal(t, Loaded, state)

	inst, ok := r.GetModule("alpha")
	require.True(t, ok)
	assert.Equal(t, 1, inst.(*stubInstance).initCalls)

	require.Len(t, *loaded, 1)
	assert.Equal(t, "alpha", (*loaded)[0].Name)
	assert.Equal(t, "alpha.src", (*loaded)[0].Path)
}

func TestRegistry_DisabledRecordSkipped(t *testing.T) {
	loader := newStubLoader()
	r := New(loader, event.NewBus())

	rec := enabled("off")
	rec.Enabled = false
	assert.False(t, r.Load(context.Background(), rec))
	_, ok := r.GetModule("off")
	assert.False(t, ok)
}

func TestRegistry_LoadTwiceRejected(t *testing.T) {
	loader := newStubLoader()
	r := New(loader, event.NewBus())

	require.True(t, r.Load(context.Background(), enabled("dup")))
	assert.False(t, r.Load(context.Background(), enabled("dup")))

	// The original instance is untouched.
	inst, _ := r.GetModule("dup")
	assert.Equal(t, 1, inst.(*stubInstance).id)
}

func TestRegistry_LoadFailurePublishesError(t *testing.T) {
	loader := newStubLoader()
	loader.failWith("bad", errors.New("no such file"))
	bus := event.NewBus()
	failures := busEvents[event.ModuleError](bus, event.TopicModuleError)
	r := New(loader, bus)

	assert.False(t, r.Load(context.Background(), enabled("bad")))

	state, _ := r.StateOf("bad")
	assert.Equal(t, Unloaded, state)
	assert.Empty(t, r.ListLoadedNames())

	require.Len(t, *failures, 1)
	assert.Equal(t, "load", (*failures)[0].Phase)
	assert.Contains(t, (*failures)[0].Error, "no such file")
}

func TestRegistry_InitializeFailureInstallsInstance(t *testing.T) {
	loader := newStubLoader()
	loader.prepare = func(s *stubInstance) { s.failInit = true }
	bus := event.NewBus()
	failures := busEvents[event.ModuleError](bus, event.TopicModuleError)
	r := New(loader, bus)

	assert.False(t, r.Load(context.Background(), enabled("wonky")))

	// Installed so it can still be unloaded explicitly.
	assert.Equal(t, []string{"wonky"}, r.ListLoadedNames())
	require.Len(t, *failures, 1)
	assert.Equal(t, "initialize", (*failures)[0].Phase)

	assert.True(t, r.Unload(context.Background(), "wonky"))
	assert.Empty(t, r.ListLoadedNames())
}

func TestRegistry_InitializePanicBecomesError(t *testing.T) {
	loader := newStubLoader()
	loader.prepare = func(s *stubInstance) { s.panicInit = true }
	bus := event.NewBus()
	failures := busEvents[event.ModuleError](bus, event.TopicModuleError)
	r := New(loader, bus)

	assert.False(t, r.Load(context.Background(), enabled("volatile")))
	require.Len(t, *failures, 1)
	assert.Contains(t, (*failures)[0].Error, "init blew up")
}

func TestRegistry_LoadAllIndependent(t *testing.T) {
	loader := newStubLoader()
	loader.failWith("b", errors.New("broken"))
	r := New(loader, event.NewBus())

	results := r.LoadAll(context.Background(), []Record{
		enabled("a"), enabled("b"), enabled("c"),
	})

	assert.Equal(t, map[string]bool{"a": true, "b": false, "c": true}, results)
	assert.Equal(t, []string{"a", "c"}, r.ListLoadedNames())
}

func TestRegistry_Unload(t *testing.T) {
	loader := newStubLoader()
	r := New(loader, event.NewBus())

	require.True(t, r.Load(context.Background(), enabled("gone")))
	inst, _ := r.GetModule("gone")

	assert.True(t, r.Unload(context.Background(), "gone"))
	assert.Equal(t, 1, inst.(*stubInstance).shutdownCalls)
	assert.Equal(t, []string{"gone"}, loader.released)

	_, ok := r.GetModule("gone")
	assert.False(t, ok)
	assert.False(t, r.Unload(context.Background(), "gone"))
}

func TestRegistry_UnloadSurvivesShutdownFailure(t *testing.T) {
	loader := newStubLoader()
	loader.prepare = func(s *stubInstance) { s.panicShutdown = true }
	r := New(loader, event.NewBus())

	require.True(t, r.Load(context.Background(), enabled("stubborn")))
	assert.True(t, r.Unload(context.Background(), "stubborn"))
	assert.Empty(t, r.ListLoadedNames())
}

func TestRegistry_UnloadAllReverseOrder(t *testing.T) {
	loader := newStubLoader()
	r := New(loader, event.NewBus())

	r.LoadAll(context.Background(), []Record{
		enabled("first"), enabled("second"), enabled("third"),
	})

	r.UnloadAll(context.Background())

	assert.Empty(t, r.ListLoadedNames())
	assert.Equal(t, []string{"third", "second", "first"}, loader.released)
}

func TestRegistry_ReloadSuccess(t *testing.T) {
	loader := newStubLoader()
	bus := event.NewBus()
	reloaded := busEvents[event.ModuleReloaded](bus, event.TopicModuleReloaded)
	r := New(loader, bus)

	require.True(t, r.Load(context.Background(), enabled("svc")))
	old, _ := r.GetModule("svc")

	require.True(t, r.Reload(context.Background(), "svc", config.Config{}))

	assert.Equal(t, 1, old.(*stubInstance).shutdownCalls)

	current, _ := r.GetModule("svc")
	assert.NotEqual(t, old.(*stubInstance).id, current.(*stubInstance).id)
	assert.Equal(t, 1, current.(*stubInstance).initCalls)

	state, _ := r.StateOf("svc")
	assert.Equal(t, Loaded, state)
	require.Len(t, *reloaded, 1)
}

func TestRegistry_ReloadUnknownModule(t *testing.T) {
	r := New(newStubLoader(), event.NewBus())
	assert.False(t, r.Reload(context.Background(), "ghost", config.Config{}))
}

func TestRegistry_ReloadFailureRollsBack(t *testing.T) {
	loader := newStubLoader()
	bus := event.NewBus()
	failed := busEvents[event.ModuleReloadFailed](bus, event.TopicModuleReloadFailed)
	r := New(loader, bus)

	require.True(t, r.Load(context.Background(), enabled("svc")))
	old, _ := r.GetModule("svc")

	loader.failWith("svc", errors.New("syntax error in new version"))
	assert.False(t, r.Reload(context.Background(), "svc", config.Config{}))

	// The previous instance was shut down, then reinitialized in place.
	assert.Equal(t, 1, old.(*stubInstance).shutdownCalls)
	assert.Equal(t, 2, old.(*stubInstance).initCalls)

	current, ok := r.GetModule("svc")
	require.True(t, ok)
	assert.Same(t, old, current)

	state, _ := r.StateOf("svc")
	assert.Equal(t, Loaded, state)

	require.Len(t, *failed, 1)
	assert.Contains(t, (*failed)[0].Error, "syntax error")
}

func TestRegistry_ReloadInitFailureRollsBack(t *testing.T) {
	loader := newStubLoader()
	bus := event.NewBus()
	failed := busEvents[event.ModuleReloadFailed](bus, event.TopicModuleReloadFailed)
	r := New(loader, bus)

	require.True(t, r.Load(context.Background(), enabled("svc")))
	old, _ := r.GetModule("svc")

	// New instances fail initialize; the old one must keep working.
	loader.prepare = func(s *stubInstance) { s.failInit = true }
	assert.False(t, r.Reload(context.Background(), "svc", config.Config{}))

	current, _ := r.GetModule("svc")
	assert.Same(t, old, current)
	require.Len(t, *failed, 1)
}

func TestRegistry_RollbackFailureUnloadsRecord(t *testing.T) {
	loader := newStubLoader()
	r := New(loader, event.NewBus())

	require.True(t, r.Load(context.Background(), enabled("svc")))
	old, _ := r.GetModule("svc")

	// Break the reload, then make the old instance refuse to come back.
	loader.failWith("svc", errors.New("broken source"))
	old.(*stubInstance).failInit = true

	assert.False(t, r.Reload(context.Background(), "svc", config.Config{}))

	state, ok := r.StateOf("svc")
	require.True(t, ok)
	assert.Equal(t, Unloaded, state)
	_, active := r.GetModule("svc")
	assert.False(t, active)
	assert.Empty(t, r.ListLoadedNames())

	// An explicit fresh load recovers the record.
	loader.failWith("svc", nil)
	old.(*stubInstance).failInit = false
	assert.True(t, r.Load(context.Background(), enabled("svc")))
}

func TestRegistry_ReloadRefreshesConfig(t *testing.T) {
	loader := newStubLoader()
	r := New(loader, event.NewBus())

	rec := enabled("svc")
	rec.Config = config.New(map[string]any{"answer": 1})
	require.True(t, r.Load(context.Background(), rec))

	fresh := config.New(map[string]any{"answer": 2})
	require.True(t, r.Reload(context.Background(), "svc", fresh))

	current, _ := r.GetModule("svc")
	assert.Equal(t, 2, current.(*stubInstance).lastConfig.Int("answer", 0))
}

func TestRegistry_ModuleTests(t *testing.T) {
	loader := newStubLoader()
	loader.prepare = func(s *stubInstance) {
		if s.id == 1 {
			s.tests = []string{"tests/test_a.lua"}
		}
	}
	r := New(loader, event.NewBus())

	r.LoadAll(context.Background(), []Record{enabled("a"), enabled("b")})

	tests := r.ModuleTests()
	assert.Equal(t, map[string][]string{"a": {"tests/test_a.lua"}}, tests)
}

func TestRegistry_ConcurrentDistinctModules(t *testing.T) {
	loader := newStubLoader()
	r := New(loader, event.NewBus())

	var wg sync.WaitGroup
	names := []string{"m1", "m2", "m3", "m4", "m5", "m6"}
	for _, name := range names {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Load(context.Background(), enabled(name))
		}()
	}
	wg.Wait()

	assert.Len(t, r.ListLoadedNames(), len(names))
}

func TestRegistry_ConcurrentReloadsSerialize(t *testing.T) {
	loader := newStubLoader()
	r := New(loader, event.NewBus())
	require.True(t, r.Load(context.Background(), enabled("svc")))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Reload(context.Background(), "svc", config.Config{})
		}()
	}
	wg.Wait()

	// After the dust settles exactly one instance is active.
	state, _ := r.StateOf("svc")
	assert.Equal(t, Loaded, state)
	_, ok := r.GetModule("svc")
	assert.True(t, ok)
}

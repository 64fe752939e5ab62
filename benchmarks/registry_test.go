package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/randalmurphal/hotmod/pkg/hotmod/config"
	"github.com/randalmurphal/hotmod/pkg/hotmod/event"
	"github.com/randalmurphal/hotmod/pkg/hotmod/registry"
)

// benchInstance is a minimal module with both lifecycle hooks.
type benchInstance struct{}

func (benchInstance) Initialize(*event.Bus, config.Config) error { return nil }
func (benchInstance) Shutdown() error                            { return nil }

// benchLoader materializes benchInstances with no I/O.
type benchLoader struct{}

func (benchLoader) Load(context.Context, string, string) (any, error) {
	return benchInstance{}, nil
}

func rec(name string) registry.Record {
	return registry.Record{Name: name, Source: name + ".src", Enabled: true}
}

// BenchmarkLoadUnload measures a full load/unload cycle.
func BenchmarkLoadUnload(b *testing.B) {
	r := registry.New(benchLoader{}, event.NewBus())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Load(ctx, rec("mod"))
		r.Unload(ctx, "mod")
	}
}

// BenchmarkReload measures replacing an active instance in place.
func BenchmarkReload(b *testing.B) {
	r := registry.New(benchLoader{}, event.NewBus())
	ctx := context.Background()
	r.Load(ctx, rec("mod"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Reload(ctx, "mod", config.Config{})
	}
}

// BenchmarkGetModule measures instance lookup with 100 loaded modules.
func BenchmarkGetModule(b *testing.B) {
	r := registry.New(benchLoader{}, event.NewBus())
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		r.Load(ctx, rec(fmt.Sprintf("mod%d", i)))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.GetModule("mod50")
	}
}

// BenchmarkLoadAll_50 measures loading 50 records in one pass.
func BenchmarkLoadAll_50(b *testing.B) {
	ctx := context.Background()
	records := make([]registry.Record, 50)
	for i := range records {
		records[i] = rec(fmt.Sprintf("mod%d", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r := registry.New(benchLoader{}, event.NewBus())
		r.LoadAll(ctx, records)
	}
}

// Package hotmod is a runtime for modules whose code lives in source
// files that can change while the process runs.
//
// A Host loads module records through a Loader, wires each instance to
// a shared in-process event bus, and watches the module source files on
// disk. When a watched file settles after a change the host reloads the
// module in place; if the new code fails to load or initialize, the
// previous instance is restored.
//
// The default loader in package luamod materializes modules from Lua
// files, but any type implementing registry.Loader works.
//
//	host := hotmod.New(luamod.NewLoader())
//	host.Start(ctx, records)
//	defer host.Shutdown(ctx)
package hotmod

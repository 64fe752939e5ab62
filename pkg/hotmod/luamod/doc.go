// Package luamod materializes modules from Lua source files.
//
// Each load creates a fresh interpreter state, so a reload never sees
// globals or upvalues left behind by the replaced version. The Lua side
// sees a small bridge: a global "bus" table with publish and subscribe,
// and three optional hooks the host calls when declared:
//
//	function initialize(bus, config) ... end
//	function shutdown() ... end
//	function get_tests() return {"..."} end
//
// Publishes issued from inside Lua are buffered and delivered after the
// interpreter call returns, so handlers that publish back onto topics
// the same module subscribes to cannot deadlock on their own state.
package luamod

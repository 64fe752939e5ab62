/*
Package registry owns the set of module records and their lifecycle.

Each record moves through a small state machine:

	Unloaded --Load ok-->            Loaded
	Unloaded --Load failed-->        Unloaded   (reported, nothing retained)
	Loaded   --Unload-->             Unloaded
	Loaded   --Reload-->             Reloading
	Reloading --new code ok-->       Loaded     (new instance active)
	Reloading --new code failed-->   RolledBack (previous instance restored)
	RolledBack --reinit ok-->        Loaded     (previous instance active)
	RolledBack --reinit failed-->    Unloaded   (explicit fresh Load required)

Code is materialized through an injected Loader; the registry never
inspects an instance beyond its optional Initializer, Shutdowner, and
TestProvider capabilities.

Concurrency: a single registry mutex guards the record map and all
bookkeeping, and is never held across a module's hooks. Lifecycle
operations for the same name are serialized through the record's
operation slot, so at most one reload per module is in flight; different
modules proceed independently, and lookups stay responsive while a slow
hook runs.
*/
package registry

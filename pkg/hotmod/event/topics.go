package event

// Lifecycle topics published by the module registry. Topic names and
// payload field names are a contract relied on by external subscribers
// such as logging sinks and the webhook notifier.
const (
	// TopicModuleLoaded carries a ModuleLoaded payload after a module's
	// initialize hook completes.
	TopicModuleLoaded = "module.loaded"

	// TopicModuleError carries a ModuleError payload when a load or
	// initialize fails.
	TopicModuleError = "module.error"

	// TopicModuleReloaded carries a ModuleReloaded payload after a
	// successful hot reload.
	TopicModuleReloaded = "module.reloaded"

	// TopicModuleReloadFailed carries a ModuleReloadFailed payload when a
	// reload did not end with the new code active, whatever the rollback
	// outcome.
	TopicModuleReloadFailed = "module.reload_failed"

	// TopicHostStarted and TopicHostShutdown bracket the host lifecycle.
	TopicHostStarted  = "host.started"
	TopicHostShutdown = "host.shutdown"
)

// ModuleLoaded is the payload of TopicModuleLoaded.
type ModuleLoaded struct {
	Name   string         `json:"name"`
	Path   string         `json:"path"`
	Config map[string]any `json:"config"`
}

// ModuleError is the payload of TopicModuleError.
// Phase is "load" or "initialize".
type ModuleError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
	Phase string `json:"phase"`
}

// ModuleReloaded is the payload of TopicModuleReloaded.
type ModuleReloaded struct {
	Name string `json:"name"`
}

// ModuleReloadFailed is the payload of TopicModuleReloadFailed.
type ModuleReloadFailed struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

/*
Package config loads the runtime's YAML configuration and provides
type-safe extraction from map[string]any values.

# Configuration layout

The runtime reads a configuration directory with up to three files:

	main.yaml    - base configuration (required)
	logging.yaml - logging section (optional)
	modules.yaml - module declarations (optional)

String values may reference environment variables with ${VAR} syntax;
unset variables substitute as empty strings with a logged warning.

# Typed access

Config wraps a decoded map and offers accessors that tolerate missing
keys and type mismatches by returning defaults:

	cfg := config.New(map[string]any{"interval": "30s", "retries": 3})
	interval := cfg.Duration("interval", 10*time.Second) // 30s
	retries := cfg.Int("retries", 5)                     // 3

Config values are immutable after creation and safe for concurrent reads.
Per-module config blocks are carried as Config and handed verbatim to the
module's initialize hook.
*/
package config

/*
Package errors defines the runtime's error taxonomy and resilience
helpers.

The lifecycle error types (PathNotFoundError, LoadError, InitializeError,
ReloadError, RollbackError) are caught at the registry boundary and
converted into boolean results plus published lifecycle events; they never
propagate out of Load, Unload, or Reload.

WithRetry provides generic retry with exponential backoff and jitter, and
Breaker implements a consecutive-failure circuit breaker. Both are used by
the webhook notifier and are available to modules and hosts that call
flaky collaborators.
*/
package errors

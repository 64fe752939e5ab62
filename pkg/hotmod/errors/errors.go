package errors

import "fmt"

// Lifecycle phases reported in module.error events.
const (
	PhaseLoad       = "load"
	PhaseInitialize = "initialize"
)

// PathNotFoundError indicates a module's declared source does not exist.
type PathNotFoundError struct {
	Module string
	Path   string
}

// Error implements the error interface.
func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("module %q: source path not found: %s", e.Module, e.Path)
}

// LoadError indicates a module's code failed to materialize.
type LoadError struct {
	Module string
	Path   string
	Err    error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("module %q: load failed from %s: %v", e.Module, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// InitializeError indicates a module's initialize hook failed during startup.
type InitializeError struct {
	Module string
	Err    error
}

// Error implements the error interface.
func (e *InitializeError) Error() string {
	return fmt.Sprintf("module %q: initialize failed: %v", e.Module, e.Err)
}

// Unwrap returns the underlying cause.
func (e *InitializeError) Unwrap() error {
	return e.Err
}

// ReloadError indicates a reload attempt failed to activate the new code.
// A rollback to the previous instance is always attempted afterwards;
// RolledBack records whether it succeeded.
type ReloadError struct {
	Module     string
	Err        error
	RolledBack bool
}

// Error implements the error interface.
func (e *ReloadError) Error() string {
	if e.RolledBack {
		return fmt.Sprintf("module %q: reload failed, previous instance restored: %v", e.Module, e.Err)
	}
	return fmt.Sprintf("module %q: reload failed: %v", e.Module, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ReloadError) Unwrap() error {
	return e.Err
}

// RollbackError is the compounded failure: the reload failed and
// re-initializing the previous instance failed as well. The record is
// left unloaded and requires an explicit fresh Load.
type RollbackError struct {
	Module      string
	ReloadErr   error
	RollbackErr error
}

// Error implements the error interface.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("module %q: reload failed (%v) and rollback failed (%v)",
		e.Module, e.ReloadErr, e.RollbackErr)
}

// Unwrap returns the rollback failure, the terminal cause.
func (e *RollbackError) Unwrap() error {
	return e.RollbackErr
}

// Package observability provides structured logging, metrics, and tracing
// for the module runtime.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Loggers are injected, never pulled from mutated global state; every
// helper tolerates a nil logger.
package observability

import (
	"log/slog"
	"time"
)

// ModuleLogger returns a logger scoped to one module.
func ModuleLogger(logger *slog.Logger, module string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("module", module))
}

// LogModuleLoaded logs a successful module load.
func LogModuleLoaded(logger *slog.Logger, module, path string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("module loaded",
		slog.String("module", module),
		slog.String("path", path),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogModuleError logs a module lifecycle failure with its phase.
func LogModuleError(logger *slog.Logger, module, phase string, err error) {
	if logger == nil {
		return
	}
	logger.Error("module error",
		slog.String("module", module),
		slog.String("phase", phase),
		slog.String("error", err.Error()),
	)
}

// LogModuleUnloaded logs a module unload.
func LogModuleUnloaded(logger *slog.Logger, module string) {
	if logger == nil {
		return
	}
	logger.Info("module unloaded",
		slog.String("module", module),
	)
}

// LogReloadStart logs the beginning of a reload attempt.
func LogReloadStart(logger *slog.Logger, module, reason string) {
	if logger == nil {
		return
	}
	logger.Info("module reload starting",
		slog.String("module", module),
		slog.String("reason", reason),
	)
}

// LogReloadComplete logs a successful reload.
func LogReloadComplete(logger *slog.Logger, module string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("module reloaded",
		slog.String("module", module),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRollback logs a reload failure that restored the previous instance.
func LogRollback(logger *slog.Logger, module string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("module reload failed, previous instance restored",
		slog.String("module", module),
		slog.String("error", err.Error()),
	)
}

// LogRollbackFailed logs the compounded failure: reload and rollback both failed.
func LogRollbackFailed(logger *slog.Logger, module string, reloadErr, rollbackErr error) {
	if logger == nil {
		return
	}
	logger.Error("module reload and rollback both failed, module unloaded",
		slog.String("module", module),
		slog.String("reload_error", reloadErr.Error()),
		slog.String("rollback_error", rollbackErr.Error()),
	)
}

// LogSubscriberPanic logs a recovered panic from a bus subscriber.
func LogSubscriberPanic(logger *slog.Logger, topic string, recovered any) {
	if logger == nil {
		return
	}
	logger.Error("subscriber panicked during delivery",
		slog.String("topic", topic),
		slog.Any("panic", recovered),
	)
}

// LogWatchedPath logs a newly watched source directory.
func LogWatchedPath(logger *slog.Logger, path string) {
	if logger == nil {
		return
	}
	logger.Debug("watching path for changes",
		slog.String("path", path),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in
// milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}

// Package resource derives safe concurrency and memory limits for the
// host from the machine it runs on.
package resource

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Defaults applied when configuration leaves a knob unset.
const (
	DefaultProcessMemoryMB    = 512
	DefaultReservedRAMPercent = 0.25
	DefaultThreadsPerCore     = 2
)

// Limits are the derived bounds the host should operate within.
type Limits struct {
	// MaxWorkers is the number of concurrent module operations the
	// host should allow.
	MaxWorkers int

	// AvailableMemoryMB is memory usable after the OS reservation.
	AvailableMemoryMB int

	// MemoryBoundWorkers is the worker ceiling implied by memory
	// alone, before the CPU bound is applied.
	MemoryBoundWorkers int
}

// Config tunes how limits are derived.
type Config struct {
	// ProcessMemoryMB is the memory budget assumed per worker.
	ProcessMemoryMB int

	// ReservedRAMPercent is the fraction of total RAM held back for
	// the OS and other processes, in [0, 1).
	ReservedRAMPercent float64

	// ThreadsPerCore caps workers at cores times this factor.
	ThreadsPerCore int
}

func (c Config) withDefaults() Config {
	if c.ProcessMemoryMB <= 0 {
		c.ProcessMemoryMB = DefaultProcessMemoryMB
	}
	if c.ReservedRAMPercent <= 0 || c.ReservedRAMPercent >= 1 {
		c.ReservedRAMPercent = DefaultReservedRAMPercent
	}
	if c.ThreadsPerCore <= 0 {
		c.ThreadsPerCore = DefaultThreadsPerCore
	}
	return c
}

// Manager samples the host machine and derives Limits.
type Manager struct {
	cfg    Config
	logger *slog.Logger
}

// NewManager creates a manager with the given tuning. A nil-safe logger
// may be passed for visibility into the derived values.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	return &Manager{cfg: cfg.withDefaults(), logger: logger}
}

// Detect samples total memory and logical core count, then derives
// limits. It falls back to runtime.NumCPU and a single worker when the
// platform probes fail.
func (m *Manager) Detect() (Limits, error) {
	cores, err := cpu.Counts(true)
	if err != nil || cores <= 0 {
		cores = runtime.NumCPU()
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		limits := ComputeLimits(m.cfg, 0, cores)
		return limits, fmt.Errorf("sampling memory: %w", err)
	}

	totalMB := int(vm.Total / (1024 * 1024))
	limits := ComputeLimits(m.cfg, totalMB, cores)

	if m.logger != nil {
		m.logger.Info("derived resource limits",
			slog.Int("total_memory_mb", totalMB),
			slog.Int("logical_cores", cores),
			slog.Int("max_workers", limits.MaxWorkers),
			slog.Int("available_memory_mb", limits.AvailableMemoryMB))
	}
	return limits, nil
}

// ComputeLimits derives limits from raw machine numbers. It is the pure
// core of Detect; totalMB of zero or below yields a single worker.
func ComputeLimits(cfg Config, totalMB, cores int) Limits {
	cfg = cfg.withDefaults()

	if cores <= 0 {
		cores = 1
	}
	cpuBound := cores * cfg.ThreadsPerCore

	if totalMB <= 0 {
		return Limits{MaxWorkers: 1, MemoryBoundWorkers: 1}
	}

	availableMB := int(float64(totalMB) * (1 - cfg.ReservedRAMPercent))
	memBound := availableMB / cfg.ProcessMemoryMB
	if memBound < 1 {
		memBound = 1
	}

	workers := memBound
	if cpuBound < workers {
		workers = cpuBound
	}
	if workers < 1 {
		workers = 1
	}

	return Limits{
		MaxWorkers:         workers,
		AvailableMemoryMB:  availableMB,
		MemoryBoundWorkers: memBound,
	}
}

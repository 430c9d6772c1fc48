package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/irfndi/stockcast-go/internal/config"
)

// SystemProbe reads host resource usage.
type SystemProbe interface {
	CPUPercent(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (totalGB, usedPercent float64, err error)
}

// gopsutilProbe samples the host through gopsutil.
type gopsutilProbe struct {
	interval time.Duration
}

func (p gopsutilProbe) CPUPercent(ctx context.Context) (float64, error) {
	percent, err := cpu.PercentWithContext(ctx, p.interval, false)
	if err != nil {
		return 0, err
	}
	if len(percent) == 0 {
		return 0, nil
	}
	return percent[0], nil
}

func (p gopsutilProbe) Memory(ctx context.Context) (float64, float64, error) {
	info, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	return float64(info.Total) / (1024 * 1024 * 1024), info.UsedPercent, nil
}

// ResourceOptimizer sizes model training concurrency from the host's cores,
// memory and current load, and keeps a short history of forecast runs.
type ResourceOptimizer struct {
	mu                 sync.RWMutex
	cfg                ResourceOptimizerConfig
	probe              SystemProbe
	cpuCores           int
	memoryGB           float64
	currentCPUUsage    float64
	currentMemoryUsage float64
	concurrency        TrainingConcurrency
	history            []RunSnapshot
	logger             *slog.Logger
}

// TrainingConcurrency holds the derived worker limits.
type TrainingConcurrency struct {
	ForestWorkers   int     `json:"forest_workers"`
	MemoryThreshold float64 `json:"memory_threshold"`
	CPUThreshold    float64 `json:"cpu_threshold"`
}

// RunSnapshot captures one pipeline run alongside the host load at the time.
type RunSnapshot struct {
	RunID       string        `json:"run_id"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration"`
	Items       int           `json:"items"`
	Failed      bool          `json:"failed"`
	CPUUsage    float64       `json:"cpu_usage"`
	MemoryUsage float64       `json:"memory_usage"`
	Goroutines  int           `json:"goroutines"`
}

// ResourceOptimizerConfig holds configuration for the resource optimizer.
type ResourceOptimizerConfig struct {
	SampleInterval  time.Duration
	MaxHistorySize  int
	CPUThreshold    float64
	MemoryThreshold float64
	MinWorkers      int
	MaxWorkers      int
}

// NewResourceOptimizer creates an optimizer. A nil probe samples the host
// through gopsutil; a nil logger falls back to slog.Default.
func NewResourceOptimizer(cfg ResourceOptimizerConfig, probe SystemProbe, logger *slog.Logger) *ResourceOptimizer {
	if cfg.SampleInterval == 0 {
		cfg.SampleInterval = 200 * time.Millisecond
	}
	if cfg.MaxHistorySize == 0 {
		cfg.MaxHistorySize = 50
	}
	if cfg.CPUThreshold == 0 {
		cfg.CPUThreshold = 80.0
	}
	if cfg.MemoryThreshold == 0 {
		cfg.MemoryThreshold = 85.0
	}
	if cfg.MinWorkers == 0 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = 16
	}
	if probe == nil {
		probe = gopsutilProbe{interval: cfg.SampleInterval}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ro := &ResourceOptimizer{
		cfg:      cfg,
		probe:    probe,
		cpuCores: runtime.NumCPU(),
		memoryGB: 8.0,
		logger:   logger,
	}
	ro.calculateConcurrency()
	return ro
}

// Refresh samples current CPU and memory usage and recomputes the limits.
func (ro *ResourceOptimizer) Refresh(ctx context.Context) error {
	cpuPercent, err := ro.probe.CPUPercent(ctx)
	if err != nil {
		return fmt.Errorf("failed to get CPU usage: %w", err)
	}
	totalGB, usedPercent, err := ro.probe.Memory(ctx)
	if err != nil {
		return fmt.Errorf("failed to get memory usage: %w", err)
	}

	ro.mu.Lock()
	ro.currentCPUUsage = cpuPercent
	ro.currentMemoryUsage = usedPercent
	if totalGB > 0 {
		ro.memoryGB = totalGB
	}
	ro.mu.Unlock()

	ro.calculateConcurrency()
	return nil
}

func (ro *ResourceOptimizer) calculateConcurrency() {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	workers := ro.cpuCores

	memoryFactor := 1.0
	if ro.memoryGB < 4.0 {
		memoryFactor = 0.5
	} else if ro.memoryGB < 8.0 {
		memoryFactor = 0.75
	}

	loadFactor := 1.0
	if ro.currentCPUUsage > ro.cfg.CPUThreshold {
		loadFactor = 0.5
	} else if ro.currentMemoryUsage > ro.cfg.MemoryThreshold {
		loadFactor = 0.75
	}

	workers = int(float64(workers) * memoryFactor * loadFactor)
	workers = max(ro.cfg.MinWorkers, min(workers, ro.cfg.MaxWorkers))

	ro.concurrency = TrainingConcurrency{
		ForestWorkers:   workers,
		MemoryThreshold: ro.cfg.MemoryThreshold,
		CPUThreshold:    ro.cfg.CPUThreshold,
	}
	ro.logger.Debug("Calculated training concurrency",
		"forest_workers", workers,
		"cpu_usage", ro.currentCPUUsage,
		"memory_usage", ro.currentMemoryUsage)
}

// Concurrency returns the current limits.
func (ro *ResourceOptimizer) Concurrency() TrainingConcurrency {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	return ro.concurrency
}

// ApplyTo fills in the model worker count when configuration leaves it unset.
func (ro *ResourceOptimizer) ApplyTo(models *config.ModelsConfig) {
	if models.Workers > 0 {
		return
	}
	models.Workers = ro.Concurrency().ForestWorkers
	ro.logger.Info("Sized forest training workers", "workers", models.Workers)
}

// RecordRun appends a run to the bounded history.
func (ro *ResourceOptimizer) RecordRun(runID string, duration time.Duration, items int, failed bool) {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	ro.history = append(ro.history, RunSnapshot{
		RunID:       runID,
		Timestamp:   time.Now(),
		Duration:    duration,
		Items:       items,
		Failed:      failed,
		CPUUsage:    ro.currentCPUUsage,
		MemoryUsage: ro.currentMemoryUsage,
		Goroutines:  runtime.NumGoroutine(),
	})
	if len(ro.history) > ro.cfg.MaxHistorySize {
		ro.history = ro.history[len(ro.history)-ro.cfg.MaxHistorySize:]
	}
}

// History returns up to limit of the most recent runs, oldest first.
func (ro *ResourceOptimizer) History(limit int) []RunSnapshot {
	ro.mu.RLock()
	defer ro.mu.RUnlock()

	if limit <= 0 || limit > len(ro.history) {
		limit = len(ro.history)
	}
	out := make([]RunSnapshot, limit)
	copy(out, ro.history[len(ro.history)-limit:])
	return out
}

// SystemInfo returns current system information for logs and health checks.
func (ro *ResourceOptimizer) SystemInfo() map[string]interface{} {
	ro.mu.RLock()
	defer ro.mu.RUnlock()

	return map[string]interface{}{
		"cpu_cores":      ro.cpuCores,
		"memory_gb":      ro.memoryGB,
		"current_cpu":    ro.currentCPUUsage,
		"current_memory": ro.currentMemoryUsage,
		"goroutines":     runtime.NumGoroutine(),
		"forest_workers": ro.concurrency.ForestWorkers,
		"runs_recorded":  len(ro.history),
	}
}

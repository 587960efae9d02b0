package async

import (
	"fmt"
)

// SystemMetrics tracks resource usage for worker pool monitoring
type SystemMetrics struct {
	WorkersActive int     `json:"workers_active"` // workers currently executing a solve
	WorkersTotal  int     `json:"workers_total"`  // total configured workers
	MemoryUsedGB  float64 `json:"memory_used_gb"` // current memory usage in GB
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
	RunsQueued    int     `json:"runs_queued"`
	RunsRunning   int     `json:"runs_running"`
	SolvesDone    int     `json:"solves_done"` // solves executed since the pool started
}

// getMemoryStats is implemented in platform-specific files:
// - system_metrics_linux.go
// - system_metrics_darwin.go
// - system_metrics_windows.go

// calculateSafeWorkerCount recommends worker count based on available memory.
// A solve over a large job sheet holds an n x n cost matrix plus local-search
// scratch per evaluation worker, so half a gigabyte of headroom per
// concurrent solve keeps the worst case comfortable.
func calculateSafeWorkerCount(availableGB float64) int {
	const memoryPerSolveGB = 0.5
	const memoryBufferGB = 1.0 // reserved for the rest of the process

	if availableGB < memoryBufferGB {
		return 1 // always allow at least 1 worker
	}

	usable := availableGB - memoryBufferGB
	recommended := int(usable / memoryPerSolveGB)

	if recommended < 1 {
		return 1
	}
	if recommended > 8 {
		return 8
	}
	return recommended
}

// GetSystemMetrics returns current system resource usage
func (wp *WorkerPool) GetSystemMetrics() SystemMetrics {
	total, available, err := getMemoryStats()

	var memUsedGB, memTotalGB, memPercent float64
	if err == nil && total > 0 {
		memTotalGB = float64(total) / 1024 / 1024 / 1024
		memUsedGB = float64(total-available) / 1024 / 1024 / 1024
		memPercent = (memUsedGB / memTotalGB) * 100
	}

	queued, running := wp.queue.GetJobCounts()

	wp.mu.Lock()
	activeWorkers := wp.activeWorkers
	solvesDone := wp.solvesDone
	wp.mu.Unlock()

	return SystemMetrics{
		WorkersActive: activeWorkers,
		WorkersTotal:  wp.cfg.Workers,
		MemoryUsedGB:  memUsedGB,
		MemoryTotalGB: memTotalGB,
		MemoryPercent: memPercent,
		RunsQueued:    queued,
		RunsRunning:   running,
		SolvesDone:    solvesDone,
	}
}

// memorySnapshotMB returns system memory in use, for the per-run snapshot
// recorded when a solve completes. Returns 0 when stats are unavailable.
func memorySnapshotMB() float64 {
	total, available, err := getMemoryStats()
	if err != nil || total == 0 {
		return 0
	}
	return float64(total-available) / 1024 / 1024
}

// checkMemoryPressure validates worker count against available memory.
// Returns a warning message if the worker count may be too high, empty
// string if OK.
func (wp *WorkerPool) checkMemoryPressure() string {
	total, available, err := getMemoryStats()
	if err != nil {
		return "" // can't check, assume OK
	}

	availableGB := float64(available) / 1024 / 1024 / 1024
	totalGB := float64(total) / 1024 / 1024 / 1024
	recommended := calculateSafeWorkerCount(availableGB)

	if wp.cfg.Workers > recommended {
		return fmt.Sprintf(
			"Worker count (%d) exceeds recommended (%d) for available memory (%.1f/%.1fGB). "+
				"Consider reducing workers to prevent memory pressure.",
			wp.cfg.Workers, recommended, totalGB-availableGB, totalGB)
	}

	return ""
}

// Package metrics collects per-operation timing and throughput for the
// archive, backup, restore, and retention commands, and logs a structured
// summary line through the same Logger every other package uses.
package metrics

import (
	"sync"
	"time"

	"omnipitr/internal/logger"
)

// OperationMetrics holds performance metrics for one archive/backup/
// restore/retention run.
type OperationMetrics struct {
	Operation string `json:"operation"` // "archive", "backup_master", "backup_slave", "restore", "cleanup"
	Target string `json:"target"` // segment name, backup label, or cluster name
	StartTime time.Time `json:"start_time"`
	Duration time.Duration `json:"duration"`
	SizeBytes int64 `json:"size_bytes"`
	CompressionRatio float64 `json:"compression_ratio,omitempty"`
	ThroughputMBps float64 `json:"throughput_mbps"`
	ErrorCount int `json:"error_count"`
	Success bool `json:"success"`
}

// Collector collects metrics for the lifetime of one process invocation.
// Each omnipitr command owns its own Collector instance (no package
// global) so concurrent archive_command invocations never share state.
type Collector struct {
	mu sync.RWMutex
	metrics []OperationMetrics
	log logger.Logger
}

// NewCollector builds a Collector that logs through log.
func NewCollector(log logger.Logger) *Collector {
	return &Collector{log: log}
}

// RecordOperation records metrics for a completed operation and emits a
// structured summary line.
func (mc *Collector) RecordOperation(operation, target string, start time.Time, sizeBytes int64, success bool, errorCount int) {
	duration := time.Since(start)
	throughput := calculateThroughput(sizeBytes, duration)

	metric := OperationMetrics{
		Operation: operation,
		Target: target,
		StartTime: start,
		Duration: duration,
		SizeBytes: sizeBytes,
		ThroughputMBps: throughput,
		ErrorCount: errorCount,
		Success: success,
	}

	mc.mu.Lock()
	mc.metrics = append(mc.metrics, metric)
	mc.mu.Unlock()

	if mc.log == nil {
		return
	}
	fields := []any{
		"operation", operation,
		"target", target,
		"duration_ms", duration.Milliseconds(),
		"size_bytes", sizeBytes,
		"throughput_mbps", throughput,
		"error_count", errorCount,
	}
	if success {
		mc.log.Info("operation completed", fields...)
	} else {
		mc.log.Error("operation failed", fields...)
	}
}

// RecordCompressionRatio updates the compression ratio of the most
// recently recorded operation matching operation/target.
func (mc *Collector) RecordCompressionRatio(operation, target string, ratio float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for i := len(mc.metrics) - 1; i >= 0; i-- {
		if mc.metrics[i].Operation == operation && mc.metrics[i].Target == target {
			mc.metrics[i].CompressionRatio = ratio
			break
		}
	}
}

// All returns a copy of every metric recorded so far.
func (mc *Collector) All() []OperationMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make([]OperationMetrics, len(mc.metrics))
	copy(result, mc.metrics)
	return result
}

// Summary computes aggregate figures across all recorded operations,
// logged once at process exit (see main.go's deferred session summary).
type Summary struct {
	TotalOperations int
	SuccessRate float64
	AvgDurationMillis int64
	AvgSizeMB float64
	AvgThroughputMBps float64
	TotalErrors int
}

// Summarize computes a Summary, or the zero value if nothing was recorded.
func (mc *Collector) Summarize() Summary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if len(mc.metrics) == 0 {
		return Summary{}
	}

	var totalDuration time.Duration
	var totalSize, totalThroughput float64
	var successCount, errorCount int

	for _, m := range mc.metrics {
		totalDuration += m.Duration
		totalSize += float64(m.SizeBytes)
		totalThroughput += m.ThroughputMBps
		if m.Success {
			successCount++
		}
		errorCount += m.ErrorCount
	}

	count := len(mc.metrics)
	return Summary{
		TotalOperations: count,
		SuccessRate: float64(successCount) / float64(count) * 100,
		AvgDurationMillis: totalDuration.Milliseconds() / int64(count),
		AvgSizeMB: totalSize / float64(count) / 1024 / 1024,
		AvgThroughputMBps: totalThroughput / float64(count),
		TotalErrors: errorCount,
	}
}

func calculateThroughput(bytes int64, duration time.Duration) float64 {
	seconds := duration.Seconds()
	if seconds == 0 {
		return 0
	}
	return float64(bytes) / seconds / 1024 / 1024
}

package workerpool

import "time"

// Snapshot is the immutable combination of a Stats snapshot with live pool
// counters, as specified in spec §3.
type Snapshot struct {
	TaskStats *Stats

	ActiveThreads  int
	PoolSize       int
	MaxPoolSize    int
	QueueSize      int
	QueueCapacity  int
	CompletedTasks int64
	TimestampMS    int64
}

// ThreadUtilization returns active/poolSize, or 0 if poolSize is 0.
func (s Snapshot) ThreadUtilization() float64 {
	if s.PoolSize == 0 {
		return 0
	}
	return float64(s.ActiveThreads) / float64(s.PoolSize)
}

// QueueUtilization returns queueSize/queueCapacity, or 0 if capacity is 0.
func (s Snapshot) QueueUtilization() float64 {
	if s.QueueCapacity == 0 {
		return 0
	}
	return float64(s.QueueSize) / float64(s.QueueCapacity)
}

// RejectionRate returns rejected/(submitted), or 0 if nothing was submitted.
func (s Snapshot) RejectionRate() float64 {
	submitted := s.TaskStats.Submitted()
	if submitted == 0 {
		return 0
	}
	return float64(s.TaskStats.Rejected()) / float64(submitted)
}

// TaskSuccessRate returns completed/(completed+failed), or 0 if neither has
// happened yet.
func (s Snapshot) TaskSuccessRate() float64 {
	completed := s.TaskStats.Completed()
	failed := s.TaskStats.Failed()
	total := completed + failed
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total)
}

// Throughput returns completed/uptime_seconds.
func (s Snapshot) Throughput() float64 {
	uptime := time.Since(s.TaskStats.StartTime()).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(s.TaskStats.Completed()) / uptime
}

// JSON returns the fixed key set described in spec §6 ("Alert Event JSON").
func (s Snapshot) JSON() map[string]any {
	return map[string]any{
		"timestamp":              s.TimestampMS,
		"activeThreads":          s.ActiveThreads,
		"poolSize":               s.PoolSize,
		"maxPoolSize":            s.MaxPoolSize,
		"queueSize":              s.QueueSize,
		"queueCapacity":          s.QueueCapacity,
		"queueUtilization":       s.QueueUtilization(),
		"threadUtilization":      s.ThreadUtilization(),
		"maxThreadUtilization":   float64(s.PoolSize) / maxFloat(float64(s.MaxPoolSize), 1),
		"completedTasks":         s.CompletedTasks,
		"taskSuccessRate":        s.TaskSuccessRate(),
		"taskRejectionRate":      s.RejectionRate(),
		"taskThroughput":         s.Throughput(),
		"averageWaitTime":        s.TaskStats.AverageWaitMS(),
		"averageExecutionTime":   s.TaskStats.AverageExecutionMS(),
		"p50Latency":             s.TaskStats.GetLatencyPercentile(50),
		"p95Latency":             s.TaskStats.GetLatencyPercentile(95),
		"p99Latency":             s.TaskStats.GetLatencyPercentile(99),
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

package workerpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotUtilizationRatios(t *testing.T) {
	stats := NewStats(DefaultStatsConfig())
	stats.RecordSubmission()
	stats.RecordCompletion()

	snap := Snapshot{
		TaskStats:     stats,
		ActiveThreads: 3,
		PoolSize:      4,
		QueueSize:     5,
		QueueCapacity: 10,
		MaxPoolSize:   8,
	}

	assert.InDelta(t, 0.75, snap.ThreadUtilization(), 0.0001)
	assert.InDelta(t, 0.5, snap.QueueUtilization(), 0.0001)
}

func TestSnapshotUtilizationHandlesZeroDenominators(t *testing.T) {
	snap := Snapshot{TaskStats: NewStats(DefaultStatsConfig())}
	assert.Equal(t, float64(0), snap.ThreadUtilization())
	assert.Equal(t, float64(0), snap.QueueUtilization())
	assert.Equal(t, float64(0), snap.RejectionRate())
	assert.Equal(t, float64(0), snap.TaskSuccessRate())
}

func TestSnapshotTaskSuccessRate(t *testing.T) {
	stats := NewStats(DefaultStatsConfig())
	stats.RecordCompletion()
	stats.RecordCompletion()
	stats.RecordCompletion()
	stats.RecordFailure()

	snap := Snapshot{TaskStats: stats}
	assert.InDelta(t, 0.75, snap.TaskSuccessRate(), 0.0001)
}

func TestSnapshotJSONHasFixedKeySet(t *testing.T) {
	snap := Snapshot{TaskStats: NewStats(DefaultStatsConfig()), PoolSize: 2, MaxPoolSize: 4}
	body := snap.JSON()

	for _, key := range []string{
		"timestamp", "activeThreads", "poolSize", "maxPoolSize", "queueSize",
		"queueCapacity", "queueUtilization", "threadUtilization",
		"maxThreadUtilization", "completedTasks", "taskSuccessRate",
		"taskRejectionRate", "taskThroughput", "averageWaitTime",
		"averageExecutionTime", "p50Latency", "p95Latency", "p99Latency",
	} {
		assert.Contains(t, body, key)
	}
}

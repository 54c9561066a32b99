package workerpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PoolMetrics holds the Prometheus surface mirroring Pool Snapshot and
// Stats fields for scraping. This is the ambient observability layer; it
// is intentionally separate from Stats (§4.B), which is the product-facing
// counter/percentile engine the Monitor and Scaler reason about directly —
// the same separation the teacher keeps between its DB-backed stats and
// its WorkerPoolMetrics.
type PoolMetrics struct {
	WorkersActive prometheus.Gauge
	PoolSize      prometheus.Gauge
	MaxPoolSize   prometheus.Gauge
	QueueSize     prometheus.Gauge
	QueueCapacity prometheus.Gauge

	TasksTotal    *prometheus.CounterVec
	TaskDuration  prometheus.Histogram
	TaskWaitTime  prometheus.Histogram
	ScalingEvents *prometheus.CounterVec
	RejectedTotal prometheus.Counter
}

// NewPoolMetrics registers a fresh set of metrics under the given
// namespace/subsystem, following the teacher's metrics.go conventions.
func NewPoolMetrics(reg prometheus.Registerer, namespace, subsystem string) *PoolMetrics {
	factory := promauto.With(reg)

	return &PoolMetrics{
		WorkersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "workers_active",
			Help:      "Number of currently busy worker goroutines",
		}),
		PoolSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pool_size",
			Help:      "Current core pool size",
		}),
		MaxPoolSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "max_pool_size",
			Help:      "Current maximum pool size",
		}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_size",
			Help:      "Number of tasks currently queued",
		}),
		QueueCapacity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_capacity",
			Help:      "Configured queue capacity",
		}),
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_total",
			Help:      "Total tasks processed by outcome",
		}, []string{"outcome"}), // completed, failed
		TaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "task_duration_seconds",
			Help:      "Task execution duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		TaskWaitTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "task_wait_seconds",
			Help:      "Time a task spent queued before dispatch, in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		ScalingEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scaling_events_total",
			Help:      "Total scaling applications by outcome",
		}, []string{"outcome"}), // applied, rejected
		RejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rejected_tasks_total",
			Help:      "Total tasks rejected due to capacity or shutdown",
		}),
	}
}

// Observe mirrors a Snapshot into the gauges; called from the Monitor tick.
func (m *PoolMetrics) Observe(snap Snapshot) {
	if m == nil {
		return
	}
	m.WorkersActive.Set(float64(snap.ActiveThreads))
	m.PoolSize.Set(float64(snap.PoolSize))
	m.MaxPoolSize.Set(float64(snap.MaxPoolSize))
	m.QueueSize.Set(float64(snap.QueueSize))
	m.QueueCapacity.Set(float64(snap.QueueCapacity))
}

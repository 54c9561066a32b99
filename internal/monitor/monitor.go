// Package monitor implements the scheduled sampler of spec §4.I: it builds
// a Pool Snapshot each tick, raises threshold alerts, and drives the
// Scaler.
package monitor

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/luweijie06/EnhancedThreadPool/internal/alerts"
	"github.com/luweijie06/EnhancedThreadPool/internal/scaling"
	"github.com/luweijie06/EnhancedThreadPool/internal/workerpool"
)

// Sampler builds a Pool Snapshot on demand.
type Sampler interface {
	Sample() workerpool.Snapshot
}

// Scaler is the subset of scaling.Scaler the Monitor drives.
type Scaler interface {
	AttemptScaling(target scaling.Target, snap scaling.Snapshot)
}

// Config configures thresholds and enabled families, per spec §6.
type Config struct {
	MonitoringPeriodMS time.Duration
	SamplingIntervalMS time.Duration

	EnableDetailedMetrics bool
	EnableQueueMetrics    bool
	EnableTaskMetrics     bool
	EnableThreadMetrics   bool
	EnableLatencyMetrics  bool
	EnableRejectionMetric bool

	QueueSizeWarningThreshold int
	ThreadPoolUsageThreshold  float64 // percent, 1..100
	MinimumAlertLevel         alerts.Level

	PoolName string
}

// DefaultConfig mirrors spec §6's stated defaults.
func DefaultConfig() Config {
	return Config{
		MonitoringPeriodMS:        5 * time.Second,
		SamplingIntervalMS:        1 * time.Second,
		EnableDetailedMetrics:     true,
		EnableQueueMetrics:        true,
		EnableTaskMetrics:         true,
		EnableThreadMetrics:       true,
		EnableLatencyMetrics:      true,
		EnableRejectionMetric:     true,
		QueueSizeWarningThreshold: 1000,
		ThreadPoolUsageThreshold:  80,
		MinimumAlertLevel:         alerts.Warning,
	}
}

// Monitor is the single-goroutine periodic sampler of spec §4.I.
type Monitor struct {
	cfg     Config
	sampler Sampler
	scaler  Scaler
	target  scaling.Target
	bus     *alerts.Bus
	logger  *logrus.Logger

	metrics *workerpool.PoolMetrics

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Monitor. metrics may be nil to skip ambient Prometheus
// mirroring.
func New(cfg Config, sampler Sampler, scaler Scaler, target scaling.Target, bus *alerts.Bus, metrics *workerpool.PoolMetrics, logger *logrus.Logger) *Monitor {
	if bus == nil {
		bus = alerts.Default()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Monitor{
		cfg:      cfg,
		sampler:  sampler,
		scaler:   scaler,
		target:   target,
		bus:      bus,
		logger:   logger,
		metrics:  metrics,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sampling goroutine. The goroutine carries no
// "<poolName>-monitor" name and logs nothing under one.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.loop()
}

// Stop signals the sampling goroutine to exit and waits for it.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.MonitoringPeriodMS)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	defer func() {
		if r := recover(); r != nil {
			m.publish(fmt.Sprintf("Monitoring failed: %v", r), alerts.Error)
		}
	}()

	if !m.cfg.EnableDetailedMetrics {
		return
	}

	snap := m.sampler.Sample()
	if m.metrics != nil {
		m.metrics.Observe(snap)
	}

	if m.cfg.EnableThreadMetrics && snap.PoolSize > 0 {
		usage := float64(snap.ActiveThreads) / float64(snap.PoolSize) * 100
		if usage > m.cfg.ThreadPoolUsageThreshold {
			m.publish(fmt.Sprintf("Thread pool usage (%.1f%%) exceeded threshold (%.1f%%)", usage, m.cfg.ThreadPoolUsageThreshold), alerts.Warning)
		}
	}

	if m.cfg.EnableQueueMetrics && snap.QueueSize > m.cfg.QueueSizeWarningThreshold {
		m.publish(fmt.Sprintf("Queue size (%d) exceeded threshold (%d)", snap.QueueSize, m.cfg.QueueSizeWarningThreshold), alerts.Warning)
	}

	if m.scaler != nil && m.target != nil {
		m.scaler.AttemptScaling(m.target, scaling.Snapshot{
			ActiveThreads: snap.ActiveThreads,
			PoolSize:      snap.PoolSize,
			MaxPoolSize:   snap.MaxPoolSize,
			QueueSize:     snap.QueueSize,
			QueueCapacity: snap.QueueCapacity,
		})
	}

	if body, err := json.Marshal(snap.JSON()); err == nil {
		m.publish(fmt.Sprintf("Thread pool stats: %s", body), alerts.Info)
	}
}

// publish suppresses alerts below MinimumAlertLevel at the source, per
// spec §4.I's final paragraph.
func (m *Monitor) publish(message string, level alerts.Level) {
	if level < m.cfg.MinimumAlertLevel {
		return
	}
	m.bus.Publish(message, level, alerts.Monitoring, alerts.Metadata{"poolName": m.cfg.PoolName})
}

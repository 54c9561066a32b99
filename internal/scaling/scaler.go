package scaling

import (
	"fmt"
	"sync"
	"time"

	"github.com/luweijie06/EnhancedThreadPool/internal/alerts"
	"github.com/luweijie06/EnhancedThreadPool/internal/workerpool"
)

// Target is the pool-side surface the Scaler mutates. It is implemented by
// the Pool Engine; the scaling package never imports the pool package,
// breaking the pool<->scaler ownership cycle called out in spec §9 by
// having the pool hand the scaler a narrow, non-owning view of itself.
type Target interface {
	CoreSize() int
	MaxSize() int
	KeepAliveMS() int64
	ConfiguredMaxThreads() int
	MinThreads() int

	// SetSizes atomically applies a new (core, max, keepAliveMS) triple.
	// Implementations must reject (return an error) rather than partially
	// apply when the underlying executor cannot accommodate the new
	// sizes.
	SetSizes(core, max int, keepAliveMS int64) error

	SetQueueCapacityDelta(delta int)

	IsShuttingDown() bool
	PoolSize() int
}

// Config configures cooldown and clamp bounds for the Scaler.
type Config struct {
	CheckPeriodMS time.Duration
	MinThreads    int
	MaxThreads    int
	PoolName      string
}

// Scaler is the cooldown-guarded, lock-guarded applicator of spec §4.G.
type Scaler struct {
	cfg      Config
	strategy Strategy
	bus      *alerts.Bus
	metrics  *workerpool.PoolMetrics

	mu              sync.Mutex
	applying        sync.Mutex
	lastScalingTime time.Time
}

// NewScaler constructs a Scaler. strategy may be nil, in which case
// AttemptScaling is always a no-op (spec §4.I step 5: "if a scaling
// strategy is configured"). metrics may be nil; ScalingEvents is only
// incremented when a non-nil PoolMetrics is supplied.
func NewScaler(cfg Config, strategy Strategy, bus *alerts.Bus, metrics *workerpool.PoolMetrics) *Scaler {
	if bus == nil {
		bus = alerts.Default()
	}
	return &Scaler{cfg: cfg, strategy: strategy, bus: bus, metrics: metrics}
}

// AttemptScaling evaluates the strategy against snap and applies the
// resulting Command to target, subject to cooldown and clamping.
func (s *Scaler) AttemptScaling(target Target, snap Snapshot) {
	if s.strategy == nil {
		return
	}

	s.mu.Lock()
	elapsed := time.Since(s.lastScalingTime)
	s.mu.Unlock()

	if elapsed < s.cfg.CheckPeriodMS {
		return
	}
	if target.IsShuttingDown() {
		return
	}
	if target.PoolSize() <= 0 {
		return
	}

	if !s.applying.TryLock() {
		return // another scaling operation is already in flight
	}
	defer s.applying.Unlock()

	command, ok := s.strategy.CalculateScaling(snap)
	if !ok || !command.HasAdjustments() {
		return
	}

	oldCore := target.CoreSize()
	oldMax := target.MaxSize()
	oldKeepAlive := target.KeepAliveMS()

	newCore, newMax, newKeepAlive := s.applyOrdered(target, command, oldCore, oldMax, oldKeepAlive)

	meta := alerts.Metadata{
		"poolName":     s.cfg.PoolName,
		"oldCoreSize":  oldCore,
		"newCoreSize":  newCore,
		"oldMaxSize":   oldMax,
		"newMaxSize":   newMax,
		"oldKeepAlive": oldKeepAlive,
		"newKeepAlive": newKeepAlive,
		"reason":       command.Reason,
	}

	if err := target.SetSizes(newCore, newMax, newKeepAlive); err != nil {
		meta["error"] = err.Error()
		s.bus.Publish(fmt.Sprintf("Scaling failed: %v", err), alerts.Error, alerts.Scaling, meta)
		if s.metrics != nil {
			s.metrics.ScalingEvents.WithLabelValues("rejected").Inc()
		}
		return
	}

	if command.QueueCapacityDelta != 0 {
		target.SetQueueCapacityDelta(command.QueueCapacityDelta)
	}

	s.bus.Publish(command.Reason, alerts.Info, alerts.Scaling, meta)
	if s.metrics != nil {
		s.metrics.ScalingEvents.WithLabelValues("applied").Inc()
	}

	s.mu.Lock()
	s.lastScalingTime = time.Now()
	s.mu.Unlock()
}

// applyOrdered computes the new (core, max, keepAlive) triple from cmd's
// deltas and clamps it per spec §4.G step 6: newCore is bounded to
// [minThreads, configuredMax], then newMax is bounded to
// [newCore, configuredMax] — the second clamp's lower bound is the
// already-clamped core, which is what actually enforces core<=max<=
// configuredMax on every path, not the order the two deltas are summed in.
func (s *Scaler) applyOrdered(target Target, cmd Command, core, max int, keepAliveMS int64) (newCore, newMax int, newKeepAlive int64) {
	configuredMax := target.ConfiguredMaxThreads()
	minThreads := target.MinThreads()

	newCore = core + cmd.CoreSizeDelta
	newMax = max + cmd.MaxSizeDelta

	newKeepAlive = keepAliveMS + cmd.KeepAliveDeltaMS
	if newKeepAlive < 0 {
		newKeepAlive = 0
	}

	newCore = clamp(newCore, minThreads, configuredMax)
	newMax = clamp(newMax, newCore, configuredMax)

	return newCore, newMax, newKeepAlive
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Package pool assembles the Pool Engine of spec §4.E: it owns the
// Priority Persistent Queue, Stats, Scaler and Monitor, accepts
// submissions, applies the rejection policy, and drives worker goroutines
// that run Tracked Tasks.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/luweijie06/EnhancedThreadPool/internal/alerts"
	"github.com/luweijie06/EnhancedThreadPool/internal/monitor"
	"github.com/luweijie06/EnhancedThreadPool/internal/poolconfig"
	"github.com/luweijie06/EnhancedThreadPool/internal/scaling"
	"github.com/luweijie06/EnhancedThreadPool/internal/workerpool"
)

// defaultPriority is used by Execute, mirroring the teacher's
// execute(task) defaulting priority to 5.
const defaultPriority = 5

type worker struct {
	name   string
	cancel context.CancelFunc
}

// Pool is the Pool Engine. Construct with New; start workers and the
// monitor with Start; release resources with GracefulShutdown.
type Pool struct {
	cfg poolconfig.Config

	queue  *workerpool.PriorityQueue
	stats  *workerpool.Stats
	bus    *alerts.Bus
	metrics *workerpool.PoolMetrics
	scaler *scaling.Scaler
	mon    *monitor.Monitor
	logger *logrus.Logger

	coreSize    int32
	maxSize     int32
	keepAliveMS int64

	activeCount int32
	completed   int64
	workerSeq   int32

	workersMu sync.Mutex
	workers   map[string]*worker

	ctx    context.Context
	cancel context.CancelFunc

	shuttingDown int32
	wg           sync.WaitGroup
	started      bool
}

// Option customizes Pool construction beyond what poolconfig.Config
// captures (a programmatic scaling.Strategy, a persistence strategy
// instance, loggers, registries).
type Option func(*buildOpts)

type buildOpts struct {
	strategy     scaling.Strategy
	persistence  workerpool.PersistenceStrategy
	decoder      workerpool.Decoder
	bus          *alerts.Bus
	logger       *logrus.Logger
	metrics      *workerpool.PoolMetrics
}

func WithStrategy(s scaling.Strategy) Option {
	return func(o *buildOpts) { o.strategy = s }
}

func WithPersistence(p workerpool.PersistenceStrategy, decoder workerpool.Decoder) Option {
	return func(o *buildOpts) { o.persistence = p; o.decoder = decoder }
}

func WithBus(b *alerts.Bus) Option {
	return func(o *buildOpts) { o.bus = b }
}

func WithLogger(l *logrus.Logger) Option {
	return func(o *buildOpts) { o.logger = l }
}

func WithMetrics(m *workerpool.PoolMetrics) Option {
	return func(o *buildOpts) { o.metrics = m }
}

// New validates cfg and assembles a Pool. It does not start any
// goroutines; call Start for that.
func New(cfg poolconfig.Config, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	built := buildOpts{}
	for _, opt := range opts {
		opt(&built)
	}
	if built.logger == nil {
		built.logger = logrus.New()
	}
	if built.bus == nil {
		built.bus = alerts.Default()
	}
	if cfg.Persistence.Enabled && built.persistence == nil {
		return nil, fmt.Errorf("%w: persistence enabled but no strategy supplied", ErrConfiguration)
	}

	strategy := built.persistence
	if strategy == nil {
		strategy = workerpool.NoopStrategy{}
	}

	statsCfg := workerpool.StatsConfig{
		Percentiles:  cfg.Monitoring.LatencyPercentiles,
		MaxLatencyMS: cfg.Alerts.TaskTimeoutMS,
	}
	stats := workerpool.NewStats(statsCfg)

	queue := workerpool.NewPriorityQueue(cfg.Pool.QueueCapacity, strategy, built.decoder, built.logger)

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		cfg:         cfg,
		queue:       queue,
		stats:       stats,
		bus:         built.bus,
		metrics:     built.metrics,
		logger:      built.logger,
		coreSize:    int32(cfg.Pool.CorePoolSize),
		maxSize:     int32(cfg.Pool.MaxPoolSize),
		keepAliveMS: cfg.Pool.KeepAliveTime.Milliseconds(),
		workers:     make(map[string]*worker),
		ctx:         ctx,
		cancel:      cancel,
	}

	scalerCfg := scaling.Config{
		CheckPeriodMS: time.Duration(cfg.Scaling.ScalingCheckPeriodMS) * time.Millisecond,
		MinThreads:    cfg.Scaling.MinThreads,
		MaxThreads:    cfg.Scaling.MaxThreads,
		PoolName:      cfg.Pool.PoolName,
	}
	strategyImpl := built.strategy
	if strategyImpl == nil {
		strategyImpl = resolveBuiltinStrategy(cfg.Scaling)
	}
	p.scaler = scaling.NewScaler(scalerCfg, strategyImpl, built.bus, built.metrics)

	monCfg := monitor.Config{
		MonitoringPeriodMS:        time.Duration(cfg.Monitoring.MonitoringPeriodMS) * time.Millisecond,
		SamplingIntervalMS:        time.Duration(cfg.Monitoring.SamplingIntervalMS) * time.Millisecond,
		EnableDetailedMetrics:     cfg.Monitoring.EnableDetailedMetrics,
		EnableQueueMetrics:        cfg.Monitoring.EnableQueueMetrics,
		EnableTaskMetrics:         cfg.Monitoring.EnableTaskMetrics,
		EnableThreadMetrics:       cfg.Monitoring.EnableThreadMetrics,
		EnableLatencyMetrics:      cfg.Monitoring.EnableLatencyMetrics,
		EnableRejectionMetric:     cfg.Monitoring.EnableRejectionMetric,
		QueueSizeWarningThreshold: cfg.Alerts.QueueSizeWarningThreshold,
		ThreadPoolUsageThreshold:  float64(cfg.Alerts.ThreadPoolUsageThreshold),
		MinimumAlertLevel:         parseLevel(cfg.Alerts.MinimumAlertLevel),
		PoolName:                  cfg.Pool.PoolName,
	}
	p.mon = monitor.New(monCfg, p, p.scaler, p, built.bus, built.metrics, built.logger)

	return p, nil
}

func parseLevel(s string) alerts.Level {
	switch s {
	case "INFO":
		return alerts.Info
	case "ERROR":
		return alerts.Error
	case "CRITICAL":
		return alerts.Critical
	default:
		return alerts.Warning
	}
}

func resolveBuiltinStrategy(cfg poolconfig.Scaling) scaling.Strategy {
	switch cfg.StrategyName {
	case "load":
		return scaling.NewLoadBasedStrategy(cfg.LoadHighThreshold, cfg.LoadLowThreshold, cfg.ScaleUpStep, cfg.ScaleDownStep, cfg.KeepAliveAdjustMS)
	case "queue":
		return scaling.QueueBasedStrategy{Threshold: cfg.QueueThreshold, ScaleUp: cfg.ScaleUpStep, Ratio: cfg.QueueCapacityRatio}
	case "composite":
		return scaling.CompositeStrategy{Children: []scaling.Strategy{
			scaling.NewLoadBasedStrategy(cfg.LoadHighThreshold, cfg.LoadLowThreshold, cfg.ScaleUpStep, cfg.ScaleDownStep, cfg.KeepAliveAdjustMS),
			scaling.QueueBasedStrategy{Threshold: cfg.QueueThreshold, ScaleUp: cfg.ScaleUpStep, Ratio: cfg.QueueCapacityRatio},
		}}
	default:
		return nil
	}
}

// Start spawns the core workers and the monitor loop.
func (p *Pool) Start() error {
	if p.started {
		return fmt.Errorf("pool: already started")
	}
	p.logger.WithFields(logrus.Fields{
		"pool_name":    p.cfg.Pool.PoolName,
		"core_size":    atomic.LoadInt32(&p.coreSize),
		"max_size":     atomic.LoadInt32(&p.maxSize),
	}).Info("starting pool")

	for i := int32(0); i < atomic.LoadInt32(&p.coreSize); i++ {
		p.spawnWorker()
	}
	p.mon.Start()
	p.started = true
	return nil
}

// Submit wraps payload into a TrackedTask at the given priority and
// enqueues it. The returned TrackedTask's Done() channel delivers the
// terminal error once execution completes.
func (p *Pool) Submit(priority int, payload workerpool.Task) (*workerpool.TrackedTask, error) {
	if atomic.LoadInt32(&p.shuttingDown) == 1 {
		p.reject(nil)
		return nil, ErrShuttingDown
	}

	t := workerpool.NewTrackedTask(priority, payload)
	p.stats.RecordSubmission()

	if !p.queue.Offer(t) {
		p.reject(t)
		return nil, ErrRejected
	}
	p.stats.RecordQueueSize(int64(p.queue.Size()))
	return t, nil
}

// Execute submits payload at the default priority (5), matching the
// teacher's execute(task) convenience entrypoint.
func (p *Pool) Execute(payload workerpool.Task) (*workerpool.TrackedTask, error) {
	return p.Submit(defaultPriority, payload)
}

func (p *Pool) reject(t *workerpool.TrackedTask) {
	p.stats.RecordRejection()
	if p.metrics != nil {
		p.metrics.RejectedTotal.Inc()
	}
	id := "unknown"
	if t != nil {
		id = t.ID
	}
	p.logger.WithField("task_id", id).Warn("task rejected")
}

// Await blocks until the task completes or timeout elapses.
func (p *Pool) Await(ctx context.Context, t *workerpool.TrackedTask, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case err := <-t.Done():
		return err
	case <-waitCtx.Done():
		return waitCtx.Err()
	}
}

func (p *Pool) spawnWorker() {
	id := atomic.AddInt32(&p.workerSeq, 1)
	name := fmt.Sprintf("%s-thread-%d", p.cfg.Pool.PoolName, id)

	wctx, cancel := context.WithCancel(p.ctx)
	w := &worker{name: name, cancel: cancel}

	p.workersMu.Lock()
	p.workers[name] = w
	p.workersMu.Unlock()

	p.wg.Add(1)
	go p.workerLoop(wctx, w)
}

func (p *Pool) workerLoop(ctx context.Context, w *worker) {
	defer p.wg.Done()
	defer func() {
		p.workersMu.Lock()
		delete(p.workers, w.name)
		p.workersMu.Unlock()
	}()

	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("worker", w.name).Errorf("uncaught panic in worker: %v", r)
		}
	}()

	for {
		task, err := p.queue.Take(ctx)
		if err != nil {
			return
		}

		p.stats.RecordQueueSize(int64(p.queue.Size()))
		waitMS := time.Now().UnixMilli() - task.SubmitTimeMS
		atomic.AddInt32(&p.activeCount, 1)
		start := time.Now()
		err = task.Run(ctx, p.stats)
		execDur := time.Since(start)
		atomic.AddInt32(&p.activeCount, -1)
		atomic.AddInt64(&p.completed, 1)

		if p.metrics != nil {
			outcome := "completed"
			if err != nil {
				outcome = "failed"
			}
			p.metrics.TasksTotal.WithLabelValues(outcome).Inc()
			p.metrics.TaskDuration.Observe(execDur.Seconds())
			if waitMS > 0 {
				p.metrics.TaskWaitTime.Observe(float64(waitMS) / 1000)
			}
		}
	}
}

// WorkerStatuses reports the name of every currently running worker
// goroutine (supplementary introspection named in SPEC_FULL.md).
func (p *Pool) WorkerStatuses() []string {
	p.workersMu.Lock()
	defer p.workersMu.Unlock()

	out := make([]string, 0, len(p.workers))
	for name := range p.workers {
		out = append(out, name)
	}
	return out
}

// Sample builds a Pool Snapshot, implementing monitor.Sampler.
func (p *Pool) Sample() workerpool.Snapshot {
	remaining := p.queue.RemainingCapacity()
	size := p.queue.Size()
	return workerpool.Snapshot{
		TaskStats:      p.stats.Snapshot(),
		ActiveThreads:  int(atomic.LoadInt32(&p.activeCount)),
		PoolSize:       int(atomic.LoadInt32(&p.coreSize)),
		MaxPoolSize:    int(atomic.LoadInt32(&p.maxSize)),
		QueueSize:      size,
		QueueCapacity:  remaining + size,
		CompletedTasks: atomic.LoadInt64(&p.completed),
		TimestampMS:    time.Now().UnixMilli(),
	}
}

// The following methods implement scaling.Target.

func (p *Pool) CoreSize() int               { return int(atomic.LoadInt32(&p.coreSize)) }
func (p *Pool) MaxSize() int                 { return int(atomic.LoadInt32(&p.maxSize)) }
func (p *Pool) KeepAliveMS() int64           { return atomic.LoadInt64(&p.keepAliveMS) }
func (p *Pool) ConfiguredMaxThreads() int    { return p.cfg.Scaling.MaxThreads }
func (p *Pool) MinThreads() int              { return p.cfg.Scaling.MinThreads }
func (p *Pool) IsShuttingDown() bool         { return atomic.LoadInt32(&p.shuttingDown) == 1 }
func (p *Pool) PoolSize() int                { return p.CoreSize() }

// SetSizes applies a new (core, max, keepAlive) triple, spawning or
// retiring worker goroutines so the running count tracks the new core
// size.
func (p *Pool) SetSizes(core, max int, keepAliveMS int64) error {
	if core > max {
		return fmt.Errorf("pool: core(%d) > max(%d)", core, max)
	}

	old := atomic.LoadInt32(&p.coreSize)
	atomic.StoreInt32(&p.coreSize, int32(core))
	atomic.StoreInt32(&p.maxSize, int32(max))
	atomic.StoreInt64(&p.keepAliveMS, keepAliveMS)

	diff := int32(core) - old
	if diff > 0 {
		for i := int32(0); i < diff; i++ {
			p.spawnWorker()
		}
	} else if diff < 0 {
		p.retireWorkers(int(-diff))
	}
	return nil
}

// SetQueueCapacityDelta adjusts the queue's capacity by delta.
func (p *Pool) SetQueueCapacityDelta(delta int) {
	newCap := p.queue.GetCapacity() + delta
	if newCap < 1 {
		newCap = 1
	}
	p.queue.SetCapacity(newCap)
}

func (p *Pool) retireWorkers(n int) {
	p.workersMu.Lock()
	defer p.workersMu.Unlock()

	i := 0
	for _, w := range p.workers {
		if i >= n {
			break
		}
		w.cancel()
		i++
	}
}

// GracefulShutdown stops accepting work, stops the monitor, forces a final
// queue snapshot, and waits up to timeout for in-flight workers to drain.
// Past the timeout it cancels every worker's context and returns without
// waiting further; a task that ignores its context keeps running
// (spec §4.E / §5).
func (p *Pool) GracefulShutdown(timeout time.Duration) error {
	atomic.StoreInt32(&p.shuttingDown, 1)
	p.mon.Stop()

	// Shutting down the queue first unblocks every worker parked in Take
	// once it is empty, letting in-flight tasks finish naturally; the
	// force-cancel path below only fires if a task itself never returns.
	p.queue.Shutdown()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		p.logger.Warn("graceful shutdown timed out; forcing worker termination")
		p.cancel()
	}

	return nil
}

// Stats returns the live Stats collector (read-only snapshot access via
// Stats().Snapshot()).
func (p *Pool) Stats() *workerpool.Stats { return p.stats }

// Bus returns the alert bus this pool publishes to.
func (p *Pool) Bus() *alerts.Bus { return p.bus }

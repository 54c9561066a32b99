package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luweijie06/EnhancedThreadPool/internal/alerts"
	"github.com/luweijie06/EnhancedThreadPool/internal/scaling"
	"github.com/luweijie06/EnhancedThreadPool/internal/workerpool"
)

type fakeSampler struct {
	snap workerpool.Snapshot
}

func (f *fakeSampler) Sample() workerpool.Snapshot { return f.snap }

type fakeScaler struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeScaler) AttemptScaling(target scaling.Target, snap scaling.Snapshot) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

type fakeTarget struct{}

func (fakeTarget) CoreSize() int                  { return 1 }
func (fakeTarget) MaxSize() int                   { return 1 }
func (fakeTarget) KeepAliveMS() int64             { return 0 }
func (fakeTarget) ConfiguredMaxThreads() int      { return 1 }
func (fakeTarget) MinThreads() int                { return 1 }
func (fakeTarget) SetSizes(int, int, int64) error { return nil }
func (fakeTarget) SetQueueCapacityDelta(int)      {}
func (fakeTarget) IsShuttingDown() bool           { return false }
func (fakeTarget) PoolSize() int                  { return 1 }

func TestMonitorTickPublishesWarningOnThreadUsageThreshold(t *testing.T) {
	sampler := &fakeSampler{snap: workerpool.Snapshot{
		TaskStats:     workerpool.NewStats(workerpool.DefaultStatsConfig()),
		ActiveThreads: 9,
		PoolSize:      10,
	}}
	bus := alerts.NewBus()

	var captured []alerts.Event
	var mu sync.Mutex
	bus.Subscribe(alerts.Warning, alerts.Monitoring, func(e alerts.Event) {
		mu.Lock()
		captured = append(captured, e)
		mu.Unlock()
	})

	cfg := DefaultConfig()
	cfg.ThreadPoolUsageThreshold = 80
	m := New(cfg, sampler, &fakeScaler{}, fakeTarget{}, bus, nil, nil)

	m.tick()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, captured)
}

func TestMonitorTickInvokesScalerWhenConfigured(t *testing.T) {
	sampler := &fakeSampler{snap: workerpool.Snapshot{
		TaskStats: workerpool.NewStats(workerpool.DefaultStatsConfig()),
		PoolSize:  5,
	}}
	scaler := &fakeScaler{}
	m := New(DefaultConfig(), sampler, scaler, fakeTarget{}, alerts.NewBus(), nil, nil)

	m.tick()

	scaler.mu.Lock()
	defer scaler.mu.Unlock()
	assert.Equal(t, 1, scaler.calls)
}

func TestMonitorPublishSuppressesBelowMinimumLevel(t *testing.T) {
	bus := alerts.NewBus()
	var count int
	bus.Subscribe(alerts.Info, alerts.Monitoring, func(e alerts.Event) { count++ })

	cfg := DefaultConfig()
	cfg.MinimumAlertLevel = alerts.Warning
	m := New(cfg, &fakeSampler{snap: workerpool.Snapshot{TaskStats: workerpool.NewStats(workerpool.DefaultStatsConfig())}}, &fakeScaler{}, fakeTarget{}, bus, nil, nil)

	m.publish("info message", alerts.Info)
	assert.Equal(t, 0, count)
}

func TestMonitorStartStopTerminatesCleanly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MonitoringPeriodMS = 10 * time.Millisecond
	m := New(cfg, &fakeSampler{snap: workerpool.Snapshot{TaskStats: workerpool.NewStats(workerpool.DefaultStatsConfig())}}, &fakeScaler{}, fakeTarget{}, alerts.NewBus(), nil, nil)

	m.Start()
	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestMonitorTickRecoversFromSamplerPanic(t *testing.T) {
	bus := alerts.NewBus()
	var errorCount int
	bus.Subscribe(alerts.Error, alerts.Monitoring, func(e alerts.Event) { errorCount++ })

	m := New(DefaultConfig(), panicSampler{}, &fakeScaler{}, fakeTarget{}, bus, nil, nil)

	assert.NotPanics(t, func() { m.tick() })
	assert.Equal(t, 1, errorCount)
}

type panicSampler struct{}

func (panicSampler) Sample() workerpool.Snapshot { panic("sampler exploded") }

package alerts

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversOnlyToExactLevelAndKind(t *testing.T) {
	b := NewBus()
	var received []Event
	var mu sync.Mutex

	b.Subscribe(Warning, Scaling, func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})

	b.Publish("info event", Info, Scaling, nil)
	b.Publish("warning monitoring", Warning, Monitoring, nil)
	b.Publish("warning scaling", Warning, Scaling, nil)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "warning scaling", received[0].Message)
}

func TestBusSubscribeFilteredOnlyDeliversMatchingPool(t *testing.T) {
	b := NewBus()
	var gotA, gotB int

	b.SubscribeFiltered(Info, Monitoring, func(e Event) { gotA++ }, "pool-a")
	b.SubscribeFiltered(Info, Monitoring, func(e Event) { gotB++ }, "pool-b")

	b.Publish("tick", Info, Monitoring, Metadata{"poolName": "pool-a"})

	assert.Equal(t, 1, gotA)
	assert.Equal(t, 0, gotB)
}

func TestBusUnsubscribeRemovesExactEntry(t *testing.T) {
	b := NewBus()
	count := 0
	token := b.Subscribe(Error, Scaling, func(e Event) { count++ })

	b.Publish("first", Error, Scaling, nil)
	b.Unsubscribe(Error, Scaling, token)
	b.Publish("second", Error, Scaling, nil)

	assert.Equal(t, 1, count)
}

func TestBusSubscribeAllFansOutAcrossEveryLevelAndKind(t *testing.T) {
	b := NewBus()
	var count int
	b.SubscribeAll(func(e Event) { count++ })

	for _, lvl := range []Level{Info, Warning, Error, Critical} {
		for _, k := range []Kind{Scaling, Monitoring} {
			b.Publish("x", lvl, k, nil)
		}
	}

	assert.Equal(t, 8, count)
}

func TestBusPublishRecoversFromListenerPanic(t *testing.T) {
	b := NewBus()
	calledAfterPanic := false

	b.Subscribe(Info, Scaling, func(e Event) { panic("boom") })
	b.Subscribe(Info, Scaling, func(e Event) { calledAfterPanic = true })

	assert.NotPanics(t, func() {
		b.Publish("x", Info, Scaling, nil)
	})
	assert.True(t, calledAfterPanic)
}

func TestBusPublishCopiesMetadataDefensively(t *testing.T) {
	b := NewBus()
	meta := Metadata{"poolName": "p"}

	var captured Event
	b.Subscribe(Info, Monitoring, func(e Event) { captured = e })
	b.Publish("x", Info, Monitoring, meta)

	meta["poolName"] = "mutated"
	assert.Equal(t, "p", captured.Metadata["poolName"])
}

func TestDefaultIsLazilyConstructedSingleton(t *testing.T) {
	ResetDefault()
	defer ResetDefault()

	a := Default()
	b := Default()
	assert.Same(t, a, b)
}

func TestBusPublishSetsTimestamp(t *testing.T) {
	b := NewBus()
	before := time.Now().UnixMilli()
	event := b.Publish("x", Info, Monitoring, nil)
	after := time.Now().UnixMilli()

	assert.GreaterOrEqual(t, event.TimestampMS, before)
	assert.LessOrEqual(t, event.TimestampMS, after)
}

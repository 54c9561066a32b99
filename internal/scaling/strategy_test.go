package scaling

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadBasedStrategyScalesUpOnHighLoad(t *testing.T) {
	s := NewLoadBasedStrategy(0.8, 0.2, 2, 1, 1000)

	cmd, ok := s.CalculateScaling(Snapshot{ActiveThreads: 9, PoolSize: 10, MaxPoolSize: 20})
	assert.True(t, ok)
	assert.Positive(t, cmd.CoreSizeDelta)
	assert.Positive(t, cmd.MaxSizeDelta)
}

func TestLoadBasedStrategyScalesDownOnLowLoad(t *testing.T) {
	s := NewLoadBasedStrategy(0.8, 0.2, 2, 1, 1000)

	cmd, ok := s.CalculateScaling(Snapshot{ActiveThreads: 1, PoolSize: 10, MaxPoolSize: 20})
	assert.True(t, ok)
	assert.Negative(t, cmd.CoreSizeDelta)
}

func TestLoadBasedStrategyNoOpInsideBand(t *testing.T) {
	s := NewLoadBasedStrategy(0.8, 0.2, 2, 1, 1000)

	_, ok := s.CalculateScaling(Snapshot{ActiveThreads: 5, PoolSize: 10, MaxPoolSize: 20})
	assert.False(t, ok)
}

func TestLoadBasedStrategyDoesNotScaleUpPastMax(t *testing.T) {
	s := NewLoadBasedStrategy(0.8, 0.2, 2, 1, 1000)

	_, ok := s.CalculateScaling(Snapshot{ActiveThreads: 10, PoolSize: 10, MaxPoolSize: 10})
	assert.False(t, ok)
}

func TestLoadBasedStrategyZeroPoolSizeIsNoOp(t *testing.T) {
	s := NewLoadBasedStrategy(0.8, 0.2, 2, 1, 1000)

	_, ok := s.CalculateScaling(Snapshot{ActiveThreads: 0, PoolSize: 0, MaxPoolSize: 10})
	assert.False(t, ok)
}

func TestQueueBasedStrategyScalesUpOnBacklog(t *testing.T) {
	s := QueueBasedStrategy{Threshold: 100, ScaleUp: 3, Ratio: 0.5}

	cmd, ok := s.CalculateScaling(Snapshot{QueueSize: 200, PoolSize: 4, MaxPoolSize: 10})
	assert.True(t, ok)
	assert.Equal(t, 3, cmd.CoreSizeDelta)
	assert.Equal(t, 100, cmd.QueueCapacityDelta)
}

func TestQueueBasedStrategyNoOpUnderThreshold(t *testing.T) {
	s := QueueBasedStrategy{Threshold: 100, ScaleUp: 3, Ratio: 0.5}

	_, ok := s.CalculateScaling(Snapshot{QueueSize: 10, PoolSize: 4, MaxPoolSize: 10})
	assert.False(t, ok)
}

func TestCompositeStrategyCombinesChildDeltas(t *testing.T) {
	composite := CompositeStrategy{Children: []Strategy{
		NewLoadBasedStrategy(0.8, 0.2, 2, 1, 1000),
		QueueBasedStrategy{Threshold: 100, ScaleUp: 3, Ratio: 0.5},
	}}

	cmd, ok := composite.CalculateScaling(Snapshot{ActiveThreads: 9, PoolSize: 10, MaxPoolSize: 20, QueueSize: 200})
	assert.True(t, ok)
	assert.Equal(t, 5, cmd.CoreSizeDelta) // 2 (load) + 3 (queue)
	assert.Contains(t, cmd.Reason, "Combined:")
}

func TestCompositeStrategyReturnsFalseWhenNoChildFires(t *testing.T) {
	composite := CompositeStrategy{Children: []Strategy{
		NewLoadBasedStrategy(0.8, 0.2, 2, 1, 1000),
		QueueBasedStrategy{Threshold: 100, ScaleUp: 3, Ratio: 0.5},
	}}

	_, ok := composite.CalculateScaling(Snapshot{ActiveThreads: 5, PoolSize: 10, MaxPoolSize: 20, QueueSize: 10})
	assert.False(t, ok)
}

func TestCommandHasAdjustments(t *testing.T) {
	assert.False(t, Command{}.HasAdjustments())
	assert.True(t, Command{CoreSizeDelta: 1}.HasAdjustments())
	assert.True(t, Command{KeepAliveDeltaMS: -1}.HasAdjustments())
}

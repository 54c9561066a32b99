package scaling

import "strings"

// Strategy is a pure function from Snapshot to an optional Command (spec
// §4.F). Implementations never mutate the pool.
type Strategy interface {
	CalculateScaling(snap Snapshot) (Command, bool)
}

// LoadBasedStrategy scales on thread utilization (active/poolSize).
type LoadBasedStrategy struct {
	HighThreshold   float64
	LowThreshold    float64
	ScaleUp         int
	ScaleDown       int
	KeepAliveAdjMS  int64
}

// NewLoadBasedStrategy applies the teacher's scale-up/scale-down defaults
// (0.8/0.2 load thresholds) when zero values are supplied.
func NewLoadBasedStrategy(high, low float64, scaleUp, scaleDown int, keepAliveAdjMS int64) LoadBasedStrategy {
	if high == 0 {
		high = 0.8
	}
	if low == 0 {
		low = 0.2
	}
	if scaleUp == 0 {
		scaleUp = 2
	}
	if scaleDown == 0 {
		scaleDown = 1
	}
	return LoadBasedStrategy{HighThreshold: high, LowThreshold: low, ScaleUp: scaleUp, ScaleDown: scaleDown, KeepAliveAdjMS: keepAliveAdjMS}
}

func (s LoadBasedStrategy) CalculateScaling(snap Snapshot) (Command, bool) {
	if snap.PoolSize == 0 {
		return Command{}, false
	}
	load := float64(snap.ActiveThreads) / float64(snap.PoolSize)

	if load > s.HighThreshold && snap.PoolSize < snap.MaxPoolSize {
		return Command{
			ThreadDelta:        s.ScaleUp,
			CoreSizeDelta:      s.ScaleUp,
			MaxSizeDelta:       2 * s.ScaleUp,
			KeepAliveDeltaMS:   -s.KeepAliveAdjMS,
			Reason:             "High load detected: utilization above threshold",
		}, true
	}

	if load < s.LowThreshold && snap.MaxPoolSize > snap.PoolSize {
		return Command{
			ThreadDelta:      -s.ScaleDown,
			CoreSizeDelta:    -s.ScaleDown,
			KeepAliveDeltaMS: s.KeepAliveAdjMS,
			Reason:           "Low load detected: utilization below threshold",
		}, true
	}

	return Command{}, false
}

// QueueBasedStrategy scales on queue backlog size.
type QueueBasedStrategy struct {
	Threshold int
	ScaleUp   int
	Ratio     float64 // fraction of queueSize added to capacity
}

func (s QueueBasedStrategy) CalculateScaling(snap Snapshot) (Command, bool) {
	if snap.QueueSize <= s.Threshold || snap.PoolSize >= snap.MaxPoolSize {
		return Command{}, false
	}

	return Command{
		ThreadDelta:        s.ScaleUp,
		CoreSizeDelta:      s.ScaleUp,
		MaxSizeDelta:       2 * s.ScaleUp,
		QueueCapacityDelta: int(float64(snap.QueueSize) * s.Ratio),
		Reason:             "Queue backlog exceeded threshold",
	}, true
}

// CompositeStrategy runs children in order and sums every non-none
// command's deltas. It returns false only when every child returns false.
type CompositeStrategy struct {
	Children []Strategy
}

func (s CompositeStrategy) CalculateScaling(snap Snapshot) (Command, bool) {
	var combined Command
	var reasons []string
	any := false

	for _, child := range s.Children {
		cmd, ok := child.CalculateScaling(snap)
		if !ok {
			continue
		}
		any = true
		combined.ThreadDelta += cmd.ThreadDelta
		combined.CoreSizeDelta += cmd.CoreSizeDelta
		combined.MaxSizeDelta += cmd.MaxSizeDelta
		combined.QueueCapacityDelta += cmd.QueueCapacityDelta
		combined.KeepAliveDeltaMS += cmd.KeepAliveDeltaMS
		if cmd.Reason != "" {
			reasons = append(reasons, cmd.Reason)
		}
	}

	if !any {
		return Command{}, false
	}
	combined.Reason = "Combined: " + strings.Join(reasons, " + ")
	return combined, true
}

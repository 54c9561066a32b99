package workerpool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task is the user work unit. It receives a context so long-running work
// can observe cooperative cancellation during graceful shutdown.
type Task func(ctx context.Context) error

// Recorder is the subset of Stats that TrackedTask needs in order to log
// wait/exec/outcome. Kept as an interface so task.go does not need to know
// about Stats' histogram internals.
type Recorder interface {
	RecordWaitTime(ms int64)
	RecordExecutionTime(ms int64)
	RecordCompletion()
	RecordFailure()
}

// TrackedTask wraps a user Task with an id, submission timestamp and
// priority. It is immutable after construction; the only mutable state is
// the outcome delivered on Done() once Run has completed.
//
// Ordering: lower Priority runs first; within equal priority, earlier
// SubmitTimeMS runs first (FIFO).
type TrackedTask struct {
	ID           string
	SubmitTimeMS int64
	Priority     int
	Payload      Task

	// Encode is an optional hook a submitter supplies when the task should
	// survive a queue snapshot/reload cycle. The persistence path calls it
	// to produce the opaque blob stored in SerializableTask; a nil Encode
	// means the task is run-only and is skipped when the queue snapshots
	// (it is still dispatched normally in the live process — only durable
	// replay across a restart is unavailable for it). This keeps arbitrary
	// Go closures out of the serialization contract instead of pretending
	// they can be generically marshaled.
	Encode func() ([]byte, error)

	done  chan error
	index int // heap.Interface bookkeeping, owned by PriorityQueue
}

// NewTrackedTask constructs a TrackedTask with a random id and the current
// wall-clock submit time.
func NewTrackedTask(priority int, payload Task) *TrackedTask {
	return &TrackedTask{
		ID:           uuid.NewString(),
		SubmitTimeMS: nowMillis(),
		Priority:     priority,
		Payload:      payload,
		done:         make(chan error, 1),
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Less implements the ordering described in spec §3: priority ascending,
// submit time ascending as the tiebreaker.
func (t *TrackedTask) Less(other *TrackedTask) bool {
	if t.Priority != other.Priority {
		return t.Priority < other.Priority
	}
	return t.SubmitTimeMS < other.SubmitTimeMS
}

// Run executes the payload, recording wait time before the call and
// execution time after. This is the single site that records wait/exec
// samples into Stats — the pool engine's pre/post-execute hooks deliberately
// do not record them a second time (see SPEC_FULL.md, Open Question 1).
func (t *TrackedTask) Run(ctx context.Context, rec Recorder) (err error) {
	wait := nowMillis() - t.SubmitTimeMS
	if wait < 0 {
		wait = 0
	}
	rec.RecordWaitTime(wait)

	start := time.Now()
	defer func() {
		// A panicking payload must still leave the worker goroutine alive
		// to dequeue the next task, so it is converted into a failure here
		// rather than left to unwind into the caller.
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}

		execMS := time.Since(start).Milliseconds()
		rec.RecordExecutionTime(execMS)
		if err != nil {
			rec.RecordFailure()
		} else {
			rec.RecordCompletion()
		}
		t.done <- err
		close(t.done)
	}()

	err = t.Payload(ctx)
	return err
}

// Done returns a channel that receives the task's terminal error (nil on
// success) exactly once, after Run completes. Submitters that want to
// observe an individual task's outcome without polling use this.
func (t *TrackedTask) Done() <-chan error {
	return t.done
}

// SerializableTask is the persistence-path projection of TrackedTask: the
// payload is the opaque blob produced by TrackedTask.Encode. The queue
// never interprets it; on reload it hands the blob to a caller-supplied
// Decoder.
type SerializableTask struct {
	TaskID       string
	SubmitTimeMS int64
	Priority     int
	Blob         []byte
}

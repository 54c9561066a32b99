package pool

import (
	"errors"
	"fmt"
)

// The user-visible error kinds of spec §7: configuration and submission
// errors are surfaced to callers; persistence, scaling and listener
// failures are handled internally (logged/alerted) and do not reach a
// caller synchronously.
var (
	// ErrConfiguration is returned by New when a Config fails validation.
	ErrConfiguration = errors.New("pool: invalid configuration")

	// ErrRejected is returned by Submit/Execute when the queue is at
	// capacity or the pool is shutting down.
	ErrRejected = errors.New("pool: task rejected")

	// ErrShuttingDown is a more specific ErrRejected cause.
	ErrShuttingDown = fmt.Errorf("%w: shutting down", ErrRejected)
)

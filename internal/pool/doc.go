// Package pool wires the priority queue, stats, scaler and monitor into a
// runnable pool engine. Most callers only need New, Start, Submit/Execute,
// Await and GracefulShutdown; the rest of this package's exported surface
// exists so the Scaler and Monitor packages can drive a Pool through their
// own narrow interfaces without importing it.
package pool

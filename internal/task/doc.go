// Package task runs the engine's background work: flushes, compression
// sweeps, and hibernation jobs. A Scheduler bounds concurrency with a
// semaphore, tracks each execution by ID, and supports cancellation of
// pending or running work.
package task

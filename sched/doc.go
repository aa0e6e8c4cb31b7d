// Package sched provides the two execution collaborators the listener
// manager consumes: a run-loop scheduler that periodically invokes
// registered poll tasks, and a worker pool for callback dispatch.
//
// Both are contracts first (Scheduler, Pool) so tests can substitute the
// Manual scheduler and drive poll ticks by hand. RunLoop and WorkerPool are
// the production implementations; both contain task panics so a misbehaving
// task can never crash the loop or a worker.
package sched

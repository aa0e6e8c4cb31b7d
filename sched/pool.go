package sched

import (
	"sync"

	"go.uber.org/zap"
)

// Pool is the thread-pool contract listener dispatch consumes. Submit
// enqueues a task; Shutdown stops the workers after draining the queue.
type Pool interface {
	Submit(task func())
	Shutdown()
}

// WorkerPool is a fixed-size Pool with a bounded queue. Submit blocks
// when the queue is full, which is the backpressure the listener relies
// on instead of the global event budget.
type WorkerPool struct {
	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

// NewWorkerPool starts workers goroutines servicing a queue of depth
// queueDepth. Non-positive arguments get minimal sane values.
func NewWorkerPool(workers, queueDepth int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = workers
	}

	p := &WorkerPool{tasks: make(chan func(), queueDepth)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		runPoolTask(task)
	}
}

func runPoolTask(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			Logger().Warn("pool task panicked", zap.Any("panic", rec))
		}
	}()
	task()
}

// Submit implements Pool. Submitting after Shutdown panics the caller,
// matching channel semantics; the listener stop path never does both.
func (p *WorkerPool) Submit(task func()) {
	p.tasks <- task
}

// Shutdown implements Pool. It drains queued tasks, waits for the
// workers, and is safe to call more than once.
func (p *WorkerPool) Shutdown() {
	p.once.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}

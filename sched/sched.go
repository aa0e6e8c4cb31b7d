package sched

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobHandle identifies one scheduled recurring task.
type JobHandle string

// Scheduler is the cooperative run-loop contract the listener manager
// consumes: it invokes a registered task periodically until the job is
// cancelled. Tasks must not block.
type Scheduler interface {
	ScheduleEvery(interval time.Duration, task func()) JobHandle
	Cancel(h JobHandle)
}

// RunLoop is a ticker-backed Scheduler. Each job runs on its own
// goroutine; a panicking task is logged and the job keeps its schedule,
// so a misbehaving task can never take the loop down.
type RunLoop struct {
	mu   sync.Mutex
	jobs map[JobHandle]chan struct{}
}

// NewRunLoop creates an empty run loop.
func NewRunLoop() *RunLoop {
	return &RunLoop{jobs: make(map[JobHandle]chan struct{})}
}

// ScheduleEvery implements Scheduler.
func (r *RunLoop) ScheduleEvery(interval time.Duration, task func()) JobHandle {
	if interval <= 0 {
		interval = time.Millisecond
	}

	h := JobHandle(uuid.NewString())
	stop := make(chan struct{})

	r.mu.Lock()
	r.jobs[h] = stop
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				runContained(task)
			}
		}
	}()

	return h
}

func runContained(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			Logger().Warn("scheduled task panicked", zap.Any("panic", rec))
		}
	}()
	task()
}

// Cancel implements Scheduler. Cancelling an unknown or already
// cancelled handle is benign.
func (r *RunLoop) Cancel(h JobHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stop, ok := r.jobs[h]; ok {
		close(stop)
		delete(r.jobs, h)
	}
}

// Shutdown cancels every job.
func (r *RunLoop) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, stop := range r.jobs {
		close(stop)
		delete(r.jobs, h)
	}
}

// Manual is a Scheduler for tests: tasks only run when the test ticks
// them.
type Manual struct {
	mu    sync.Mutex
	tasks map[JobHandle]func()
	order []JobHandle
}

// NewManual creates an empty manual scheduler.
func NewManual() *Manual {
	return &Manual{tasks: make(map[JobHandle]func())}
}

func (m *Manual) ScheduleEvery(_ time.Duration, task func()) JobHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := JobHandle(uuid.NewString())
	m.tasks[h] = task
	m.order = append(m.order, h)
	return h
}

func (m *Manual) Cancel(h JobHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, h)
}

// Tick invokes every currently scheduled task once, in registration
// order.
func (m *Manual) Tick() {
	m.mu.Lock()
	var tasks []func()
	for _, h := range m.order {
		if task, ok := m.tasks[h]; ok {
			tasks = append(tasks, task)
		}
	}
	m.mu.Unlock()

	for _, task := range tasks {
		task()
	}
}

// Scheduled reports how many jobs are currently registered.
func (m *Manual) Scheduled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

package sched

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunLoop_ScheduleEvery(t *testing.T) {
	r := NewRunLoop()
	defer r.Shutdown()

	var count atomic.Int64
	h := r.ScheduleEvery(5*time.Millisecond, func() {
		count.Add(1)
	})

	deadline := time.Now().Add(2 * time.Second)
	for count.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if count.Load() < 3 {
		t.Fatal("task never ran repeatedly")
	}

	r.Cancel(h)
	after := count.Load()
	time.Sleep(30 * time.Millisecond)
	if count.Load() > after+1 {
		t.Error("task kept running after cancel")
	}
}

func TestRunLoop_CancelUnknownBenign(t *testing.T) {
	r := NewRunLoop()
	defer r.Shutdown()

	r.Cancel(JobHandle("no-such-job"))

	h := r.ScheduleEvery(time.Millisecond, func() {})
	r.Cancel(h)
	r.Cancel(h)
}

func TestRunLoop_PanickingTaskContained(t *testing.T) {
	r := NewRunLoop()
	defer r.Shutdown()

	var count atomic.Int64
	h := r.ScheduleEvery(5*time.Millisecond, func() {
		count.Add(1)
		panic("poll task blew up")
	})
	defer r.Cancel(h)

	deadline := time.Now().Add(2 * time.Second)
	for count.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if count.Load() < 2 {
		t.Error("panicking task should keep its schedule")
	}
}

func TestManual_TickRunsTasks(t *testing.T) {
	m := NewManual()

	var ran []int
	m.ScheduleEvery(time.Second, func() { ran = append(ran, 1) })
	m.ScheduleEvery(time.Second, func() { ran = append(ran, 2) })

	m.Tick()
	if len(ran) != 2 || ran[0] != 1 || ran[1] != 2 {
		t.Errorf("expected tasks in registration order, got %v", ran)
	}

	m.Tick()
	if len(ran) != 4 {
		t.Errorf("expected repeat invocation, got %d runs", len(ran))
	}
}

func TestManual_Cancel(t *testing.T) {
	m := NewManual()

	ran := 0
	h := m.ScheduleEvery(time.Second, func() { ran++ })
	if m.Scheduled() != 1 {
		t.Fatalf("expected 1 job, got %d", m.Scheduled())
	}

	m.Cancel(h)
	m.Tick()
	if ran != 0 {
		t.Error("cancelled task must not run")
	}
	if m.Scheduled() != 0 {
		t.Errorf("expected 0 jobs, got %d", m.Scheduled())
	}
}

func TestWorkerPool_SubmitRuns(t *testing.T) {
	p := NewWorkerPool(2, 8)

	var count atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			count.Add(1)
		})
	}
	wg.Wait()

	if count.Load() != 10 {
		t.Errorf("expected 10 tasks run, got %d", count.Load())
	}
	p.Shutdown()
}

func TestWorkerPool_ShutdownDrains(t *testing.T) {
	p := NewWorkerPool(1, 16)

	var count atomic.Int64
	for i := 0; i < 8; i++ {
		p.Submit(func() { count.Add(1) })
	}
	p.Shutdown()

	if count.Load() != 8 {
		t.Errorf("shutdown should drain the queue, got %d of 8", count.Load())
	}
}

func TestWorkerPool_ShutdownIdempotent(t *testing.T) {
	p := NewWorkerPool(1, 1)
	p.Shutdown()
	p.Shutdown()
}

func TestWorkerPool_PanickingTaskContained(t *testing.T) {
	p := NewWorkerPool(1, 4)

	var wg sync.WaitGroup
	wg.Add(1)
	p.Submit(func() {
		defer wg.Done()
		panic("callback blew up")
	})
	wg.Wait()

	// the worker must survive the panic
	done := make(chan struct{})
	p.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panicking task")
	}
	p.Shutdown()
}

package env

import "sync/atomic"

// DefaultEventBudget is the default cap on concurrently outstanding
// ad-hoc dispatched callbacks.
const DefaultEventBudget = 1000

// EventBudget is a coarse global cap on concurrently outstanding
// dispatched operations. The listener poll loop consults it before each
// ad-hoc thread spawn; listeners backed by a pool skip it because the
// pool provides its own backpressure.
type EventBudget struct {
	free atomic.Int64
}

// NewEventBudget creates a budget with the given number of free units.
// Non-positive means DefaultEventBudget.
func NewEventBudget(units int) *EventBudget {
	if units <= 0 {
		units = DefaultEventBudget
	}
	b := &EventBudget{}
	b.free.Store(int64(units))
	return b
}

// Free returns the currently free units.
func (b *EventBudget) Free() int {
	return int(b.free.Load())
}

// Acquire consumes one unit, reporting false when none remain.
func (b *EventBudget) Acquire() bool {
	for {
		cur := b.free.Load()
		if cur <= 0 {
			return false
		}
		if b.free.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Release returns one unit.
func (b *EventBudget) Release() {
	b.free.Add(1)
}

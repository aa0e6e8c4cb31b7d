package env

import (
	"testing"
	"time"

	snerrors "github.com/wippyai/sandnet/errors"
)

func TestFakeClock_SleepAdvances(t *testing.T) {
	c := NewFakeClock()
	start := c.Now()

	c.Sleep(250 * time.Millisecond)

	if got := c.Now().Sub(start); got != 250*time.Millisecond {
		t.Errorf("expected 250ms elapsed, got %v", got)
	}
	if c.Sleeps() != 1 {
		t.Errorf("expected 1 sleep, got %d", c.Sleeps())
	}
}

func TestFakeClock_ZeroSleepNotCounted(t *testing.T) {
	c := NewFakeClock()
	c.Sleep(0)
	if c.Sleeps() != 0 {
		t.Errorf("zero-duration sleep should not count, got %d", c.Sleeps())
	}
}

func TestFakeClock_Advance(t *testing.T) {
	c := NewFakeClock()
	start := c.Now()
	c.Advance(time.Second)
	if c.Now().Sub(start) != time.Second {
		t.Error("Advance should move the clock")
	}
	if c.Sleeps() != 0 {
		t.Error("Advance must not count as a sleep")
	}
}

func TestStaticResolver(t *testing.T) {
	r := StaticResolver{"node.example": "10.0.0.7"}

	addr, err := r.Resolve("node.example")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if addr != "10.0.0.7" {
		t.Errorf("expected 10.0.0.7, got %s", addr)
	}

	_, err = r.Resolve("missing.example")
	if !snerrors.IsKind(err, snerrors.KindTransport) {
		t.Errorf("expected transport error for unknown host, got %v", err)
	}
}

func TestEventBudget_AcquireRelease(t *testing.T) {
	b := NewEventBudget(2)

	if b.Free() != 2 {
		t.Fatalf("expected 2 free, got %d", b.Free())
	}
	if !b.Acquire() || !b.Acquire() {
		t.Fatal("both units should be acquirable")
	}
	if b.Acquire() {
		t.Error("exhausted budget should refuse")
	}
	b.Release()
	if !b.Acquire() {
		t.Error("released unit should be acquirable again")
	}
}

func TestEventBudget_DefaultUnits(t *testing.T) {
	b := NewEventBudget(0)
	if b.Free() != DefaultEventBudget {
		t.Errorf("expected default budget, got %d", b.Free())
	}
}

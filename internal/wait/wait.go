// Package wait implements bounded, cooperative waits against externally
// observed predicates.
package wait

import (
	"context"
	"sync"
	"time"
)

type Result int

const (
	Ready Result = iota
	TimedOut
	Cancelled
)

func (r Result) String() string {
	switch r {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Clock abstracts time so loops can run against a fake in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// FakeClock advances only when slept on. Safe for concurrent use.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(d time.Duration) {
	c.Advance(d)
}

func (c *FakeClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Until polls cond every poll interval until it holds, timeout elapses or
// ctx is done. Cancellation is only observed between polls.
func Until(ctx context.Context, clock Clock, cond func() bool, timeout, poll time.Duration) Result {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	deadline := clock.Now().Add(timeout)
	for {
		if cond() {
			return Ready
		}
		if ctx.Err() != nil {
			return Cancelled
		}
		if !clock.Now().Before(deadline) {
			return TimedOut
		}
		clock.Sleep(poll)
	}
}

// Sleep pauses for d unless ctx is already done. It reports false when the
// pause was skipped.
func Sleep(ctx context.Context, clock Clock, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	clock.Sleep(d)
	return ctx.Err() == nil
}

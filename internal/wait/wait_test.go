package wait

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUntil_ReadyImmediately(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	r := Until(context.Background(), clock, func() bool { return true }, time.Second, 10*time.Millisecond)
	assert.Equal(t, Ready, r)
	assert.Equal(t, time.Unix(0, 0), clock.Now(), "no sleep when the condition already holds")
}

func TestUntil_ReadyAfterPolls(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	calls := 0
	r := Until(context.Background(), clock, func() bool {
		calls++
		return calls == 4
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, Ready, r)
	assert.Equal(t, 30*time.Millisecond, clock.Now().Sub(time.Unix(0, 0)))
}

func TestUntil_TimesOut(t *testing.T) {
	start := time.Unix(0, 0)
	clock := NewFakeClock(start)
	r := Until(context.Background(), clock, func() bool { return false }, 5*time.Second, 100*time.Millisecond)

	assert.Equal(t, TimedOut, r)
	assert.Equal(t, 5*time.Second, clock.Now().Sub(start))
}

func TestUntil_CancelledBetweenPolls(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	r := Until(ctx, clock, func() bool {
		calls++
		if calls == 2 {
			cancel()
		}
		return false
	}, time.Hour, time.Millisecond)

	assert.Equal(t, Cancelled, r)
	assert.Equal(t, 2, calls, "the predicate call in flight completes before cancellation is honoured")
}

func TestUntil_DefaultPoll(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	r := Until(context.Background(), clock, func() bool { return false }, 250*time.Millisecond, 0)
	assert.Equal(t, TimedOut, r)
	assert.Equal(t, 300*time.Millisecond, clock.Now().Sub(time.Unix(0, 0)))
}

func TestSleep(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	assert.True(t, Sleep(context.Background(), clock, time.Second))
	assert.Equal(t, time.Second, clock.Now().Sub(time.Unix(0, 0)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, Sleep(ctx, clock, time.Second))
	assert.Equal(t, time.Second, clock.Now().Sub(time.Unix(0, 0)), "cancelled sleep does not advance")
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "timed_out", TimedOut.String())
	assert.Equal(t, "cancelled", Cancelled.String())
}

package timing

import (
	"testing"
	"time"

	"github.com/msageha/bankstander/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var origBounds = model.Bounds{
	Min:    60 * time.Millisecond,
	Max:    1800 * time.Millisecond,
	Target: 900 * time.Millisecond,
}

func TestPolicy_GaussianStaysInBoundsAndCentresOnTarget(t *testing.T) {
	p := NewPolicy(model.AntibanPolicy{Enabled: true, NonLinearIntervals: true}, 42)

	const n = 10000
	var sum time.Duration
	for range n {
		d := p.Delay(origBounds)
		require.GreaterOrEqual(t, d, origBounds.Min)
		require.LessOrEqual(t, d, origBounds.Max)
		sum += d
	}
	mean := sum / n

	toTarget := absDur(mean - origBounds.Target)
	assert.Less(t, toTarget, absDur(mean-origBounds.Min))
	assert.Less(t, toTarget, absDur(mean-origBounds.Max))
	assert.Less(t, toTarget, 50*time.Millisecond)
}

func TestPolicy_GaussianPrefersTarget(t *testing.T) {
	p := NewPolicy(model.AntibanPolicy{Enabled: true, NonLinearIntervals: true}, 7)

	near, edge := 0, 0
	for range 10000 {
		d := p.Delay(origBounds)
		switch {
		case absDur(d-origBounds.Target) < 100*time.Millisecond:
			near++
		case d < origBounds.Min+100*time.Millisecond || d > origBounds.Max-100*time.Millisecond:
			edge++
		}
	}
	assert.Greater(t, near, 5*edge)
}

func TestPolicy_UniformWithoutNonLinearIntervals(t *testing.T) {
	p := NewPolicy(model.AntibanPolicy{Enabled: true}, 1)

	low, high := 0, 0
	for range 10000 {
		d := p.Delay(origBounds)
		require.GreaterOrEqual(t, d, origBounds.Min)
		require.LessOrEqual(t, d, origBounds.Max)
		if d < 300*time.Millisecond {
			low++
		}
		if d > 1560*time.Millisecond {
			high++
		}
	}
	assert.Greater(t, low, 500)
	assert.Greater(t, high, 500)
}

func TestPolicy_DisabledReturnsTarget(t *testing.T) {
	p := NewPolicy(model.AntibanPolicy{}, 1)
	for range 100 {
		assert.Equal(t, origBounds.Target, p.Delay(origBounds))
	}
	assert.Equal(t, 5*time.Millisecond, p.Delay(model.Bounds{Min: 5 * time.Millisecond, Max: 5 * time.Millisecond, Target: 5 * time.Millisecond}))
}

func TestPolicy_SameSeedSameSequence(t *testing.T) {
	a := NewPolicy(model.AntibanPolicy{Enabled: true, NonLinearIntervals: true}, 99)
	b := NewPolicy(model.AntibanPolicy{Enabled: true, NonLinearIntervals: true}, 99)
	for range 50 {
		assert.Equal(t, a.Delay(origBounds), b.Delay(origBounds))
	}
}

func TestPolicy_MicroBreak(t *testing.T) {
	never := NewPolicy(model.AntibanPolicy{Enabled: true}, 3)
	_, ok := never.MicroBreak()
	assert.False(t, ok)

	always := NewPolicy(model.AntibanPolicy{
		Enabled:          true,
		MicroBreakChance: 1,
		MicroBreakMin:    5 * time.Second,
		MicroBreakMax:    30 * time.Second,
	}, 3)
	for range 100 {
		d, ok := always.MicroBreak()
		require.True(t, ok)
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.LessOrEqual(t, d, 30*time.Second)
	}

	disabled := NewPolicy(model.AntibanPolicy{MicroBreakChance: 1, MicroBreakMax: time.Second}, 3)
	_, ok = disabled.MicroBreak()
	assert.False(t, ok)
}

func absDur(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

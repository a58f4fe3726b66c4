// Package timing produces the jittered delays placed between actions.
package timing

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/msageha/bankstander/internal/model"
)

// maxResamples bounds the rejection sampling before falling back to a clamp.
const maxResamples = 16

// Policy draws delays according to an AntibanPolicy. The only state it keeps
// is its random source.
type Policy struct {
	antiban model.AntibanPolicy

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPolicy returns a policy with a deterministic source derived from seed.
func NewPolicy(p model.AntibanPolicy, seed int64) *Policy {
	return &Policy{
		antiban: p,
		rng:     rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
	}
}

func (p *Policy) Antiban() model.AntibanPolicy {
	return p.antiban
}

// Delay returns a duration in [b.Min, b.Max]. With non-linear intervals the
// draw is a Gaussian centred on b.Target (sigma = range/6) truncated to the
// bounds; otherwise it is uniform. With antiban disabled it is b.Target.
func (p *Policy) Delay(b model.Bounds) time.Duration {
	if !p.antiban.Enabled || b.Max <= b.Min {
		return clamp(b.Target, b.Min, b.Max)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.antiban.NonLinearIntervals {
		span := int64(b.Max - b.Min)
		return b.Min + time.Duration(p.rng.Int64N(span+1))
	}

	sigma := float64(b.Max-b.Min) / 6
	for range maxResamples {
		d := time.Duration(float64(b.Target) + p.rng.NormFloat64()*sigma)
		if d >= b.Min && d <= b.Max {
			return d
		}
	}
	return clamp(b.Target, b.Min, b.Max)
}

// MicroBreak decides whether to rest after a finished batch and for how long.
func (p *Policy) MicroBreak() (time.Duration, bool) {
	a := p.antiban
	if !a.Enabled || a.MicroBreakChance <= 0 || a.MicroBreakMax <= 0 {
		return 0, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rng.Float64() >= a.MicroBreakChance {
		return 0, false
	}
	span := int64(a.MicroBreakMax - a.MicroBreakMin)
	if span <= 0 {
		return a.MicroBreakMin, true
	}
	return a.MicroBreakMin + time.Duration(p.rng.Int64N(span+1)), true
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

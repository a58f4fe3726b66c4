package model

import (
	"fmt"
	"strings"
	"time"
)

// Phase is the state machine position of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseBanking
	PhaseProcessing
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseBanking:
		return "BANKING"
	case PhaseProcessing:
		return "PROCESSING"
	case PhaseStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	parsed, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func ParsePhase(s string) (Phase, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "IDLE":
		return PhaseIdle, nil
	case "BANKING":
		return PhaseBanking, nil
	case "PROCESSING":
		return PhaseProcessing, nil
	case "STOPPED":
		return PhaseStopped, nil
	default:
		return PhaseIdle, fmt.Errorf("unknown phase %q", s)
	}
}

// ProgressUnset marks a RunState whose progress baseline has not been taken.
const ProgressUnset int64 = -1

// RunState is the mutable record of a session. Only the session goroutine
// writes it.
type RunState struct {
	Phase          Phase
	ItemsProcessed int
	LastProgress   int64
	StartedAt      time.Time
}

func NewRunState(now time.Time) *RunState {
	return &RunState{
		Phase:        PhaseIdle,
		LastProgress: ProgressUnset,
		StartedAt:    now,
	}
}

// Baseline records v as the progress reference unless one is already set.
func (s *RunState) Baseline(v int64) {
	if s.LastProgress == ProgressUnset {
		s.LastProgress = v
	}
}

// Observe counts one processed item when v rises above the last recorded
// value. It reports whether the counter advanced.
func (s *RunState) Observe(v int64) bool {
	if s.LastProgress == ProgressUnset {
		s.LastProgress = v
		return false
	}
	if v <= s.LastProgress {
		return false
	}
	s.ItemsProcessed++
	s.LastProgress = v
	return true
}

// Snapshot is the read-only status of a session.
type Snapshot struct {
	SessionID      string        `json:"session_id"`
	Phase          Phase         `json:"phase"`
	ItemsProcessed int           `json:"items_processed"`
	Elapsed        time.Duration `json:"elapsed_ns"`
	Paused         bool          `json:"paused"`
	StoppedReason  string        `json:"stopped_reason,omitempty"`
	FirstItem      string        `json:"first_item,omitempty"`
	Action         string        `json:"action,omitempty"`
}

// PerHour extrapolates the processing rate once the session has run for
// more than five seconds.
func (s Snapshot) PerHour() int {
	if s.Elapsed <= 5*time.Second || s.ItemsProcessed <= 0 {
		return 0
	}
	return int(int64(s.ItemsProcessed) * int64(time.Hour) / int64(s.Elapsed))
}

// Package session runs the fixed-cadence state machine that alternates a
// character between banking and processing.
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/msageha/bankstander/internal/depot"
	"github.com/msageha/bankstander/internal/events"
	"github.com/msageha/bankstander/internal/logging"
	"github.com/msageha/bankstander/internal/materials"
	"github.com/msageha/bankstander/internal/model"
	"github.com/msageha/bankstander/internal/process"
	"github.com/msageha/bankstander/internal/timing"
	"github.com/msageha/bankstander/internal/wait"
	"github.com/msageha/bankstander/internal/world"
)

var (
	// ErrStopped is returned by Pause and Resume once the session has ended.
	ErrStopped = errors.New("session stopped")
	// ErrIncompleteWorld is returned when a mandatory collaborator is missing.
	ErrIncompleteWorld = errors.New("world is missing a mandatory collaborator")
)

const (
	ReasonUser      = "stopped by user"
	ReasonCancelled = "context cancelled"
)

type Option func(*Session)

func WithClock(c wait.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithSeed makes delay jitter reproducible.
func WithSeed(seed int64) Option {
	return func(s *Session) { s.seed = &seed }
}

func WithPolicy(p *timing.Policy) Option {
	return func(s *Session) { s.policy = p }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func WithBus(b *events.Bus) Option {
	return func(s *Session) { s.bus = b }
}

// WithPaused creates the session in the paused state.
func WithPaused(paused bool) Option {
	return func(s *Session) { s.startPaused = paused }
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// Session owns one RunState. Exactly one goroutine ticks it at a time.
type Session struct {
	id     string
	cfg    model.RunConfig
	world  world.World
	clock  wait.Clock
	seed   *int64
	policy *timing.Policy
	logger *logging.Logger
	bus    *events.Bus

	startPaused bool

	depot *depot.Driver
	proc  *process.Driver

	// tickMu serialises ticks and teardown. work is only touched under it.
	tickMu sync.Mutex
	work   *model.RunState

	// mu guards the published view read by Status.
	mu          sync.Mutex
	view        model.Snapshot
	startedAt   time.Time
	stoppedAt   time.Time
	pausedAt    time.Time
	pausedTotal time.Duration

	paused        atomic.Bool
	stopRequested atomic.Bool
	finished      atomic.Bool
	running       atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// New validates cfg and prepares a session without starting its loop. Ticks
// can then be driven with Tick; Start runs them on a timer.
func New(ctx context.Context, cfg model.RunConfig, w world.World, opts ...Option) (*Session, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("run config: %w", err)
	}
	if !w.Complete() {
		return nil, ErrIncompleteWorld
	}

	s := &Session{
		cfg:   cfg,
		world: w,
		clock: wait.RealClock,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	s.logger = s.logger.With("session")
	if s.policy == nil {
		seed := time.Now().UnixNano()
		if s.seed != nil {
			seed = *s.seed
		}
		s.policy = timing.NewPolicy(cfg.Antiban, seed)
	}

	s.depot = depot.New(w, s.clock, s.policy, s.logger.With("depot"))
	s.proc = process.New(w, s.clock, s.policy, s.logger.With("process"))
	s.proc.OnItem(s.itemProcessed)

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.startedAt = s.clock.Now()
	s.work = model.NewRunState(s.startedAt)
	s.view = model.Snapshot{
		SessionID: s.id,
		Phase:     model.PhaseIdle,
		FirstItem: firstItem(cfg),
	}
	if cfg.Action != model.DefaultAction {
		s.view.Action = cfg.Action
	}
	if s.startPaused {
		s.paused.Store(true)
		s.pausedAt = s.startedAt
		s.view.Paused = true
	}
	return s, nil
}

// Start creates a session and begins ticking immediately, then every
// cfg.TickInterval after the previous tick returns. Cancelling ctx stops it.
func Start(ctx context.Context, cfg model.RunConfig, w world.World, opts ...Option) (*Session, error) {
	s, err := New(ctx, cfg, w, opts...)
	if err != nil {
		return nil, err
	}
	s.running.Store(true)
	s.publish(events.EventSessionStarted, map[string]any{"slots": len(s.cfg.EnabledSlots())})
	s.logger.Infof("session %s started tick=%s slots=%d", s.id, s.cfg.TickInterval, len(s.cfg.EnabledSlots()))
	go s.loop()
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Config returns the immutable run configuration.
func (s *Session) Config() model.RunConfig { return s.cfg }

// Done is closed once the session reaches STOPPED and has torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) loop() {
	defer s.running.Store(false)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.tickMu.Lock()
			s.finishLocked(s.stopReason())
			s.tickMu.Unlock()
			return
		case <-timer.C:
		}

		s.Tick()
		if s.finished.Load() {
			return
		}
		timer.Reset(s.cfg.TickInterval)
	}
}

// Tick runs one state machine step. It is a no-op once the session stopped.
func (s *Session) Tick() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if s.finished.Load() {
		return
	}
	if s.stopRequested.Load() || s.ctx.Err() != nil {
		s.finishLocked(s.stopReason())
		return
	}
	if s.paused.Load() {
		return
	}

	if reason := s.step(); reason != "" {
		s.finishLocked(reason)
	}
}

// step evaluates the transition rule, commits the chosen phase and runs the
// matching driver. It returns a non-empty reason when the session must stop.
// A fault in the driver ends the tick; the committed phase stays and the
// next tick evaluates the rule again.
func (s *Session) step() (reason string) {
	defer func() {
		if r := recover(); r != nil {
			s.fault(fmt.Errorf("panic: %v", r))
			s.logger.Debugf("stack: %s", debug.Stack())
			reason = ""
		}
	}()

	next, why := s.evaluate()
	s.setPhase(next)

	switch next {
	case model.PhaseStopped:
		s.logger.Warnf("stopping: %s", why)
		return why

	case model.PhaseBanking:
		rep, err := s.depot.RunBankingCycle(s.ctx, s.cfg, s.work)
		if err != nil {
			s.fault(err)
			return ""
		}
		if rep.Outcome == depot.Stopped {
			if rep.Shortage != nil {
				s.publish(events.EventShortage, map[string]any{
					"kind":    string(rep.Shortage.Kind),
					"item_id": rep.Shortage.ItemID,
				})
			}
			s.setPhase(model.PhaseStopped)
			return rep.Reason
		}

	case model.PhaseProcessing:
		res, err := s.proc.RunProcessingCycle(s.ctx, s.cfg, s.work)
		if err != nil {
			s.fault(err)
			return ""
		}
		s.logger.Debugf("processing cycle %s items=%d", res, s.work.ItemsProcessed)
	}
	return ""
}

func (s *Session) evaluate() (model.Phase, string) {
	if s.cfg.RequiredLevel > 0 && s.world.Skill != nil {
		if lvl := s.world.Skill.Level(); lvl < s.cfg.RequiredLevel {
			return model.PhaseStopped, fmt.Sprintf("level %d is below the required %d", lvl, s.cfg.RequiredLevel)
		}
	}
	if len(s.cfg.EnabledSlots()) == 0 {
		return model.PhaseStopped, "no enabled slot"
	}
	if materials.HasSufficientMaterials(s.world.Inventory, s.cfg) {
		return model.PhaseProcessing, ""
	}
	return model.PhaseBanking, ""
}

func (s *Session) setPhase(p model.Phase) {
	prev := s.work.Phase
	if prev == p {
		return
	}
	s.work.Phase = p

	s.mu.Lock()
	s.view.Phase = p
	s.mu.Unlock()

	s.logger.Infof("phase %s -> %s", prev, p)
	s.publish(events.EventPhaseChanged, map[string]any{"from": prev.String()})
}

func (s *Session) itemProcessed(total int) {
	s.mu.Lock()
	if total > s.view.ItemsProcessed {
		s.view.ItemsProcessed = total
	}
	s.mu.Unlock()
	s.publish(events.EventItemProcessed, map[string]any{"items_processed": total})
}

func (s *Session) fault(err error) {
	s.logger.Errorf("tick fault: %v", err)
	s.publish(events.EventTickFault, map[string]any{"error": err.Error()})
}

// Pause suspends ticking. Paused time does not count towards Elapsed.
func (s *Session) Pause() error {
	if s.finished.Load() {
		return ErrStopped
	}
	if !s.paused.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	s.pausedAt = s.clock.Now()
	s.view.Paused = true
	s.mu.Unlock()

	s.logger.Infof("paused")
	s.publish(events.EventPaused, nil)
	return nil
}

func (s *Session) Resume() error {
	if s.finished.Load() {
		return ErrStopped
	}
	if !s.paused.CompareAndSwap(true, false) {
		return nil
	}
	s.mu.Lock()
	s.pausedTotal += s.clock.Now().Sub(s.pausedAt)
	s.pausedAt = time.Time{}
	s.view.Paused = false
	s.mu.Unlock()

	s.logger.Infof("resumed")
	s.publish(events.EventResumed, nil)
	return nil
}

// Paused reports whether ticks are currently skipped.
func (s *Session) Paused() bool {
	return s.paused.Load()
}

// Stop ends the session and waits for teardown. In-flight waits finish at
// their next poll. Calling Stop more than once is safe.
func (s *Session) Stop() {
	s.stopRequested.Store(true)
	s.cancel()
	if s.running.Load() {
		<-s.done
		return
	}
	s.tickMu.Lock()
	s.finishLocked(ReasonUser)
	s.tickMu.Unlock()
}

func (s *Session) stopReason() string {
	if s.stopRequested.Load() {
		return ReasonUser
	}
	return ReasonCancelled
}

// finishLocked performs the one-time teardown. Callers hold tickMu.
func (s *Session) finishLocked(reason string) {
	s.once.Do(func() {
		s.finished.Store(true)
		s.setPhase(model.PhaseStopped)
		s.cancel()

		now := s.clock.Now()
		s.mu.Lock()
		if s.paused.Load() && !s.pausedAt.IsZero() {
			s.pausedTotal += now.Sub(s.pausedAt)
			s.pausedAt = time.Time{}
		}
		s.stoppedAt = now
		s.view.StoppedReason = reason
		s.view.ItemsProcessed = max(s.view.ItemsProcessed, s.work.ItemsProcessed)
		items := s.view.ItemsProcessed
		s.mu.Unlock()

		s.logger.Infof("session %s stopped reason=%q items=%d", s.id, reason, items)
		s.publish(events.EventSessionStopped, map[string]any{
			"reason":          reason,
			"items_processed": items,
		})
		close(s.done)
	})
}

// Status returns a copy of the published session state.
func (s *Session) Status() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.view
	end := s.stoppedAt
	if end.IsZero() {
		end = s.clock.Now()
	}
	paused := s.pausedTotal
	if !s.pausedAt.IsZero() {
		paused += end.Sub(s.pausedAt)
	}
	snap.Elapsed = max(end.Sub(s.startedAt)-paused, 0)
	return snap
}

func (s *Session) publish(t events.EventType, data map[string]any) {
	if s.bus == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	s.mu.Lock()
	phase := s.view.Phase
	s.mu.Unlock()
	data["session_id"] = s.id
	data["phase"] = phase.String()
	s.bus.Publish(t, data)
}

func firstItem(cfg model.RunConfig) string {
	if m := cfg.Materials(); len(m) > 0 {
		return m[0].ID
	}
	if e := cfg.EnabledSlots(); len(e) > 0 {
		return e[0].ID
	}
	return ""
}

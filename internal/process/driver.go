// Package process runs the processing half of a session: trigger the
// interaction, confirm the make prompt, then follow the progress counter
// until the batch ends.
package process

import (
	"context"
	"fmt"

	"github.com/msageha/bankstander/internal/logging"
	"github.com/msageha/bankstander/internal/materials"
	"github.com/msageha/bankstander/internal/model"
	"github.com/msageha/bankstander/internal/timing"
	"github.com/msageha/bankstander/internal/wait"
	"github.com/msageha/bankstander/internal/world"
)

type Result int

const (
	// Completed: the batch was triggered and the progress source went idle,
	// or the cycle does not wait for batches.
	Completed Result = iota
	// Exhausted: materials ran out while following progress.
	Exhausted
	// Stalled: the progress counter did not rise within the stall timeout.
	Stalled
	// PromptTimedOut: the make prompt never appeared.
	PromptTimedOut
	// Retry: a precondition (depot closure) was not observed in time.
	Retry
	Cancelled
)

func (r Result) String() string {
	switch r {
	case Completed:
		return "completed"
	case Exhausted:
		return "exhausted"
	case Stalled:
		return "stalled"
	case PromptTimedOut:
		return "prompt_timed_out"
	case Retry:
		return "retry"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type Driver struct {
	world  world.World
	clock  wait.Clock
	policy *timing.Policy
	logger *logging.Logger
	onItem func(total int)
}

func New(w world.World, clock wait.Clock, policy *timing.Policy, logger *logging.Logger) *Driver {
	return &Driver{world: w, clock: clock, policy: policy, logger: logger}
}

// OnItem registers a callback invoked after every counted item.
func (d *Driver) OnItem(fn func(total int)) {
	d.onItem = fn
}

// RunProcessingCycle performs one processing entry. It never waits longer
// than the configured bounds without observing ctx.
func (d *Driver) RunProcessingCycle(ctx context.Context, cfg model.RunConfig, state *model.RunState) (Result, error) {
	st, inv, prog := d.world.Storage, d.world.Inventory, d.world.Progress

	if st.IsOpen() {
		if err := st.Close(); err != nil {
			return Retry, fmt.Errorf("close depot: %w", err)
		}
		switch wait.Until(ctx, d.clock, func() bool { return !st.IsOpen() }, cfg.WaitTimeout, cfg.PollSlice) {
		case wait.Cancelled:
			return Cancelled, nil
		case wait.TimedOut:
			d.logger.Warnf("depot still open, retrying next tick")
			return Retry, nil
		}
	}

	state.Baseline(prog.Current())

	if !cfg.IsCombine() {
		return d.runSingleItem(ctx, cfg, state)
	}

	first, second, ok := cfg.CombinePair()
	if !ok {
		return Retry, fmt.Errorf("no enabled slot to combine")
	}
	if err := inv.Use(first); err != nil {
		return Retry, fmt.Errorf("use %s: %w", first, err)
	}
	if second != "" {
		if err := inv.Use(second); err != nil {
			return Retry, fmt.Errorf("use %s on %s: %w", second, first, err)
		}
	}

	if cfg.PromptConfirmation {
		if r, err := d.confirm(ctx, cfg); err != nil || r != Completed {
			return r, err
		}
	}

	if !cfg.WaitForBatch {
		wait.Sleep(ctx, d.clock, d.policy.Delay(cfg.Delay))
		return Completed, nil
	}

	res := d.follow(ctx, cfg, state)
	d.logger.Debugf("batch ended result=%s items_processed=%d", res, state.ItemsProcessed)
	if res == Completed || res == Exhausted {
		d.microBreak(ctx)
	}
	return res, nil
}

// confirm waits for the make prompt and submits it.
func (d *Driver) confirm(ctx context.Context, cfg model.RunConfig) (Result, error) {
	ui := d.world.UI
	found := func() bool {
		_, ok := ui.FindElement(cfg.PromptWidget)
		return ok
	}
	switch wait.Until(ctx, d.clock, found, cfg.WaitTimeout, cfg.PollSlice) {
	case wait.Cancelled:
		return Cancelled, nil
	case wait.TimedOut:
		d.logger.Warnf("prompt %s not shown within %s", cfg.PromptWidget, cfg.WaitTimeout)
		return PromptTimedOut, nil
	}
	if err := d.world.Input.PressKey(cfg.ConfirmKey); err != nil {
		return Retry, fmt.Errorf("press %q: %w", cfg.ConfirmKey, err)
	}
	if !wait.Sleep(ctx, d.clock, cfg.PostSubmitPause) {
		return Cancelled, nil
	}
	return Completed, nil
}

// follow polls the progress counter while materials remain and the source
// reports activity. Every rise counts one item. No rise for StallTimeout ends
// the loop even if the source still claims to be advancing.
func (d *Driver) follow(ctx context.Context, cfg model.RunConfig, state *model.RunState) Result {
	inv, prog := d.world.Inventory, d.world.Progress
	lastRise := d.clock.Now()

	for {
		if ctx.Err() != nil {
			return Cancelled
		}
		if !materials.HasSufficientMaterials(inv, cfg) {
			d.observe(state, prog.Current())
			return Exhausted
		}
		if !prog.IsAdvancing() {
			d.observe(state, prog.Current())
			return Completed
		}
		if d.observe(state, prog.Current()) {
			lastRise = d.clock.Now()
		} else if d.clock.Now().Sub(lastRise) >= cfg.StallTimeout {
			d.logger.Warnf("progress stalled for %s", cfg.StallTimeout)
			return Stalled
		}
		d.clock.Sleep(cfg.PollSlice)
	}
}

// runSingleItem handles one-item actions such as clean, scatter or bury.
func (d *Driver) runSingleItem(ctx context.Context, cfg model.RunConfig, state *model.RunState) (Result, error) {
	inv, prog := d.world.Inventory, d.world.Progress

	slots := cfg.Materials()
	if len(slots) == 0 {
		slots = cfg.EnabledSlots()
	}
	if len(slots) == 0 {
		return Retry, fmt.Errorf("no enabled slot for %q", cfg.Action)
	}
	id := slots[0].ID

	for n := inv.Count(id); n > 0; n-- {
		if ctx.Err() != nil {
			return Cancelled, nil
		}
		if !inv.HasItem(id) {
			break
		}
		before := prog.Current()
		if err := inv.Interact(id, cfg.Action); err != nil {
			return Retry, fmt.Errorf("%s %s: %w", cfg.Action, id, err)
		}
		if cfg.WaitPerItem {
			advanced := func() bool { return prog.Current() > before }
			if wait.Until(ctx, d.clock, advanced, cfg.WaitTimeout, cfg.PollSlice) == wait.Cancelled {
				return Cancelled, nil
			}
		}
		d.observe(state, prog.Current())
		wait.Sleep(ctx, d.clock, d.policy.Delay(cfg.Delay))
	}

	if cfg.WaitForBatch {
		res := d.follow(ctx, cfg, state)
		if res == Cancelled {
			return res, nil
		}
	}
	d.microBreak(ctx)
	return Exhausted, nil
}

func (d *Driver) observe(state *model.RunState, v int64) bool {
	if !state.Observe(v) {
		return false
	}
	if d.onItem != nil {
		d.onItem(state.ItemsProcessed)
	}
	return true
}

func (d *Driver) microBreak(ctx context.Context) {
	if dur, ok := d.policy.MicroBreak(); ok {
		d.logger.Infof("micro break %s", dur)
		wait.Sleep(ctx, d.clock, dur)
	}
}

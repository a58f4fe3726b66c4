// Package depot runs the banking half of a session: open the depot, keep the
// tools and materials a cycle needs, withdraw the rest, close.
package depot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/msageha/bankstander/internal/logging"
	"github.com/msageha/bankstander/internal/materials"
	"github.com/msageha/bankstander/internal/model"
	"github.com/msageha/bankstander/internal/timing"
	"github.com/msageha/bankstander/internal/wait"
	"github.com/msageha/bankstander/internal/world"
)

type Outcome int

const (
	Continue Outcome = iota
	Stopped
)

func (o Outcome) String() string {
	if o == Stopped {
		return "stopped"
	}
	return "continue"
}

type ShortageKind string

const (
	ShortageTool     ShortageKind = "tool"
	ShortageMaterial ShortageKind = "material"
	// ShortageSpace means the inventory filled up before every slot was
	// withdrawn.
	ShortageSpace ShortageKind = "space"
)

// Shortage names the resource a cycle cannot be supplied with. Available
// counts held and depot units together; Need is the per-cycle amount.
type Shortage struct {
	Kind      ShortageKind
	ItemID    string
	Available int
	Need      int
}

func (s Shortage) Message() string {
	switch {
	case s.Kind == ShortageSpace:
		return fmt.Sprintf("Inventory full: no room left to withdraw %s", s.ItemID)
	case s.Kind == ShortageTool && s.Available > 0:
		return fmt.Sprintf("Missing tool: only %d x %s available, %d needed", s.Available, s.ItemID, s.Need)
	case s.Kind == ShortageTool:
		return fmt.Sprintf("Missing tool: %s is neither held nor in the depot", s.ItemID)
	case s.Available > 0:
		return fmt.Sprintf("Out of material: only %d x %s available, %d needed per cycle", s.Available, s.ItemID, s.Need)
	default:
		return fmt.Sprintf("Out of material: %s is neither held nor in the depot", s.ItemID)
	}
}

// Report is the result of one banking cycle. Reason is set when the cycle
// ended early.
type Report struct {
	Outcome  Outcome
	Reason   string
	Shortage *Shortage
}

type Driver struct {
	world  world.World
	clock  wait.Clock
	policy *timing.Policy
	logger *logging.Logger
}

func New(w world.World, clock wait.Clock, policy *timing.Policy, logger *logging.Logger) *Driver {
	return &Driver{world: w, clock: clock, policy: policy, logger: logger}
}

// RunBankingCycle performs one pass of the depot protocol. Returned errors
// are collaborator faults; timed-out waits end the cycle with Continue so
// the next tick retries.
func (d *Driver) RunBankingCycle(ctx context.Context, cfg model.RunConfig, state *model.RunState) (Report, error) {
	inv, st := d.world.Inventory, d.world.Storage

	if !st.IsOpen() {
		if err := st.Open(); err != nil {
			return Report{}, fmt.Errorf("open depot: %w", err)
		}
		if r := d.await(ctx, cfg, st.IsOpen); r != wait.Ready {
			return d.soft("depot did not open: %s", r), nil
		}
	}

	if cfg.DepositAllFirst {
		if err := st.DepositAll(); err != nil {
			return Report{}, fmt.Errorf("deposit all: %w", err)
		}
		if r := d.await(ctx, cfg, func() bool { return inv.FreeSlots() >= model.InventoryCapacity }); r != wait.Ready {
			return d.soft("deposit all not confirmed: %s", r), nil
		}
	}

	missingTools := materials.MissingTools(inv, cfg)
	if s := d.findShortage(cfg, missingTools); s != nil {
		return d.stop(s), nil
	}

	if len(missingTools) > 0 {
		if inv.FreeSlots() < len(missingTools) {
			if err := st.DepositAll(); err != nil {
				return Report{}, fmt.Errorf("deposit all for tools: %w", err)
			}
			if r := d.await(ctx, cfg, func() bool { return inv.FreeSlots() >= len(missingTools) }); r != wait.Ready {
				return d.soft("no room for tools: %s", r), nil
			}
		}
		for _, t := range missingTools {
			if rep, err := d.withdrawTool(ctx, cfg, t); err != nil || rep != nil {
				return derefReport(rep), err
			}
		}
	}

	if err := st.DepositAllExcept(cfg.KeepIDs()...); err != nil {
		return Report{}, fmt.Errorf("deposit all except %s: %w", strings.Join(cfg.KeepIDs(), ","), err)
	}
	d.pause(ctx, cfg)

	for _, m := range cfg.Materials() {
		if rep, err := d.withdrawMaterial(ctx, cfg, m); err != nil || rep != nil {
			return derefReport(rep), err
		}
	}

	if r := d.await(ctx, cfg, func() bool { return materials.HasSufficientMaterials(inv, cfg) }); r != wait.Ready {
		short := materials.MissingMaterials(inv, cfg)
		if len(short) > 0 && inv.FreeSlots() == 0 {
			return d.stop(&Shortage{Kind: ShortageSpace, ItemID: short[0].ID, Need: short[0].Required()}), nil
		}
		return d.soft("materials still short after withdrawal: %s", r), nil
	}

	if err := st.Close(); err != nil {
		return Report{}, fmt.Errorf("close depot: %w", err)
	}
	if r := d.await(ctx, cfg, func() bool { return !st.IsOpen() }); r != wait.Ready {
		return d.soft("depot did not close: %s", r), nil
	}
	d.logger.Debugf("banking cycle complete items_processed=%d", state.ItemsProcessed)
	return Report{Outcome: Continue}, nil
}

// findShortage checks every missing tool and short material against the
// depot before anything is withdrawn.
func (d *Driver) findShortage(cfg model.RunConfig, missingTools []model.SlotSpec) *Shortage {
	st := d.world.Storage

	if len(missingTools) > 0 {
		ids := make([]string, 0, len(missingTools))
		for _, t := range missingTools {
			ids = append(ids, t.ID)
		}
		if !st.HasAllItems(ids...) {
			for _, t := range missingTools {
				if !st.HasItem(t.ID) {
					return &Shortage{Kind: ShortageTool, ItemID: t.ID, Available: d.world.Inventory.Count(t.ID), Need: t.Required()}
				}
			}
		}
		for _, t := range missingTools {
			if s := d.shortOf(ShortageTool, t); s != nil {
				return s
			}
		}
	}

	for _, m := range cfg.Materials() {
		if s := d.shortOf(ShortageMaterial, m); s != nil {
			return s
		}
	}
	return nil
}

// shortOf reports a shortage when held and depot units together cannot
// cover one cycle of slot.
func (d *Driver) shortOf(kind ShortageKind, slot model.SlotSpec) *Shortage {
	inv, st := d.world.Inventory, d.world.Storage

	need := slot.Required()
	have := inv.Count(slot.ID)
	if have >= need {
		return nil
	}
	if st.HasItem(slot.ID) {
		have += st.Count(slot.ID)
	}
	if have >= need {
		return nil
	}
	return &Shortage{Kind: kind, ItemID: slot.ID, Available: have, Need: need}
}

func (d *Driver) withdrawTool(ctx context.Context, cfg model.RunConfig, t model.SlotSpec) (*Report, error) {
	inv, st := d.world.Inventory, d.world.Storage

	var err error
	if t.EffectiveRole() == model.RoleConsumable {
		err = st.WithdrawAll(t.ID)
	} else {
		err = st.WithdrawItem(false, t.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("withdraw tool %s: %w", t.ID, err)
	}
	if r := d.await(ctx, cfg, func() bool { return inv.HasItemAmount(t.ID, t.Required()) }); r != wait.Ready {
		rep := d.soft("tool %s not received: %s", t.ID, r)
		return &rep, nil
	}
	d.pause(ctx, cfg)
	return nil, nil
}

func (d *Driver) withdrawMaterial(ctx context.Context, cfg model.RunConfig, m model.SlotSpec) (*Report, error) {
	inv, st := d.world.Inventory, d.world.Storage

	held := inv.Count(m.ID)
	if !st.HasItem(m.ID) || inv.FreeSlots() == 0 {
		return nil, nil
	}

	if m.Quantity >= model.InventoryCapacity {
		if err := st.WithdrawAll(m.ID); err != nil {
			return nil, fmt.Errorf("withdraw all %s: %w", m.ID, err)
		}
		if r := d.await(ctx, cfg, func() bool { return inv.Count(m.ID) > held || inv.FreeSlots() == 0 }); r != wait.Ready {
			rep := d.soft("material %s not received: %s", m.ID, r)
			return &rep, nil
		}
		d.pause(ctx, cfg)
		return nil, nil
	}

	need := min(m.Quantity-held, inv.FreeSlots())
	if need <= 0 {
		return nil, nil
	}
	if err := st.WithdrawAmount(m.ID, need); err != nil {
		return nil, fmt.Errorf("withdraw %d x %s: %w", need, m.ID, err)
	}
	if r := d.await(ctx, cfg, func() bool { return inv.Count(m.ID) > held }); r != wait.Ready {
		rep := d.soft("material %s not received: %s", m.ID, r)
		return &rep, nil
	}
	d.pause(ctx, cfg)
	return nil, nil
}

func (d *Driver) await(ctx context.Context, cfg model.RunConfig, cond func() bool) wait.Result {
	return wait.Until(ctx, d.clock, cond, cfg.WaitTimeout, pollInterval(cfg))
}

func (d *Driver) pause(ctx context.Context, cfg model.RunConfig) {
	wait.Sleep(ctx, d.clock, d.policy.Delay(cfg.Delay))
}

func (d *Driver) stop(s *Shortage) Report {
	d.logger.Warnf("%s", s.Message())
	d.world.Notify(s.Message())
	return Report{Outcome: Stopped, Reason: s.Message(), Shortage: s}
}

func (d *Driver) soft(format string, args ...any) Report {
	reason := fmt.Sprintf(format, args...)
	d.logger.Warnf("banking retry: %s", reason)
	return Report{Outcome: Continue, Reason: reason}
}

func derefReport(r *Report) Report {
	if r == nil {
		return Report{}
	}
	return *r
}

// pollInterval spaces predicate checks inside depot waits.
func pollInterval(cfg model.RunConfig) time.Duration {
	return max(cfg.PollSlice*10, 50*time.Millisecond)
}

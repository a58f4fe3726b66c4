package depot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/msageha/bankstander/internal/logging"
	"github.com/msageha/bankstander/internal/model"
	"github.com/msageha/bankstander/internal/sim"
	"github.com/msageha/bankstander/internal/timing"
	"github.com/msageha/bankstander/internal/wait"
	"github.com/msageha/bankstander/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	clock *wait.FakeClock
	sim   *sim.World
	world world.World
	drv   *Driver
	state *model.RunState
}

func newFixture(t *testing.T, opts sim.Options) *fixture {
	t.Helper()
	clock := wait.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := sim.New(clock, opts)
	w := s.Bind()
	return &fixture{
		clock: clock,
		sim:   s,
		world: w,
		drv:   New(w, clock, timing.NewPolicy(model.AntibanPolicy{}, 1), logging.Discard()),
		state: model.NewRunState(clock.Now()),
	}
}

func (f *fixture) run(t *testing.T, cfg model.RunConfig) Report {
	t.Helper()
	rep, err := f.drv.RunBankingCycle(context.Background(), cfg.WithDefaults(), f.state)
	require.NoError(t, err)
	return rep
}

func knifeAndLogs() model.RunConfig {
	return model.RunConfig{Slots: []model.SlotSpec{
		{ID: "Knife", Quantity: 1},
		{ID: "Logs", Quantity: 27},
	}}
}

func withdrawals(actions []string) []string {
	var out []string
	for _, a := range actions {
		if strings.HasPrefix(a, "withdraw") {
			out = append(out, a)
		}
	}
	return out
}

func TestRunBankingCycle_WithdrawsInSlotOrder(t *testing.T) {
	f := newFixture(t, sim.Options{Tools: []string{"Knife"}})
	f.sim.SetDepot(map[string]int{"Knife": 1, "Logs": 100})

	rep := f.run(t, knifeAndLogs())

	assert.Equal(t, Continue, rep.Outcome)
	assert.Empty(t, rep.Reason)
	assert.Equal(t, []string{
		"open",
		"deposit_all_except:Knife,Logs",
		"withdraw_1:Knife",
		"withdraw_27:Logs",
		"close",
	}, f.sim.Actions())
	assert.Equal(t, map[string]int{"Knife": 1, "Logs": 27}, f.sim.Held())
	assert.False(t, f.world.Storage.IsOpen())
}

func TestRunBankingCycle_MaterialShortageStopsWithoutWithdrawal(t *testing.T) {
	f := newFixture(t, sim.Options{})
	f.sim.SetDepot(map[string]int{"Knife": 1})

	rep := f.run(t, knifeAndLogs())

	assert.Equal(t, Stopped, rep.Outcome)
	require.NotNil(t, rep.Shortage)
	assert.Equal(t, ShortageMaterial, rep.Shortage.Kind)
	assert.Equal(t, "Logs", rep.Shortage.ItemID)
	assert.Empty(t, withdrawals(f.sim.Actions()))

	msgs := f.sim.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Out of material")
}

func TestRunBankingCycle_ToolShortage(t *testing.T) {
	f := newFixture(t, sim.Options{})
	f.sim.SetDepot(map[string]int{"1741": 200})

	cfg, err := model.ApplyRecipe(model.RunConfig{}, "leather_gloves", false)
	require.NoError(t, err)
	rep := f.run(t, cfg)

	assert.Equal(t, Stopped, rep.Outcome)
	require.NotNil(t, rep.Shortage)
	assert.Equal(t, ShortageTool, rep.Shortage.Kind)
	assert.Equal(t, model.NeedleID, rep.Shortage.ItemID)
	assert.Empty(t, withdrawals(f.sim.Actions()))
	require.Len(t, f.sim.Messages(), 1)
	assert.Contains(t, f.sim.Messages()[0], "Missing tool")
}

func TestRunBankingCycle_ToolRoles(t *testing.T) {
	f := newFixture(t, sim.Options{Stackable: []string{model.ThreadID}})
	f.sim.SetDepot(map[string]int{model.NeedleID: 2, model.ThreadID: 50, "1741": 200})

	cfg, err := model.ApplyRecipe(model.RunConfig{}, "leather_gloves", false)
	require.NoError(t, err)
	rep := f.run(t, cfg)

	assert.Equal(t, Continue, rep.Outcome)
	assert.Equal(t, []string{
		"withdraw_item:" + model.NeedleID,
		"withdraw_all:" + model.ThreadID,
		"withdraw_all:1741",
	}, withdrawals(f.sim.Actions()))

	held := f.sim.Held()
	assert.Equal(t, 1, held[model.NeedleID])
	assert.Equal(t, 50, held[model.ThreadID])
	assert.Equal(t, 26, held["1741"], "needle and thread stack take two slots")
}

func TestRunBankingCycle_DepositsAllWhenNoRoomForTools(t *testing.T) {
	f := newFixture(t, sim.Options{})
	f.sim.SetDepot(map[string]int{"Knife": 1, "Logs": 10})
	f.sim.SetHeld(map[string]int{"Junk": 28})

	cfg := model.RunConfig{Slots: []model.SlotSpec{
		{ID: "Knife", Quantity: 1, Role: model.RoleTool},
		{ID: "Logs", Quantity: 27},
	}}
	rep := f.run(t, cfg)

	assert.Equal(t, Continue, rep.Outcome)
	actions := f.sim.Actions()
	require.GreaterOrEqual(t, len(actions), 3)
	assert.Equal(t, []string{"open", "deposit_all", "withdraw_item:Knife"}, actions[:3])
	assert.Equal(t, map[string]int{"Knife": 1, "Logs": 10}, f.sim.Held())
}

func TestRunBankingCycle_DepositAllFirst(t *testing.T) {
	f := newFixture(t, sim.Options{})
	f.sim.SetDepot(map[string]int{"Grimy guam": 100})
	f.sim.SetHeld(map[string]int{"Guam leaf": 28})

	cfg := model.RunConfig{
		Slots:           []model.SlotSpec{{ID: "Grimy guam", Quantity: 28}},
		Action:          "Clean",
		DepositAllFirst: true,
	}
	rep := f.run(t, cfg)

	assert.Equal(t, Continue, rep.Outcome)
	assert.Equal(t, []string{"open", "deposit_all", "deposit_all_except:Grimy guam", "withdraw_all:Grimy guam", "close"}, f.sim.Actions())
	assert.Equal(t, 28, f.sim.DepotContents()["Guam leaf"])
	assert.Equal(t, 28, f.sim.Held()["Grimy guam"])
}

func TestRunBankingCycle_TopsUpPartialMaterial(t *testing.T) {
	f := newFixture(t, sim.Options{Tools: []string{"Knife"}})
	f.sim.SetDepot(map[string]int{"Logs": 100})
	f.sim.SetHeld(map[string]int{"Knife": 1, "Logs": 20})

	f.run(t, knifeAndLogs())
	assert.Equal(t, []string{"withdraw_7:Logs"}, withdrawals(f.sim.Actions()))
}

func TestRunBankingCycle_DepotBelowPerCycleStops(t *testing.T) {
	f := newFixture(t, sim.Options{Tools: []string{"Knife"}})
	f.sim.SetHeld(map[string]int{"Knife": 1, "Logs": 2})
	f.sim.SetDepot(map[string]int{"Logs": 2})

	cfg := model.RunConfig{Slots: []model.SlotSpec{
		{ID: "Knife", Quantity: 1, Role: model.RoleTool},
		{ID: "Logs", Quantity: 5, PerCycle: 5},
	}}
	require.NoError(t, cfg.WithDefaults().Validate())
	rep := f.run(t, cfg)

	assert.Equal(t, Stopped, rep.Outcome)
	require.NotNil(t, rep.Shortage)
	assert.Equal(t, Shortage{Kind: ShortageMaterial, ItemID: "Logs", Available: 4, Need: 5}, *rep.Shortage)
	assert.Empty(t, withdrawals(f.sim.Actions()))
	assert.Equal(t, []string{"Out of material: only 4 x Logs available, 5 needed per cycle"}, f.sim.Messages())
}

func TestRunBankingCycle_PartialToolStackStops(t *testing.T) {
	f := newFixture(t, sim.Options{Stackable: []string{"Thread"}})
	f.sim.SetDepot(map[string]int{"Thread": 3, "Leather": 100})

	cfg := model.RunConfig{Slots: []model.SlotSpec{
		{ID: "Thread", Quantity: 1, Role: model.RoleConsumable, PerCycle: 5},
		{ID: "Leather", Quantity: 27},
	}}
	rep := f.run(t, cfg)

	assert.Equal(t, Stopped, rep.Outcome)
	require.NotNil(t, rep.Shortage)
	assert.Equal(t, ShortageTool, rep.Shortage.Kind)
	assert.Contains(t, rep.Reason, "only 3 x Thread available, 5 needed")
	assert.Empty(t, withdrawals(f.sim.Actions()))
}

func TestRunBankingCycle_InventoryFullStops(t *testing.T) {
	f := newFixture(t, sim.Options{})
	f.sim.SetDepot(map[string]int{"Vial": 500, "Herb": 500})

	cfg := model.RunConfig{Slots: []model.SlotSpec{
		{ID: "Vial", Quantity: 1, Role: model.RoleConsumable},
		{ID: "Herb", Quantity: 27},
	}}
	require.NoError(t, cfg.WithDefaults().Validate())
	rep := f.run(t, cfg)

	assert.Equal(t, Stopped, rep.Outcome)
	require.NotNil(t, rep.Shortage)
	assert.Equal(t, ShortageSpace, rep.Shortage.Kind)
	assert.Equal(t, "Herb", rep.Shortage.ItemID)
	assert.Equal(t, []string{"withdraw_all:Vial"}, withdrawals(f.sim.Actions()))
	assert.Equal(t, []string{"Inventory full: no room left to withdraw Herb"}, f.sim.Messages())
	assert.True(t, f.world.Storage.IsOpen(), "the depot stays open for the user to fix")
}

type stuckStorage struct {
	world.Storage
}

func (stuckStorage) IsOpen() bool { return false }

func TestRunBankingCycle_OpenTimeoutIsSoft(t *testing.T) {
	f := newFixture(t, sim.Options{})
	f.sim.SetDepot(map[string]int{"Knife": 1, "Logs": 100})
	f.world.Storage = stuckStorage{f.world.Storage}
	f.drv = New(f.world, f.clock, timing.NewPolicy(model.AntibanPolicy{}, 1), logging.Discard())

	start := f.clock.Now()
	rep := f.run(t, knifeAndLogs())

	assert.Equal(t, Continue, rep.Outcome)
	assert.Contains(t, rep.Reason, "did not open")
	assert.GreaterOrEqual(t, f.clock.Now().Sub(start), model.DefaultWaitTimeout)
	assert.Empty(t, withdrawals(f.sim.Actions()))
}

func TestRunBankingCycle_CollaboratorErrorIsReturned(t *testing.T) {
	f := newFixture(t, sim.Options{})
	f.sim.SetDepot(map[string]int{"Knife": 1, "Logs": 100})
	boom := errors.New("client disconnected")
	f.sim.FailNext("open", boom)

	_, err := f.drv.RunBankingCycle(context.Background(), knifeAndLogs().WithDefaults(), f.state)
	assert.ErrorIs(t, err, boom)
}

func TestShortageMessage(t *testing.T) {
	tests := []struct {
		s    Shortage
		want string
	}{
		{Shortage{Kind: ShortageTool, ItemID: "Knife"}, "Missing tool: Knife is neither held nor in the depot"},
		{Shortage{Kind: ShortageTool, ItemID: "Thread", Available: 2, Need: 5}, "Missing tool: only 2 x Thread available, 5 needed"},
		{Shortage{Kind: ShortageMaterial, ItemID: "Logs"}, "Out of material: Logs is neither held nor in the depot"},
		{Shortage{Kind: ShortageMaterial, ItemID: "Logs", Available: 4, Need: 5}, "Out of material: only 4 x Logs available, 5 needed per cycle"},
		{Shortage{Kind: ShortageSpace, ItemID: "Herb", Need: 1}, "Inventory full: no room left to withdraw Herb"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.s.Message())
	}
}

package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MaxSlots is the number of configurable item slots.
	MaxSlots = 4
	// InventoryCapacity is the number of held-item slots. A material slot
	// configured with this quantity is withdrawn with "withdraw all".
	InventoryCapacity = 28
	// DefaultAction is the combine interaction.
	DefaultAction = "use"
)

type SlotRole string

const (
	RoleMaterial   SlotRole = "material"
	RoleTool       SlotRole = "tool"
	RoleConsumable SlotRole = "consumable"
)

var validRoles = map[SlotRole]bool{
	"":             true,
	RoleMaterial:   true,
	RoleTool:       true,
	RoleConsumable: true,
}

// SlotSpec is one configured input. Quantity 0 disables the slot.
type SlotSpec struct {
	ID       string   `yaml:"id" json:"id"`
	Quantity int      `yaml:"quantity" json:"quantity"`
	Role     SlotRole `yaml:"role,omitempty" json:"role,omitempty"`
	PerCycle int      `yaml:"per_cycle,omitempty" json:"per_cycle,omitempty"`
}

func (s SlotSpec) Enabled() bool {
	return s.Quantity > 0 && strings.TrimSpace(s.ID) != ""
}

// Required is the held amount one interaction needs.
func (s SlotSpec) Required() int {
	if s.PerCycle > 0 {
		return s.PerCycle
	}
	return 1
}

func (s SlotSpec) EffectiveRole() SlotRole {
	if s.Role == "" {
		return RoleMaterial
	}
	return s.Role
}

// IsTool reports whether the slot is kept across cycles rather than consumed
// by the transformation.
func (s SlotSpec) IsTool() bool {
	r := s.EffectiveRole()
	return r == RoleTool || r == RoleConsumable
}

// ToolSet is one alternative of a mutually exclusive tool choice.
type ToolSet struct {
	Name  string     `yaml:"name" json:"name"`
	Items []SlotSpec `yaml:"items" json:"items"`
}

// Bounds are the delay bounds used by the timing policy.
type Bounds struct {
	Min    time.Duration
	Max    time.Duration
	Target time.Duration
}

func (b Bounds) Validate() error {
	if b.Min < 0 {
		return fmt.Errorf("min delay %s is negative", b.Min)
	}
	if b.Min > b.Target || b.Target > b.Max {
		return fmt.Errorf("delay bounds must satisfy min <= target <= max (got %s/%s/%s)", b.Min, b.Target, b.Max)
	}
	return nil
}

// AntibanPolicy is the per-session randomization policy. It is a plain value
// handed to the timing policy and the processing driver.
type AntibanPolicy struct {
	Enabled            bool
	NonLinearIntervals bool
	MicroBreakChance   float64
	MicroBreakMin      time.Duration
	MicroBreakMax      time.Duration
}

func (p AntibanPolicy) Validate() error {
	if p.MicroBreakChance < 0 || p.MicroBreakChance > 1 {
		return fmt.Errorf("micro break chance %v outside [0,1]", p.MicroBreakChance)
	}
	if p.MicroBreakMin > p.MicroBreakMax {
		return fmt.Errorf("micro break min %s exceeds max %s", p.MicroBreakMin, p.MicroBreakMax)
	}
	return nil
}

// RunConfig is the immutable configuration of one session.
type RunConfig struct {
	Slots    []SlotSpec
	ToolSets []ToolSet
	ToolSet  string

	Action             string
	PromptConfirmation bool
	ConfirmKey         rune
	PromptWidget       string
	WaitForBatch       bool
	WaitPerItem        bool
	DepositAllFirst    bool
	RequiredLevel      int

	Delay           Bounds
	TickInterval    time.Duration
	WaitTimeout     time.Duration
	PostSubmitPause time.Duration
	PollSlice       time.Duration
	StallTimeout    time.Duration

	Antiban AntibanPolicy
}

// Default timings.
const (
	DefaultTickInterval    = 600 * time.Millisecond
	DefaultWaitTimeout     = 5 * time.Second
	DefaultPostSubmitPause = 1800 * time.Millisecond
	DefaultPollSlice       = 10 * time.Millisecond
	DefaultStallTimeout    = 6 * time.Second
	DefaultConfirmKey      = ' '
	DefaultPromptWidget    = "17694733"
)

// WithDefaults fills zero-valued timings and interaction settings.
func (c RunConfig) WithDefaults() RunConfig {
	if strings.TrimSpace(c.Action) == "" {
		c.Action = DefaultAction
	}
	if c.ConfirmKey == 0 {
		c.ConfirmKey = DefaultConfirmKey
	}
	if c.PromptWidget == "" {
		c.PromptWidget = DefaultPromptWidget
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.PostSubmitPause < 0 {
		c.PostSubmitPause = 0
	}
	if c.PollSlice <= 0 {
		c.PollSlice = DefaultPollSlice
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = DefaultStallTimeout
	}
	return c
}

// IsCombine reports whether the action pairs two items ("use X with Y").
func (c RunConfig) IsCombine() bool {
	a := strings.TrimSpace(c.Action)
	return a == "" || strings.EqualFold(a, DefaultAction)
}

func (c RunConfig) selectedToolSet() (ToolSet, bool) {
	for _, ts := range c.ToolSets {
		if ts.Name == c.ToolSet {
			return ts, true
		}
	}
	return ToolSet{}, false
}

// EnabledSlots returns the selected tool set items followed by the enabled
// configured slots, in order.
func (c RunConfig) EnabledSlots() []SlotSpec {
	var out []SlotSpec
	if ts, ok := c.selectedToolSet(); ok {
		for _, s := range ts.Items {
			if s.Enabled() {
				out = append(out, s)
			}
		}
	}
	for _, s := range c.Slots {
		if s.Enabled() {
			out = append(out, s)
		}
	}
	return out
}

func (c RunConfig) Tools() []SlotSpec {
	var out []SlotSpec
	for _, s := range c.EnabledSlots() {
		if s.IsTool() {
			out = append(out, s)
		}
	}
	return out
}

func (c RunConfig) Materials() []SlotSpec {
	var out []SlotSpec
	for _, s := range c.EnabledSlots() {
		if !s.IsTool() {
			out = append(out, s)
		}
	}
	return out
}

// KeepIDs lists every identifier that must survive a deposit.
func (c RunConfig) KeepIDs() []string {
	slots := c.EnabledSlots()
	ids := make([]string, 0, len(slots))
	for _, s := range slots {
		ids = append(ids, s.ID)
	}
	return ids
}

// CombinePair returns the identifiers used, in order, by a combine
// interaction: the first tool (or the first slot when there are no tools)
// and then the first material that differs from it.
func (c RunConfig) CombinePair() (first, second string, ok bool) {
	slots := c.EnabledSlots()
	if len(slots) == 0 {
		return "", "", false
	}
	first = slots[0].ID
	if tools := c.Tools(); len(tools) > 0 {
		first = tools[0].ID
	}
	for _, s := range c.Materials() {
		if s.ID != first {
			return first, s.ID, true
		}
	}
	for _, s := range slots {
		if s.ID != first {
			return first, s.ID, true
		}
	}
	return first, "", true
}

// Validate checks the invariants of a session configuration.
func (c RunConfig) Validate() error {
	errs := &ValidationErrors{}

	if len(c.Slots) > MaxSlots {
		errs.Add("slots", fmt.Sprintf("at most %d slots are allowed, got %d", MaxSlots, len(c.Slots)))
	}
	for i, s := range c.Slots {
		validateSlot(s, fmt.Sprintf("slots[%d]", i), errs)
	}

	if len(c.ToolSets) > 0 {
		ts, ok := c.selectedToolSet()
		if !ok {
			errs.Add("tool_set", fmt.Sprintf("%q does not name a configured tool set", c.ToolSet))
		} else {
			for i, s := range ts.Items {
				prefix := fmt.Sprintf("tool_sets[%s].items[%d]", ts.Name, i)
				validateSlot(s, prefix, errs)
				if s.Enabled() && !s.IsTool() {
					errs.Add(prefix+".role", "tool set items must be tool or consumable")
				}
			}
		}
	} else if c.ToolSet != "" {
		errs.Add("tool_set", "selected but no tool sets are configured")
	}

	if len(c.EnabledSlots()) == 0 {
		errs.Add("slots", "at least one enabled slot is required")
	} else {
		c.validateCapacity(errs)
	}
	if c.RequiredLevel < 0 {
		errs.Add("required_level", "must not be negative")
	}
	if err := c.Delay.Validate(); err != nil {
		errs.Add("delay", err.Error())
	}
	if err := c.Antiban.Validate(); err != nil {
		errs.Add("antiban", err.Error())
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateSlot(s SlotSpec, prefix string, errs *ValidationErrors) {
	if s.Quantity < 0 || s.Quantity > InventoryCapacity {
		errs.Add(prefix+".quantity", fmt.Sprintf("must be in [0,%d], got %d", InventoryCapacity, s.Quantity))
	}
	if s.Quantity > 0 && strings.TrimSpace(s.ID) == "" {
		errs.Add(prefix+".id", "required when quantity > 0")
	}
	if !validRoles[s.Role] {
		errs.Add(prefix+".role", fmt.Sprintf("unknown role %q", s.Role))
	}
	if s.PerCycle < 0 {
		errs.Add(prefix+".per_cycle", "must not be negative")
	}
	// Consumables are withdrawn as a whole stack, so only the other roles are
	// bounded by their configured quantity.
	if s.Enabled() && s.EffectiveRole() != RoleConsumable && s.PerCycle > s.Quantity {
		errs.Add(prefix+".per_cycle", fmt.Sprintf("%d exceeds quantity %d", s.PerCycle, s.Quantity))
	}
}

// validateCapacity checks that every enabled slot fits in the inventory at
// once. A material with quantity InventoryCapacity takes whatever space the
// tools leave, so it cannot share the inventory with another material.
// Consumables are counted as one stack.
func (c RunConfig) validateCapacity(errs *ValidationErrors) {
	var fill []string
	materialIDs := make(map[string]bool)
	spaces := 0
	for _, s := range c.EnabledSlots() {
		switch {
		case s.EffectiveRole() == RoleConsumable:
			spaces++
		case s.IsTool():
			spaces += s.Quantity
		default:
			materialIDs[s.ID] = true
			if s.Quantity >= InventoryCapacity {
				fill = append(fill, s.ID)
				continue
			}
			spaces += s.Quantity
		}
	}

	if len(fill) > 0 {
		if len(materialIDs) > 1 {
			errs.Add("slots", fmt.Sprintf("%s has quantity %d and fills the inventory, leaving no room for the other materials", fill[0], InventoryCapacity))
		} else if spaces >= InventoryCapacity {
			errs.Add("slots", fmt.Sprintf("tools take all %d inventory spaces, leaving none for %s", InventoryCapacity, fill[0]))
		}
		return
	}
	if spaces > InventoryCapacity {
		errs.Add("slots", fmt.Sprintf("enabled slots need %d inventory spaces, only %d exist", spaces, InventoryCapacity))
	}
}

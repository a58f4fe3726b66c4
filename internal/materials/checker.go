// Package materials decides whether held items are enough for another
// processing cycle.
package materials

import "github.com/msageha/bankstander/internal/model"

// Held is the part of the inventory view the checker reads.
type Held interface {
	HasItemAmount(id string, n int) bool
}

// Counts adapts a plain identifier→count snapshot to Held.
type Counts map[string]int

func (c Counts) HasItemAmount(id string, n int) bool {
	return c[id] >= n
}

// HasSufficientMaterials reports whether every enabled slot, including the
// selected tool set, is held in at least its per-cycle amount.
func HasSufficientMaterials(held Held, cfg model.RunConfig) bool {
	slots := cfg.EnabledSlots()
	if len(slots) == 0 {
		return false
	}
	for _, s := range slots {
		if !held.HasItemAmount(s.ID, s.Required()) {
			return false
		}
	}
	return true
}

// SatisfiedToolSet returns the name of the single tool set fully held. It
// reports false when none or more than one alternative is satisfied.
func SatisfiedToolSet(held Held, sets []model.ToolSet) (string, bool) {
	name := ""
	matched := 0
	for _, ts := range sets {
		if holdsAll(held, ts.Items) {
			name = ts.Name
			matched++
		}
	}
	if matched != 1 {
		return "", false
	}
	return name, true
}

// MissingTools lists the enabled tools not held in their per-cycle amount.
func MissingTools(held Held, cfg model.RunConfig) []model.SlotSpec {
	return missing(held, cfg.Tools())
}

// MissingMaterials lists the enabled materials not held in their per-cycle
// amount.
func MissingMaterials(held Held, cfg model.RunConfig) []model.SlotSpec {
	return missing(held, cfg.Materials())
}

func holdsAll(held Held, items []model.SlotSpec) bool {
	found := false
	for _, s := range items {
		if !s.Enabled() {
			continue
		}
		found = true
		if !held.HasItemAmount(s.ID, s.Required()) {
			return false
		}
	}
	return found
}

func missing(held Held, slots []model.SlotSpec) []model.SlotSpec {
	var out []model.SlotSpec
	for _, s := range slots {
		if !held.HasItemAmount(s.ID, s.Required()) {
			out = append(out, s)
		}
	}
	return out
}

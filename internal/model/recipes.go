package model

import (
	"fmt"
	"sort"
	"strings"
)

// Leather crafting tool identifiers.
const (
	NeedleID        = "1733"
	ThreadID        = "1734"
	CostumeNeedleID = "6363"

	ToolSetNeedleThread  = "needle+thread"
	ToolSetCostumeNeedle = "costume-needle"
)

// Recipe describes one craftable product.
type Recipe struct {
	Key        string
	Name       string
	MaterialID string
	ResultID   string
	Level      int
	MenuKey    rune
}

func (r Recipe) String() string {
	return r.Name
}

var recipes = map[string]Recipe{
	"leather_gloves":    {Key: "leather_gloves", Name: "Leather gloves", MaterialID: "1741", ResultID: "1059", Level: 1, MenuKey: '1'},
	"leather_boots":     {Key: "leather_boots", Name: "Leather boots", MaterialID: "1741", ResultID: "1061", Level: 7, MenuKey: '2'},
	"leather_cowl":      {Key: "leather_cowl", Name: "Leather cowl", MaterialID: "1741", ResultID: "1167", Level: 9, MenuKey: '3'},
	"leather_vambraces": {Key: "leather_vambraces", Name: "Leather vambraces", MaterialID: "1741", ResultID: "1063", Level: 11, MenuKey: '4'},
	"leather_body":      {Key: "leather_body", Name: "Leather body", MaterialID: "1741", ResultID: "1129", Level: 14, MenuKey: '5'},
	"leather_chaps":     {Key: "leather_chaps", Name: "Leather chaps", MaterialID: "1741", ResultID: "1095", Level: 18, MenuKey: '6'},
	"coif":              {Key: "coif", Name: "Coif", MaterialID: "1741", ResultID: "1169", Level: 38, MenuKey: '7'},
	"hardleather_body":  {Key: "hardleather_body", Name: "Hardleather body", MaterialID: "1743", ResultID: "1131", Level: 28, MenuKey: '1'},
}

// LookupRecipe finds a recipe by key (case-insensitive, spaces allowed).
func LookupRecipe(key string) (Recipe, bool) {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.ReplaceAll(k, " ", "_")
	r, ok := recipes[k]
	return r, ok
}

// Recipes returns the table ordered by level, then name.
func Recipes() []Recipe {
	out := make([]Recipe, 0, len(recipes))
	for _, r := range recipes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// LeatherToolSets are the two equivalent ways of holding crafting tools.
func LeatherToolSets() []ToolSet {
	return []ToolSet{
		{Name: ToolSetNeedleThread, Items: []SlotSpec{
			{ID: NeedleID, Quantity: 1, Role: RoleTool},
			{ID: ThreadID, Quantity: 1, Role: RoleConsumable},
		}},
		{Name: ToolSetCostumeNeedle, Items: []SlotSpec{
			{ID: CostumeNeedleID, Quantity: 1, Role: RoleTool},
		}},
	}
}

// Apply overlays the recipe onto base: the tool choice, the material slot,
// the level threshold and the make-menu key.
func (r Recipe) Apply(base RunConfig, useCostumeNeedle bool) RunConfig {
	cfg := base
	cfg.ToolSets = LeatherToolSets()
	cfg.ToolSet = ToolSetNeedleThread
	if useCostumeNeedle {
		cfg.ToolSet = ToolSetCostumeNeedle
	}
	cfg.Slots = []SlotSpec{{ID: r.MaterialID, Quantity: InventoryCapacity, Role: RoleMaterial}}
	cfg.Action = DefaultAction
	cfg.PromptConfirmation = true
	cfg.ConfirmKey = r.MenuKey
	cfg.WaitForBatch = true
	cfg.WaitPerItem = false
	cfg.RequiredLevel = r.Level
	return cfg
}

// ApplyRecipe resolves key and applies it; an empty key leaves base as is.
func ApplyRecipe(base RunConfig, key string, useCostumeNeedle bool) (RunConfig, error) {
	if strings.TrimSpace(key) == "" {
		return base, nil
	}
	r, ok := LookupRecipe(key)
	if !ok {
		return base, fmt.Errorf("unknown recipe %q", key)
	}
	return r.Apply(base, useCostumeNeedle), nil
}

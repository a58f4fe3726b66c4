package materials

import (
	"testing"

	"github.com/msageha/bankstander/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestHasSufficientMaterials(t *testing.T) {
	cfg := model.RunConfig{Slots: []model.SlotSpec{
		{ID: "Knife", Quantity: 1},
		{ID: "Logs", Quantity: 27},
		{ID: "Unused", Quantity: 0},
	}}

	tests := []struct {
		name string
		held Counts
		want bool
	}{
		{"empty", Counts{}, false},
		{"tool only", Counts{"Knife": 1}, false},
		{"material only", Counts{"Logs": 27}, false},
		{"one of each", Counts{"Knife": 1, "Logs": 1}, true},
		{"disabled slot ignored", Counts{"Knife": 1, "Logs": 5, "Unused": 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasSufficientMaterials(tt.held, cfg))
		})
	}
}

func TestHasSufficientMaterials_PerCycleAmount(t *testing.T) {
	cfg := model.RunConfig{Slots: []model.SlotSpec{
		{ID: "Thread", Quantity: 1, Role: model.RoleConsumable, PerCycle: 5},
		{ID: "Leather", Quantity: 28},
	}}
	assert.False(t, HasSufficientMaterials(Counts{"Thread": 4, "Leather": 28}, cfg))
	assert.True(t, HasSufficientMaterials(Counts{"Thread": 5, "Leather": 1}, cfg))
}

func TestHasSufficientMaterials_NoEnabledSlot(t *testing.T) {
	cfg := model.RunConfig{Slots: []model.SlotSpec{{ID: "Logs", Quantity: 0}}}
	assert.False(t, HasSufficientMaterials(Counts{"Logs": 28}, cfg))
}

func TestHasSufficientMaterials_SelectedToolSet(t *testing.T) {
	cfg, err := model.ApplyRecipe(model.RunConfig{}, "leather_gloves", true)
	assert.NoError(t, err)

	assert.False(t, HasSufficientMaterials(Counts{model.NeedleID: 1, model.ThreadID: 10, "1741": 5}, cfg),
		"needle and thread do not satisfy the costume needle selection")
	assert.True(t, HasSufficientMaterials(Counts{model.CostumeNeedleID: 1, "1741": 5}, cfg))
}

func TestSatisfiedToolSet(t *testing.T) {
	sets := model.LeatherToolSets()

	name, ok := SatisfiedToolSet(Counts{model.NeedleID: 1, model.ThreadID: 3}, sets)
	assert.True(t, ok)
	assert.Equal(t, model.ToolSetNeedleThread, name)

	name, ok = SatisfiedToolSet(Counts{model.CostumeNeedleID: 1}, sets)
	assert.True(t, ok)
	assert.Equal(t, model.ToolSetCostumeNeedle, name)

	_, ok = SatisfiedToolSet(Counts{model.NeedleID: 1}, sets)
	assert.False(t, ok, "needle without thread satisfies nothing")

	_, ok = SatisfiedToolSet(Counts{model.NeedleID: 1, model.ThreadID: 1, model.CostumeNeedleID: 1}, sets)
	assert.False(t, ok, "both alternatives held is ambiguous")
}

func TestMissingToolsAndMaterials(t *testing.T) {
	cfg := model.RunConfig{Slots: []model.SlotSpec{
		{ID: "Knife", Quantity: 1, Role: model.RoleTool},
		{ID: "Logs", Quantity: 27},
	}}
	held := Counts{"Logs": 3}

	tools := MissingTools(held, cfg)
	if assert.Len(t, tools, 1) {
		assert.Equal(t, "Knife", tools[0].ID)
	}
	assert.Empty(t, MissingMaterials(held, cfg))
	assert.Len(t, MissingMaterials(Counts{}, cfg), 1)
}

// Package model defines the configuration, session state and recipe data of bankstander.
package model

import (
	"fmt"
	"time"
	"unicode/utf8"
)

type Config struct {
	SchemaVersion int              `yaml:"schema_version"`
	FileType      string           `yaml:"file_type"`
	Session       SessionConfig    `yaml:"session"`
	Timing        TimingConfig     `yaml:"timing"`
	Antiban       AntibanConfig    `yaml:"antiban"`
	Notify        NotifyConfig     `yaml:"notify"`
	Daemon        DaemonConfig     `yaml:"daemon"`
	Logging       LoggingConfig    `yaml:"logging"`
	Simulation    SimulationConfig `yaml:"simulation"`
}

type SessionConfig struct {
	Paused             bool       `yaml:"paused"`
	Slots              []SlotSpec `yaml:"slots"`
	Recipe             string     `yaml:"recipe,omitempty"`
	CostumeNeedle      bool       `yaml:"costume_needle"`
	Action             string     `yaml:"action"`
	PromptConfirmation bool       `yaml:"prompt_confirmation"`
	ConfirmKey         string     `yaml:"confirm_key,omitempty"`
	PromptWidget       string     `yaml:"prompt_widget,omitempty"`
	WaitForBatch       bool       `yaml:"wait_for_batch"`
	WaitPerItem        bool       `yaml:"wait_per_item"`
	DepositAllFirst    bool       `yaml:"deposit_all_first"`
	RequiredLevel      int        `yaml:"required_level"`
}

type TimingConfig struct {
	TickIntervalMs    int `yaml:"tick_interval_ms"`
	WaitTimeoutMs     int `yaml:"wait_timeout_ms"`
	PostSubmitPauseMs int `yaml:"post_submit_pause_ms"`
	PollSliceMs       int `yaml:"poll_slice_ms"`
	StallTimeoutMs    int `yaml:"stall_timeout_ms"`
	SleepMinMs        int `yaml:"sleep_min_ms"`
	SleepMaxMs        int `yaml:"sleep_max_ms"`
	SleepTargetMs     int `yaml:"sleep_target_ms"`
}

type AntibanConfig struct {
	Enabled            bool    `yaml:"enabled"`
	NonLinearIntervals bool    `yaml:"non_linear_intervals"`
	MicroBreakChance   float64 `yaml:"micro_break_chance"`
	MicroBreakMinSec   int     `yaml:"micro_break_min_sec"`
	MicroBreakMaxSec   int     `yaml:"micro_break_max_sec"`
}

type NotifyConfig struct {
	Desktop bool   `yaml:"desktop"`
	Title   string `yaml:"title,omitempty"`
}

type DaemonConfig struct {
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	AuditMaxMiB int    `yaml:"audit_max_mib,omitempty"`
}

// SimulationConfig seeds the in-memory world used when no client binding is
// attached.
type SimulationConfig struct {
	Seed            int64          `yaml:"seed"`
	Level           int            `yaml:"level"`
	ItemDurationMs  int            `yaml:"item_duration_ms"`
	ProgressPerItem int64          `yaml:"progress_per_item"`
	Depot           map[string]int `yaml:"depot"`
	Inventory       map[string]int `yaml:"inventory,omitempty"`
	// Tools lists identifiers a batch never consumes, in addition to the
	// tool slots of the session.
	Tools []string `yaml:"tools,omitempty"`
	// Stackable lists identifiers that occupy a single held slot.
	Stackable []string `yaml:"stackable,omitempty"`
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// RunConfig converts the file representation into the session configuration,
// applying a recipe preset when one is named.
func (c Config) RunConfig() (RunConfig, error) {
	s := c.Session
	rc := RunConfig{
		Slots:              append([]SlotSpec(nil), s.Slots...),
		Action:             s.Action,
		PromptConfirmation: s.PromptConfirmation,
		PromptWidget:       s.PromptWidget,
		WaitForBatch:       s.WaitForBatch,
		WaitPerItem:        s.WaitPerItem,
		DepositAllFirst:    s.DepositAllFirst,
		RequiredLevel:      s.RequiredLevel,
		Delay: Bounds{
			Min:    ms(c.Timing.SleepMinMs),
			Max:    ms(c.Timing.SleepMaxMs),
			Target: ms(c.Timing.SleepTargetMs),
		},
		TickInterval:    ms(c.Timing.TickIntervalMs),
		WaitTimeout:     ms(c.Timing.WaitTimeoutMs),
		PostSubmitPause: ms(c.Timing.PostSubmitPauseMs),
		PollSlice:       ms(c.Timing.PollSliceMs),
		StallTimeout:    ms(c.Timing.StallTimeoutMs),
		Antiban: AntibanPolicy{
			Enabled:            c.Antiban.Enabled,
			NonLinearIntervals: c.Antiban.NonLinearIntervals,
			MicroBreakChance:   c.Antiban.MicroBreakChance,
			MicroBreakMin:      time.Duration(c.Antiban.MicroBreakMinSec) * time.Second,
			MicroBreakMax:      time.Duration(c.Antiban.MicroBreakMaxSec) * time.Second,
		},
	}

	if s.ConfirmKey != "" {
		if utf8.RuneCountInString(s.ConfirmKey) != 1 {
			return RunConfig{}, fmt.Errorf("session.confirm_key must be a single character, got %q", s.ConfirmKey)
		}
		r, _ := utf8.DecodeRuneInString(s.ConfirmKey)
		rc.ConfirmKey = r
	}

	rc, err := ApplyRecipe(rc, s.Recipe, s.CostumeNeedle)
	if err != nil {
		return RunConfig{}, fmt.Errorf("session.recipe: %w", err)
	}
	return rc.WithDefaults(), nil
}

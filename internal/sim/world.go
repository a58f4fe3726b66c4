// Package sim is an in-memory game client. Time only moves through the
// clock it is given, so a session driven by a fake clock runs deterministically.
package sim

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/msageha/bankstander/internal/model"
	"github.com/msageha/bankstander/internal/wait"
	"github.com/msageha/bankstander/internal/world"
)

const (
	DefaultItemDuration    = 1200 * time.Millisecond
	DefaultProgressPerItem = 25
	promptText             = "How many would you like to make?"
)

type Options struct {
	Level           int
	ItemDuration    time.Duration
	ProgressPerItem int64
	PromptWidget    string
	// Prompt makes a completed "use X with Y" pairing show the make prompt
	// instead of starting the batch directly.
	Prompt    bool
	Tools     []string
	Stackable []string
}

type batch struct {
	inputs  []string
	started time.Time
	made    int
}

type pending struct {
	due time.Time
}

// World implements every collaborator in internal/world. It is safe for
// concurrent use.
type World struct {
	mu    sync.Mutex
	clock wait.Clock
	opts  Options

	tools     map[string]bool
	stackable map[string]bool

	held  map[string]int
	depot map[string]int
	open  bool

	selected    string
	pendingPair []string
	prompt      bool
	batch       *batch
	singles     []pending
	progress    int64

	messages []string
	actions  []string
	faults   map[string]error
	panics   map[string]bool
}

func New(clock wait.Clock, opts Options) *World {
	if opts.ItemDuration <= 0 {
		opts.ItemDuration = DefaultItemDuration
	}
	if opts.ProgressPerItem <= 0 {
		opts.ProgressPerItem = DefaultProgressPerItem
	}
	if opts.PromptWidget == "" {
		opts.PromptWidget = model.DefaultPromptWidget
	}
	w := &World{
		clock:     clock,
		opts:      opts,
		tools:     make(map[string]bool),
		stackable: make(map[string]bool),
		held:      make(map[string]int),
		depot:     make(map[string]int),
		faults:    make(map[string]error),
		panics:    make(map[string]bool),
	}
	for _, id := range opts.Tools {
		w.tools[id] = true
	}
	for _, id := range opts.Stackable {
		w.stackable[id] = true
	}
	return w
}

// FromConfig builds a world matching a session configuration: tool slots
// are never consumed, consumable co-tools stack, and the depot and held
// items are seeded from sc.
func FromConfig(clock wait.Clock, sc model.SimulationConfig, rc model.RunConfig) *World {
	opts := Options{
		Level:           sc.Level,
		ItemDuration:    time.Duration(sc.ItemDurationMs) * time.Millisecond,
		ProgressPerItem: sc.ProgressPerItem,
		PromptWidget:    rc.PromptWidget,
		Prompt:          rc.PromptConfirmation,
		Tools:           slices.Clone(sc.Tools),
		Stackable:       slices.Clone(sc.Stackable),
	}
	for _, s := range rc.Tools() {
		opts.Tools = append(opts.Tools, s.ID)
		if s.EffectiveRole() == model.RoleConsumable {
			opts.Stackable = append(opts.Stackable, s.ID)
		}
	}
	if opts.Level == 0 {
		opts.Level = max(rc.RequiredLevel, 1)
	}

	w := New(clock, opts)
	for id, n := range sc.Depot {
		w.depot[id] = n
	}
	for id, n := range sc.Inventory {
		w.held[id] = n
	}
	return w
}

// Bind exposes the simulation through the collaborator interfaces.
func (w *World) Bind() world.World {
	return world.World{
		Inventory: &Inventory{w: w},
		Storage:   &Depot{w: w},
		Input:     w,
		Progress:  w,
		UI:        w,
		Skill:     w,
		Notifier:  w,
	}
}

// SetDepot replaces the depot contents.
func (w *World) SetDepot(items map[string]int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.depot = maps.Clone(items)
	if w.depot == nil {
		w.depot = make(map[string]int)
	}
}

func (w *World) SetHeld(items map[string]int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.held = maps.Clone(items)
	if w.held == nil {
		w.held = make(map[string]int)
	}
}

// Held returns a copy of the held items after applying elapsed batch time.
func (w *World) Held() map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	return maps.Clone(w.held)
}

func (w *World) DepotContents() map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return maps.Clone(w.depot)
}

// Actions lists every mutating call in order, e.g. "withdraw_all:Logs".
func (w *World) Actions() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.actions)
}

// Messages lists every notification shown.
func (w *World) Messages() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.messages)
}

// FailNext makes the next call of op return err.
func (w *World) FailNext(op string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.faults[op] = err
}

// PanicNext makes the next call of op panic.
func (w *World) PanicNext(op string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.panics[op] = true
}

func (w *World) SetLevel(level int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opts.Level = level
}

// record logs op and applies any injected fault. Callers hold mu.
func (w *World) record(op, arg string) error {
	if w.panics[op] {
		delete(w.panics, op)
		panic(fmt.Sprintf("sim: injected panic in %s", op))
	}
	if err, ok := w.faults[op]; ok {
		delete(w.faults, op)
		return err
	}
	if arg != "" {
		op += ":" + arg
	}
	w.actions = append(w.actions, op)
	return nil
}

// advance applies the items a running batch and pending single actions have
// completed by now. Callers hold mu.
func (w *World) advance() {
	now := w.clock.Now()

	if b := w.batch; b != nil {
		due := int(now.Sub(b.started) / w.opts.ItemDuration)
		for b.made < due {
			if !w.hasInputs(b.inputs) {
				break
			}
			for _, id := range b.inputs {
				if !w.tools[id] {
					w.take(id, 1)
				}
			}
			b.made++
			w.progress += w.opts.ProgressPerItem
		}
		if !w.hasInputs(b.inputs) {
			w.batch = nil
		}
	}

	kept := w.singles[:0]
	for _, p := range w.singles {
		if !p.due.After(now) {
			w.progress += w.opts.ProgressPerItem
			continue
		}
		kept = append(kept, p)
	}
	w.singles = kept
}

func (w *World) hasInputs(ids []string) bool {
	for _, id := range ids {
		if w.held[id] <= 0 {
			return false
		}
	}
	return true
}

func (w *World) take(id string, n int) {
	w.held[id] -= n
	if w.held[id] <= 0 {
		delete(w.held, id)
	}
}

func (w *World) usedSlots() int {
	used := 0
	for id, n := range w.held {
		if n <= 0 {
			continue
		}
		if w.stackable[id] {
			used++
		} else {
			used += n
		}
	}
	return used
}

func (w *World) free() int {
	return max(model.InventoryCapacity-w.usedSlots(), 0)
}

// interrupt cancels anything in progress, as opening another interface does.
func (w *World) interrupt() {
	w.batch = nil
	w.prompt = false
	w.selected = ""
	w.pendingPair = nil
}

func (w *World) startBatch(inputs []string) {
	w.prompt = false
	w.pendingPair = nil
	w.batch = &batch{inputs: inputs, started: w.clock.Now()}
}

// Input

func (w *World) PressKey(r rune) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	if err := w.record("press", string(r)); err != nil {
		return err
	}
	if w.prompt && w.pendingPair != nil {
		w.startBatch(w.pendingPair)
	}
	return nil
}

// Progress

func (w *World) Current() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	return w.progress
}

func (w *World) IsAdvancing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	return w.batch != nil || len(w.singles) > 0
}

// UIProbe

func (w *World) FindElement(id string) (world.Element, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.prompt && id == w.opts.PromptWidget {
		return world.Element{ID: id, Text: promptText}, true
	}
	return world.Element{}, false
}

// Skill

func (w *World) Level() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opts.Level
}

// Notifier

func (w *World) ShowMessage(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, text)
}

package sim

import (
	"fmt"
	"slices"
)

// Inventory is the held-item view of a World.
type Inventory struct {
	w *World
}

func (i *Inventory) HasItem(id string) bool {
	return i.Count(id) > 0
}

func (i *Inventory) HasItemAmount(id string, n int) bool {
	return i.Count(id) >= n
}

func (i *Inventory) Count(id string) int {
	w := i.w
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	return w.held[id]
}

func (i *Inventory) FreeSlots() int {
	w := i.w
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	return w.free()
}

// Use selects id. Using a second item on the selection completes the
// pairing, which shows the make prompt or starts the batch.
func (i *Inventory) Use(id string) error {
	w := i.w
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()

	if err := w.record("use", id); err != nil {
		return err
	}
	if w.held[id] <= 0 {
		return fmt.Errorf("sim: %s is not held", id)
	}
	if w.selected == "" || w.selected == id {
		w.batch = nil
		w.selected = id
		return nil
	}

	pair := []string{w.selected, id}
	w.selected = ""
	if w.opts.Prompt {
		w.pendingPair = pair
		w.prompt = true
		return nil
	}
	w.startBatch(pair)
	return nil
}

// Interact consumes one held unit of id; its progress lands one item
// duration later.
func (i *Inventory) Interact(id, action string) error {
	w := i.w
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()

	if err := w.record("interact", action+" "+id); err != nil {
		return err
	}
	if w.held[id] <= 0 {
		return fmt.Errorf("sim: %s is not held", id)
	}
	w.take(id, 1)
	w.singles = append(w.singles, pending{due: w.clock.Now().Add(w.opts.ItemDuration)})
	return nil
}

// HeldIDs lists held identifiers in sorted order.
func (i *Inventory) HeldIDs() []string {
	w := i.w
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	ids := make([]string, 0, len(w.held))
	for id := range w.held {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

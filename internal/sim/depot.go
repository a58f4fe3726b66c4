package sim

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrDepotClosed is returned by depot operations issued while it is closed.
var ErrDepotClosed = errors.New("sim: depot is closed")

// Depot is the storage view of a World.
type Depot struct {
	w *World
}

func (d *Depot) IsOpen() bool {
	w := d.w
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// Open shows the depot and interrupts any batch in progress.
func (d *Depot) Open() error {
	w := d.w
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	if err := w.record("open", ""); err != nil {
		return err
	}
	w.interrupt()
	w.open = true
	return nil
}

func (d *Depot) Close() error {
	w := d.w
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.record("close", ""); err != nil {
		return err
	}
	w.open = false
	return nil
}

func (d *Depot) HasItem(id string) bool {
	w := d.w
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.depot[id] > 0
}

func (d *Depot) Count(id string) int {
	w := d.w
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.depot[id]
}

func (d *Depot) HasAllItems(ids ...string) bool {
	w := d.w
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range ids {
		if w.depot[id] <= 0 {
			return false
		}
	}
	return true
}

func (d *Depot) DepositAll() error {
	return d.deposit("deposit_all", nil)
}

func (d *Depot) DepositAllExcept(ids ...string) error {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	return d.deposit("deposit_all_except", keep)
}

func (d *Depot) deposit(op string, keep map[string]bool) error {
	w := d.w
	w.mu.Lock()
	defer w.mu.Unlock()

	arg := ""
	if len(keep) > 0 {
		ids := make([]string, 0, len(keep))
		for id := range keep {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		arg = strings.Join(ids, ",")
	}
	if err := w.record(op, arg); err != nil {
		return err
	}
	if !w.open {
		return ErrDepotClosed
	}
	for id, n := range w.held {
		if keep[id] {
			continue
		}
		w.depot[id] += n
		delete(w.held, id)
	}
	return nil
}

// WithdrawAll moves as many units as fit; a stackable item moves entirely.
func (d *Depot) WithdrawAll(id string) error {
	return d.withdraw("withdraw_all", id, -1)
}

// WithdrawItem moves one unit. A noted unit stacks with other noted units.
func (d *Depot) WithdrawItem(noted bool, id string) error {
	op := "withdraw_item"
	if noted {
		op = "withdraw_noted"
	}
	return d.withdraw(op, id, 1)
}

func (d *Depot) WithdrawAmount(id string, n int) error {
	if n <= 0 {
		return fmt.Errorf("sim: withdraw amount must be positive, got %d", n)
	}
	return d.withdraw("withdraw_"+strconv.Itoa(n), id, n)
}

func (d *Depot) withdraw(op, id string, n int) error {
	w := d.w
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.record(op, id); err != nil {
		return err
	}
	if !w.open {
		return ErrDepotClosed
	}
	stock := w.depot[id]
	if stock <= 0 {
		return fmt.Errorf("sim: depot has no %s", id)
	}

	if n < 0 {
		n = stock
	}
	n = min(n, stock)
	if !w.stackable[id] || w.held[id] == 0 {
		room := w.free()
		if w.stackable[id] {
			if room == 0 {
				n = 0
			}
		} else {
			n = min(n, room)
		}
	}
	if n == 0 {
		return fmt.Errorf("sim: no free slot for %s", id)
	}

	w.held[id] += n
	w.depot[id] -= n
	if w.depot[id] == 0 {
		delete(w.depot, id)
	}
	return nil
}

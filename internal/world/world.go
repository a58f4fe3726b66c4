// Package world declares the game-client collaborators a session drives.
// Implementations live outside the core; internal/sim provides an in-memory one.
package world

// Inventory is the held-item view.
type Inventory interface {
	HasItem(id string) bool
	HasItemAmount(id string, n int) bool
	Count(id string) int
	FreeSlots() int
	// Use selects an item for a "use X with Y" interaction.
	Use(id string) error
	// Interact triggers a named menu action on one held unit of id.
	Interact(id, action string) error
}

// Storage is the depot interface.
type Storage interface {
	IsOpen() bool
	Open() error
	Close() error
	HasItem(id string) bool
	HasAllItems(ids ...string) bool
	// Count is the number of units of id stored in the depot.
	Count(id string) int
	DepositAll() error
	DepositAllExcept(ids ...string) error
	WithdrawAll(id string) error
	WithdrawItem(noted bool, id string) error
	WithdrawAmount(id string, n int) error
}

type Input interface {
	PressKey(r rune) error
}

// Progress is the experience-like counter used to detect completed items.
type Progress interface {
	Current() int64
	IsAdvancing() bool
}

type Element struct {
	ID   string
	Text string
}

type UIProbe interface {
	FindElement(id string) (Element, bool)
}

// Skill reports the level checked against a recipe threshold.
type Skill interface {
	Level() int
}

// Notifier shows a user-visible, non-fatal message.
type Notifier interface {
	ShowMessage(text string)
}

// World bundles the collaborators of one session. Skill and Notifier are
// optional.
type World struct {
	Inventory Inventory
	Storage   Storage
	Input     Input
	Progress  Progress
	UI        UIProbe
	Skill     Skill
	Notifier  Notifier
}

// Notify forwards text to the notifier when one is attached.
func (w World) Notify(text string) {
	if w.Notifier != nil {
		w.Notifier.ShowMessage(text)
	}
}

// Complete reports whether every mandatory collaborator is set.
func (w World) Complete() bool {
	return w.Inventory != nil && w.Storage != nil && w.Input != nil && w.Progress != nil && w.UI != nil
}

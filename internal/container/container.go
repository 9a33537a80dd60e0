package container

import (
	"errors"

	"loot-stix/internal/models"
)

// ErrLockedOpen is returned when a lock toggle would leave a container
// both locked and open.
var ErrLockedOpen = errors.New("container cannot be locked while open")

// State is the combined loot-token state. Locked overlays the
// open/closed pair; a token is never locked and open at once.
type State int

const (
	SingleItem State = iota
	Closed
	Open
	Locked
)

func (s State) String() string {
	switch s {
	case SingleItem:
		return "single-item"
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// StateOf derives the current state from a token's loot flags.
func StateOf(f models.LootFlags) State {
	if f.ItemType != models.ItemTypeContainer {
		return SingleItem
	}
	if f.IsLocked {
		return Locked
	}
	if f.IsOpen {
		return Open
	}
	return Closed
}

// Action is what an interaction resolved to.
type Action int

const (
	// ActionNone leaves the token untouched (open container that
	// cannot be closed).
	ActionNone Action = iota
	// ActionDenied is a refused interaction on a locked container;
	// callers play lock-denied feedback, nothing changes.
	ActionDenied
	// ActionOpen transitions closed -> open and releases the loot.
	ActionOpen
	// ActionClose transitions open -> closed; no loot moves.
	ActionClose
	// ActionPickup transfers a single-item token and deletes it.
	ActionPickup
)

// Result of an interaction: the resolved action, the flags after the
// transition, and whether loot transfers / the token is removed.
type Result struct {
	Action      Action
	Flags       models.LootFlags
	Transfer    bool
	DeleteToken bool
}

// Interact applies one interaction to the given flags. It is pure: the
// caller persists Result.Flags and performs the transfer/removal.
func Interact(f models.LootFlags) Result {
	switch StateOf(f) {
	case Locked:
		return Result{Action: ActionDenied, Flags: f}
	case Open:
		if !f.CanClose {
			return Result{Action: ActionNone, Flags: f}
		}
		f.IsOpen = false
		return Result{Action: ActionClose, Flags: f}
	case Closed:
		f.IsOpen = true
		return Result{Action: ActionOpen, Flags: f, Transfer: true}
	default:
		return Result{Action: ActionPickup, Flags: f, Transfer: true, DeleteToken: true}
	}
}

// SetLocked toggles the lock flag. Locking an open container is
// rejected so the locked+open state stays unreachable.
func SetLocked(f models.LootFlags, locked bool) (models.LootFlags, error) {
	if locked && f.IsOpen {
		return f, ErrLockedOpen
	}
	f.IsLocked = locked
	return f, nil
}

// Images holds the deployment-default container images.
type Images struct {
	Open   string
	Closed string
}

// ImageFor picks the token image matching the flag state, falling back
// to the configured defaults and finally the item's original image.
func ImageFor(f models.LootFlags, defaults Images) string {
	var img string
	if f.IsOpen {
		img = f.ImageOpenPath
		if img == "" {
			img = defaults.Open
		}
	} else {
		img = f.ImageClosedPath
		if img == "" {
			img = defaults.Closed
		}
	}
	if img == "" {
		img = f.ImageOriginal
	}
	return img
}

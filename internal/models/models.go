package models

import "encoding/json"

// FlagNamespace is the two-level key under which loot state is stored
// on a token's flag bag.
const FlagNamespace = "loot-stix"

type ItemType string

const (
	ItemTypeItem      ItemType = "item"
	ItemTypeContainer ItemType = "container"
)

// CurrencyCodes lists the supported denominations in display order.
var CurrencyCodes = []string{"pp", "gp", "ep", "sp", "cp"}

// Currency maps a denomination code to a non-negative amount.
type Currency map[string]int

// Add returns a new Currency holding the sum of c and other.
func (c Currency) Add(other Currency) Currency {
	sum := Currency{}
	for code, amount := range c {
		sum[code] = amount
	}
	for code, amount := range other {
		sum[code] += amount
	}
	return sum
}

// Zeroed returns a Currency with every code present in c set to zero.
func (c Currency) Zeroed() Currency {
	z := Currency{}
	for code := range c {
		z[code] = 0
	}
	return z
}

// IsEmpty reports whether no code carries a positive amount.
func (c Currency) IsEmpty() bool {
	for _, amount := range c {
		if amount > 0 {
			return false
		}
	}
	return true
}

type User struct {
	ID           string
	Username     string
	PasswordHash string
	IsGM         bool
}

type Actor struct {
	ID       string
	Name     string
	Currency Currency
}

// SourceItem is a catalog entry items are dropped from. Collection is
// empty for world items and names a compendium pack otherwise.
type SourceItem struct {
	ID         string
	Collection string
	Name       string
	Img        string
	Data       json.RawMessage
}

// OwnedItem is an item in an actor's inventory. Data is the snapshot
// captured when the item was dropped, so the copy stays independent of
// later catalog changes.
type OwnedItem struct {
	ID      string
	ActorID string
	Name    string
	Img     string
	Data    json.RawMessage
}

// LootItem references a source item held by a loot token, with the
// snapshot captured at drop/add time.
type LootItem struct {
	SourceID   string          `json:"id"`
	Collection string          `json:"pack,omitempty"`
	Count      int             `json:"count"`
	Name       string          `json:"name,omitempty"`
	Img        string          `json:"img,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// LootFlags is the loot state attached to a token under FlagNamespace.
type LootFlags struct {
	ItemType        ItemType   `json:"itemType"`
	Items           []LootItem `json:"itemData,omitempty"`
	Currency        Currency   `json:"currency,omitempty"`
	IsOpen          bool       `json:"isOpen,omitempty"`
	CanClose        bool       `json:"canClose,omitempty"`
	IsLocked        bool       `json:"isLocked,omitempty"`
	ImageOpenPath   string     `json:"imageContainerOpenPath,omitempty"`
	ImageClosedPath string     `json:"imageContainerClosedPath,omitempty"`
	ImageOriginal   string     `json:"imageOriginalPath,omitempty"`
}

type Token struct {
	ID      string
	SceneID string
	Name    string
	Img     string
	X       float64
	Y       float64
	Hidden  bool
	ActorID string
}

// TokenUpdate carries a partial token mutation; nil fields are left
// untouched.
type TokenUpdate struct {
	Img   *string    `json:"img,omitempty"`
	Flags *LootFlags `json:"flags,omitempty"`
}

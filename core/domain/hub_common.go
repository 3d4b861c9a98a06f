// Package domain contains the household data model shared by the server
// and the device-side sync core.
package domain

import (
	"time"
)

// EntityType identifies one synchronized household collection.
type EntityType string

const (
	EntityShoppingList EntityType = "shopping_list"
	EntityListItem     EntityType = "list_item"
	EntityRecipe       EntityType = "recipe"
	EntityChore        EntityType = "chore"
)

// SyncedEntityTypes lists every type the cache and sync layers handle.
var SyncedEntityTypes = []EntityType{
	EntityShoppingList,
	EntityListItem,
	EntityRecipe,
	EntityChore,
}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityShoppingList, EntityListItem, EntityRecipe, EntityChore:
		return true
	}
	return false
}

// AccessMode separates guest and authenticated cache namespaces on the device.
type AccessMode string

const (
	AccessGuest         AccessMode = "guest"
	AccessAuthenticated AccessMode = "authenticated"
)

// Timestamps carries the server-assigned lifecycle columns every entity owns.
// UpdatedAt is authoritative for last-write-wins comparisons; DeletedAt is a
// tombstone so deletions propagate to other readers instead of vanishing.
type Timestamps struct {
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// IsDeleted returns true if the entity carries a tombstone.
func (t Timestamps) IsDeleted() bool {
	return t.DeletedAt != nil
}

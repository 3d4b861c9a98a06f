package domain

import "time"

// =============================================================================
// Sync Batch (wire shape)
// =============================================================================
//
// One submission groups every queued upsert by entity type. Nested items are
// flattened server-side into independent operations: a child failure never
// rolls back its parent, and a list landing without all of its items is an
// accepted trade-off (no cross-entity transaction by design).

// SyncBatch is the logical shape of one sync submission. Items usually ride
// nested inside their list; the top-level Items bucket carries mutations whose
// parent list is already synced and therefore absent from this batch.
type SyncBatch struct {
	RequestID string         `json:"requestId"`
	Lists     []ListUpsert   `json:"lists,omitempty"`
	Items     []ItemUpsert   `json:"items,omitempty"`
	Recipes   []RecipeUpsert `json:"recipes,omitempty"`
	Chores    []ChoreUpsert  `json:"chores,omitempty"`
}

// ListUpsert carries one shopping list mutation plus its nested items.
type ListUpsert struct {
	ID            string       `json:"id"`
	OperationID   string       `json:"operationId"`
	ClientLocalID string       `json:"clientLocalId,omitempty"`
	Name          string       `json:"name"`
	Color         string       `json:"color,omitempty"`
	DeletedAt     *time.Time   `json:"deletedAt,omitempty"`
	Items         []ItemUpsert `json:"items,omitempty"`
}

// ItemUpsert carries one list item mutation. ListID is required for
// top-level items and ignored for items nested inside a ListUpsert.
type ItemUpsert struct {
	ID            string     `json:"id"`
	OperationID   string     `json:"operationId"`
	ClientLocalID string     `json:"clientLocalId,omitempty"`
	ListID        string     `json:"listId,omitempty"`
	Name          string     `json:"name"`
	Quantity      float64    `json:"quantity,omitempty"`
	Unit          string     `json:"unit,omitempty"`
	Category      string     `json:"category,omitempty"`
	IsChecked     bool       `json:"isChecked"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty"`
}

// RecipeUpsert carries one recipe mutation.
type RecipeUpsert struct {
	ID            string     `json:"id"`
	OperationID   string     `json:"operationId"`
	ClientLocalID string     `json:"clientLocalId,omitempty"`
	Title         string     `json:"title"`
	Ingredients   []string   `json:"ingredients,omitempty"`
	Instructions  string     `json:"instructions,omitempty"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty"`
}

// ChoreUpsert carries one chore mutation.
type ChoreUpsert struct {
	ID            string     `json:"id"`
	OperationID   string     `json:"operationId"`
	ClientLocalID string     `json:"clientLocalId,omitempty"`
	Title         string     `json:"title"`
	AssigneeID    string     `json:"assigneeId,omitempty"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	IsCompleted   bool       `json:"isCompleted"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty"`
}

// OperationCount returns the number of flattened operations in the batch,
// nested items included.
func (b *SyncBatch) OperationCount() int {
	n := len(b.Items) + len(b.Recipes) + len(b.Chores)
	for _, l := range b.Lists {
		n += 1 + len(l.Items)
	}
	return n
}

// IsEmpty reports whether the batch carries no operations.
func (b *SyncBatch) IsEmpty() bool {
	return b.OperationCount() == 0
}

package out

import (
	"context"

	"kitchenhub_server/core/domain"
)

// =============================================================================
// Entity Repositories - authoritative server store
// =============================================================================
//
// Upserts are last-write-wins: the store assigns updated_at and that value is
// authoritative for freshness comparisons. Tombstoned rows stay readable so
// deletions propagate to other devices.

type ListRepository interface {
	UpsertList(ctx context.Context, list *domain.ShoppingList) error
	UpsertItem(ctx context.Context, item *domain.ListItem) error

	// Snapshot returns every list for the owner, tombstones included.
	Snapshot(ctx context.Context, ownerID string) ([]*domain.ShoppingList, error)
	ItemSnapshot(ctx context.Context, ownerID string) ([]*domain.ListItem, error)
}

type RecipeRepository interface {
	Upsert(ctx context.Context, recipe *domain.Recipe) error
	Snapshot(ctx context.Context, ownerID string) ([]*domain.Recipe, error)
}

type ChoreRepository interface {
	Upsert(ctx context.Context, chore *domain.Chore) error
	Snapshot(ctx context.Context, ownerID string) ([]*domain.Chore, error)
}

package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kitchenhub_server/core/domain"
	"kitchenhub_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// ListRepository implements out.ListRepository
type ListRepository struct {
	db *sqlx.DB
}

// NewListRepository creates a new ListRepository
func NewListRepository(db *sqlx.DB) out.ListRepository {
	return &ListRepository{db: db}
}

// =============================================================================
// Shopping Lists
// =============================================================================

// UpsertList writes one list with a server-assigned updated_at. Deletions are
// tombstones so other devices observe them in snapshots.
func (r *ListRepository) UpsertList(ctx context.Context, list *domain.ShoppingList) error {
	query := `
		INSERT INTO shopping_lists (id, owner_id, name, color, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			color = EXCLUDED.color,
			deleted_at = EXCLUDED.deleted_at,
			updated_at = NOW()
		WHERE shopping_lists.owner_id = EXCLUDED.owner_id
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		list.ID, list.OwnerID, list.Name, nullString(list.Color), list.DeletedAt,
	).Scan(&list.CreatedAt, &list.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			// Conflicting id belongs to another owner.
			return ErrInvalidInput
		}
		return fmt.Errorf("upsert list: %w", err)
	}

	return nil
}

func (r *ListRepository) Snapshot(ctx context.Context, ownerID string) ([]*domain.ShoppingList, error) {
	query := `
		SELECT id, owner_id, name, color, created_at, updated_at, deleted_at
		FROM shopping_lists
		WHERE owner_id = $1
		ORDER BY created_at`

	var rows []listRow
	if err := r.db.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, fmt.Errorf("list snapshot: %w", err)
	}

	lists := make([]*domain.ShoppingList, len(rows))
	for i, row := range rows {
		lists[i] = row.toDomain()
	}
	return lists, nil
}

// =============================================================================
// List Items
// =============================================================================

func (r *ListRepository) UpsertItem(ctx context.Context, item *domain.ListItem) error {
	query := `
		INSERT INTO list_items (
			id, owner_id, list_id, name, quantity, unit, category,
			is_checked, created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), $9)
		ON CONFLICT (id) DO UPDATE SET
			list_id = EXCLUDED.list_id,
			name = EXCLUDED.name,
			quantity = EXCLUDED.quantity,
			unit = EXCLUDED.unit,
			category = EXCLUDED.category,
			is_checked = EXCLUDED.is_checked,
			deleted_at = EXCLUDED.deleted_at,
			updated_at = NOW()
		WHERE list_items.owner_id = EXCLUDED.owner_id
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		item.ID, item.OwnerID, item.ListID, item.Name, item.Quantity,
		nullString(item.Unit), nullString(item.Category), item.IsChecked,
		item.DeletedAt,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrInvalidInput
		}
		return fmt.Errorf("upsert item: %w", err)
	}

	return nil
}

func (r *ListRepository) ItemSnapshot(ctx context.Context, ownerID string) ([]*domain.ListItem, error) {
	query := `
		SELECT id, owner_id, list_id, name, quantity, unit, category,
		       is_checked, created_at, updated_at, deleted_at
		FROM list_items
		WHERE owner_id = $1
		ORDER BY list_id, created_at`

	var rows []itemRow
	if err := r.db.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, fmt.Errorf("item snapshot: %w", err)
	}

	items := make([]*domain.ListItem, len(rows))
	for i, row := range rows {
		items[i] = row.toDomain()
	}
	return items, nil
}

// =============================================================================
// Row Types
// =============================================================================

type listRow struct {
	ID        string         `db:"id"`
	OwnerID   string         `db:"owner_id"`
	Name      string         `db:"name"`
	Color     sql.NullString `db:"color"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
	DeletedAt sql.NullTime   `db:"deleted_at"`
}

func (r *listRow) toDomain() *domain.ShoppingList {
	list := &domain.ShoppingList{
		ID:      r.ID,
		OwnerID: r.OwnerID,
		Name:    r.Name,
		Color:   r.Color.String,
	}
	list.CreatedAt = r.CreatedAt
	list.UpdatedAt = r.UpdatedAt
	if r.DeletedAt.Valid {
		list.DeletedAt = &r.DeletedAt.Time
	}
	return list
}

type itemRow struct {
	ID        string         `db:"id"`
	OwnerID   string         `db:"owner_id"`
	ListID    string         `db:"list_id"`
	Name      string         `db:"name"`
	Quantity  float64        `db:"quantity"`
	Unit      sql.NullString `db:"unit"`
	Category  sql.NullString `db:"category"`
	IsChecked bool           `db:"is_checked"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
	DeletedAt sql.NullTime   `db:"deleted_at"`
}

func (r *itemRow) toDomain() *domain.ListItem {
	item := &domain.ListItem{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		ListID:    r.ListID,
		Name:      r.Name,
		Quantity:  r.Quantity,
		Unit:      r.Unit.String,
		Category:  r.Category.String,
		IsChecked: r.IsChecked,
	}
	item.CreatedAt = r.CreatedAt
	item.UpdatedAt = r.UpdatedAt
	if r.DeletedAt.Valid {
		item.DeletedAt = &r.DeletedAt.Time
	}
	return item
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

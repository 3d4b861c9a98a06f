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

// ChoreRepository implements out.ChoreRepository
type ChoreRepository struct {
	db *sqlx.DB
}

// NewChoreRepository creates a new ChoreRepository
func NewChoreRepository(db *sqlx.DB) out.ChoreRepository {
	return &ChoreRepository{db: db}
}

func (r *ChoreRepository) Upsert(ctx context.Context, chore *domain.Chore) error {
	query := `
		INSERT INTO chores (
			id, owner_id, title, assignee_id, due_date, is_completed,
			created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			assignee_id = EXCLUDED.assignee_id,
			due_date = EXCLUDED.due_date,
			is_completed = EXCLUDED.is_completed,
			deleted_at = EXCLUDED.deleted_at,
			updated_at = NOW()
		WHERE chores.owner_id = EXCLUDED.owner_id
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		chore.ID, chore.OwnerID, chore.Title, nullString(chore.AssigneeID),
		chore.DueDate, chore.IsCompleted, chore.DeletedAt,
	).Scan(&chore.CreatedAt, &chore.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrInvalidInput
		}
		return fmt.Errorf("upsert chore: %w", err)
	}

	return nil
}

func (r *ChoreRepository) Snapshot(ctx context.Context, ownerID string) ([]*domain.Chore, error) {
	query := `
		SELECT id, owner_id, title, assignee_id, due_date, is_completed,
		       created_at, updated_at, deleted_at
		FROM chores
		WHERE owner_id = $1
		ORDER BY due_date NULLS LAST, created_at`

	var rows []choreRow
	if err := r.db.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, fmt.Errorf("chore snapshot: %w", err)
	}

	chores := make([]*domain.Chore, len(rows))
	for i, row := range rows {
		chores[i] = row.toDomain()
	}
	return chores, nil
}

// =============================================================================
// Row Types
// =============================================================================

type choreRow struct {
	ID          string         `db:"id"`
	OwnerID     string         `db:"owner_id"`
	Title       string         `db:"title"`
	AssigneeID  sql.NullString `db:"assignee_id"`
	DueDate     sql.NullTime   `db:"due_date"`
	IsCompleted bool           `db:"is_completed"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
	DeletedAt   sql.NullTime   `db:"deleted_at"`
}

func (r *choreRow) toDomain() *domain.Chore {
	chore := &domain.Chore{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		AssigneeID:  r.AssigneeID.String,
		IsCompleted: r.IsCompleted,
	}
	if r.DueDate.Valid {
		chore.DueDate = &r.DueDate.Time
	}
	chore.CreatedAt = r.CreatedAt
	chore.UpdatedAt = r.UpdatedAt
	if r.DeletedAt.Valid {
		chore.DeletedAt = &r.DeletedAt.Time
	}
	return chore
}

package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kitchenhub_server/core/domain"
	"kitchenhub_server/core/port/out"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// RecipeRepository implements out.RecipeRepository
type RecipeRepository struct {
	db *sqlx.DB
}

// NewRecipeRepository creates a new RecipeRepository
func NewRecipeRepository(db *sqlx.DB) out.RecipeRepository {
	return &RecipeRepository{db: db}
}

func (r *RecipeRepository) Upsert(ctx context.Context, recipe *domain.Recipe) error {
	query := `
		INSERT INTO recipes (
			id, owner_id, title, ingredients, instructions,
			created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			ingredients = EXCLUDED.ingredients,
			instructions = EXCLUDED.instructions,
			deleted_at = EXCLUDED.deleted_at,
			updated_at = NOW()
		WHERE recipes.owner_id = EXCLUDED.owner_id
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		recipe.ID, recipe.OwnerID, recipe.Title,
		pq.Array(recipe.Ingredients), nullString(recipe.Instructions),
		recipe.DeletedAt,
	).Scan(&recipe.CreatedAt, &recipe.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrInvalidInput
		}
		return fmt.Errorf("upsert recipe: %w", err)
	}

	return nil
}

func (r *RecipeRepository) Snapshot(ctx context.Context, ownerID string) ([]*domain.Recipe, error) {
	query := `
		SELECT id, owner_id, title, ingredients, instructions,
		       created_at, updated_at, deleted_at
		FROM recipes
		WHERE owner_id = $1
		ORDER BY created_at`

	var rows []recipeRow
	if err := r.db.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, fmt.Errorf("recipe snapshot: %w", err)
	}

	recipes := make([]*domain.Recipe, len(rows))
	for i, row := range rows {
		recipes[i] = row.toDomain()
	}
	return recipes, nil
}

// =============================================================================
// Row Types
// =============================================================================

type recipeRow struct {
	ID           string         `db:"id"`
	OwnerID      string         `db:"owner_id"`
	Title        string         `db:"title"`
	Ingredients  pq.StringArray `db:"ingredients"`
	Instructions sql.NullString `db:"instructions"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	DeletedAt    sql.NullTime   `db:"deleted_at"`
}

func (r *recipeRow) toDomain() *domain.Recipe {
	recipe := &domain.Recipe{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Title:        r.Title,
		Ingredients:  r.Ingredients,
		Instructions: r.Instructions.String,
	}
	recipe.CreatedAt = r.CreatedAt
	recipe.UpdatedAt = r.UpdatedAt
	if r.DeletedAt.Valid {
		recipe.DeletedAt = &r.DeletedAt.Time
	}
	return recipe
}

package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied at startup. Every statement is idempotent so repeated
// boots are safe.
//
// The UNIQUE constraint on idempotency_keys(owner_id, operation_id) is the
// arbitration point for concurrent duplicate submissions; nothing else on the
// sync path takes locks.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		owner_id     TEXT NOT NULL,
		operation_id TEXT NOT NULL,
		entity_type  TEXT NOT NULL,
		entity_id    TEXT NOT NULL,
		request_id   TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL DEFAULT 'PENDING',
		processed_at TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (owner_id, operation_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_idempotency_pending
		ON idempotency_keys (created_at) WHERE status = 'PENDING'`,

	`CREATE TABLE IF NOT EXISTS shopping_lists (
		id         TEXT PRIMARY KEY,
		owner_id   TEXT NOT NULL,
		name       TEXT NOT NULL,
		color      TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_shopping_lists_owner ON shopping_lists (owner_id)`,

	`CREATE TABLE IF NOT EXISTS list_items (
		id         TEXT PRIMARY KEY,
		owner_id   TEXT NOT NULL,
		list_id    TEXT NOT NULL,
		name       TEXT NOT NULL,
		quantity   DOUBLE PRECISION NOT NULL DEFAULT 0,
		unit       TEXT,
		category   TEXT,
		is_checked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_list_items_owner ON list_items (owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_list_items_list ON list_items (list_id)`,

	`CREATE TABLE IF NOT EXISTS recipes (
		id           TEXT PRIMARY KEY,
		owner_id     TEXT NOT NULL,
		title        TEXT NOT NULL,
		ingredients  TEXT[],
		instructions TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at   TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recipes_owner ON recipes (owner_id)`,

	`CREATE TABLE IF NOT EXISTS chores (
		id           TEXT PRIMARY KEY,
		owner_id     TEXT NOT NULL,
		title        TEXT NOT NULL,
		assignee_id  TEXT,
		due_date     TIMESTAMPTZ,
		is_completed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at   TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chores_owner ON chores (owner_id)`,
}

// EnsureSchema applies the schema statements in order.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

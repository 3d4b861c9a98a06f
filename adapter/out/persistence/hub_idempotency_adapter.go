package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"kitchenhub_server/core/domain"
	"kitchenhub_server/core/port/out"
	"kitchenhub_server/pkg/apperr"

	"github.com/jmoiron/sqlx"
)

// IdempotencyLedger implements out.IdempotencyLedger
type IdempotencyLedger struct {
	db *sqlx.DB
}

// NewIdempotencyLedger creates a new IdempotencyLedger
func NewIdempotencyLedger(db *sqlx.DB) out.IdempotencyLedger {
	return &IdempotencyLedger{db: db}
}

// =============================================================================
// Ledger Operations
// =============================================================================

// Insert creates a PENDING record. The UNIQUE(owner_id, operation_id)
// constraint arbitrates concurrent duplicates: the loser gets
// out.ErrDuplicateOperation.
func (r *IdempotencyLedger) Insert(ctx context.Context, rec *domain.IdempotencyRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.Status == "" {
		rec.Status = domain.IdempotencyPending
	}

	query := `
		INSERT INTO idempotency_keys (
			owner_id, operation_id, entity_type, entity_id,
			request_id, status, processed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		rec.OwnerID, rec.OperationID, rec.EntityType, rec.EntityID,
		rec.RequestID, rec.Status, rec.ProcessedAt, rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Wrapped so callers can match the sentinel while the code
			// travels with the error for logging and responses.
			return apperr.Wrap(out.ErrDuplicateOperation,
				apperr.CodeDuplicateOperation, "operation already recorded", http.StatusConflict)
		}
		return fmt.Errorf("insert idempotency record: %w", err)
	}

	return nil
}

func (r *IdempotencyLedger) MarkCompleted(ctx context.Context, ownerID, operationID string, processedAt time.Time) error {
	query := `
		UPDATE idempotency_keys
		SET status = $3, processed_at = $4
		WHERE owner_id = $1 AND operation_id = $2`

	res, err := r.db.ExecContext(ctx, query, ownerID, operationID, domain.IdempotencyCompleted, processedAt)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *IdempotencyLedger) Delete(ctx context.Context, ownerID, operationID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM idempotency_keys WHERE owner_id = $1 AND operation_id = $2",
		ownerID, operationID)
	if err != nil {
		return fmt.Errorf("delete idempotency record: %w", err)
	}
	return nil
}

func (r *IdempotencyLedger) Get(ctx context.Context, ownerID, operationID string) (*domain.IdempotencyRecord, error) {
	query := `
		SELECT owner_id, operation_id, entity_type, entity_id,
		       request_id, status, processed_at, created_at
		FROM idempotency_keys
		WHERE owner_id = $1 AND operation_id = $2`

	var row idempotencyRow
	if err := r.db.GetContext(ctx, &row, query, ownerID, operationID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}

	return row.toDomain(), nil
}

// DeletePendingBefore reclaims PENDING records left behind by crashed
// processors so their operationIds become retryable again.
func (r *IdempotencyLedger) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM idempotency_keys WHERE status = $1 AND created_at < $2",
		domain.IdempotencyPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete pending before: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// =============================================================================
// Row Types
// =============================================================================

type idempotencyRow struct {
	OwnerID     string       `db:"owner_id"`
	OperationID string       `db:"operation_id"`
	EntityType  string       `db:"entity_type"`
	EntityID    string       `db:"entity_id"`
	RequestID   string       `db:"request_id"`
	Status      string       `db:"status"`
	ProcessedAt sql.NullTime `db:"processed_at"`
	CreatedAt   time.Time    `db:"created_at"`
}

func (r *idempotencyRow) toDomain() *domain.IdempotencyRecord {
	rec := &domain.IdempotencyRecord{
		OwnerID:     r.OwnerID,
		OperationID: r.OperationID,
		EntityType:  domain.EntityType(r.EntityType),
		EntityID:    r.EntityID,
		RequestID:   r.RequestID,
		Status:      domain.IdempotencyStatus(r.Status),
		CreatedAt:   r.CreatedAt,
	}

	if r.ProcessedAt.Valid {
		rec.ProcessedAt = &r.ProcessedAt.Time
	}

	return rec
}

package out

import (
	"context"
	"errors"
	"time"

	"kitchenhub_server/core/domain"
)

// ErrDuplicateOperation is returned by Insert when the (ownerId, operationId)
// pair already owns a ledger record. This is the expected duplicate path, not
// a failure: the caller treats it as an idempotent skip.
var ErrDuplicateOperation = errors.New("operation already recorded")

// =============================================================================
// IdempotencyLedger - durable at-most-once record per mutation
// =============================================================================

type IdempotencyLedger interface {
	// Insert creates a PENDING record. The storage-level unique constraint on
	// (owner_id, operation_id) is the sole arbitration between concurrent
	// duplicates; losing the race returns ErrDuplicateOperation.
	Insert(ctx context.Context, rec *domain.IdempotencyRecord) error

	// MarkCompleted transitions the record to COMPLETED with its processing
	// timestamp.
	MarkCompleted(ctx context.Context, ownerID, operationID string, processedAt time.Time) error

	// Delete removes the record so a future retry can re-acquire ownership.
	Delete(ctx context.Context, ownerID, operationID string) error

	// Get returns the record or nil when absent.
	Get(ctx context.Context, ownerID, operationID string) (*domain.IdempotencyRecord, error)

	// DeletePendingBefore reclaims PENDING records older than cutoff. Such
	// records can only belong to crashed owners and would otherwise block
	// their operationIds forever.
	DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

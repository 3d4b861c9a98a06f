// Package sync implements the server-side reconciliation engine: the
// idempotent operation processor and the batch aggregator.
package sync

import (
	"context"
	"errors"
	"time"

	"kitchenhub_server/core/domain"
	"kitchenhub_server/core/port/out"
	"kitchenhub_server/pkg/logger"
)

// =============================================================================
// Processor - insert-first idempotent mutation wrapper
// =============================================================================
//
// 하나의 뮤테이션을 (ownerId, operationId) 기준 멱등 처리로 감쌉니다.
// The unique-constraint insert is atomic at the storage layer, so no lock or
// transaction arbitrates between concurrent duplicate submissions: one insert
// wins ownership and runs the mutation, every other attempt observes the
// constraint violation and reports success without side effects.

// Processor wraps one entity mutation with insert-first idempotency checking.
type Processor struct {
	ledger out.IdempotencyLedger
	now    func() time.Time
}

// NewProcessor creates a Processor backed by the given ledger.
func NewProcessor(ledger out.IdempotencyLedger) *Processor {
	return &Processor{
		ledger: ledger,
		now:    time.Now,
	}
}

// Process runs mutate at most once for the operation identified by op.
//
// Returns nil on success and on the duplicate path. A mutate failure deletes
// the ledger record so the operationId stays retryable, then propagates the
// failure; sibling operations in the same batch are unaffected.
func (p *Processor) Process(ctx context.Context, ownerID string, op domain.OperationMeta, mutate func(context.Context) error) error {
	rec := &domain.IdempotencyRecord{
		OwnerID:     ownerID,
		OperationID: op.OperationID,
		EntityType:  op.EntityType,
		EntityID:    op.EntityID,
		RequestID:   op.RequestID,
		Status:      domain.IdempotencyPending,
	}

	err := p.ledger.Insert(ctx, rec)
	if errors.Is(err, out.ErrDuplicateOperation) {
		// Another attempt owns this operation, in flight or completed.
		// Idempotent skip: success without calling mutate.
		logger.WithFields(map[string]any{
			"owner_id":     ownerID,
			"operation_id": op.OperationID,
		}).Debug("[Processor] Duplicate operation, skipping mutation")
		return nil
	}
	if err != nil {
		// Storage error unrelated to uniqueness: fatal for this entity.
		return err
	}

	// This call owns the operation.
	if merr := mutate(ctx); merr != nil {
		// Release ownership so a future retry can re-acquire it. The record
		// must never stay PENDING after the owning attempt resolves.
		if derr := p.ledger.Delete(ctx, ownerID, op.OperationID); derr != nil {
			logger.WithError(derr).WithField("operation_id", op.OperationID).
				Error("[Processor] Failed to release ledger record after mutation failure")
		}
		return merr
	}

	if cerr := p.ledger.MarkCompleted(ctx, ownerID, op.OperationID, p.now()); cerr != nil {
		// The mutation is already durable, so this is still a success. The
		// record stays PENDING; a retry observes the duplicate path and the
		// sweeper reclaims it if no retry arrives.
		logger.WithError(cerr).WithField("operation_id", op.OperationID).
			Warn("[Processor] Mutation applied but ledger completion failed")
	}

	return nil
}

package domain

import "time"

// =============================================================================
// Idempotency Ledger
// =============================================================================
//
// The ledger row is the only concurrency-control mechanism on the sync path.
// A unique constraint on (owner_id, operation_id) arbitrates between
// concurrent duplicate submissions: exactly one insert wins ownership.

// IdempotencyStatus is the lifecycle of one ledger record.
type IdempotencyStatus string

const (
	IdempotencyPending   IdempotencyStatus = "PENDING"
	IdempotencyCompleted IdempotencyStatus = "COMPLETED"
)

// IdempotencyRecord tracks one in-flight or completed mutation attempt.
// A record is created PENDING at the start of processing and either moves to
// COMPLETED or is deleted; it is never left PENDING after the owning attempt
// resolves. Orphans from crashed owners are reclaimed by the TTL sweeper.
type IdempotencyRecord struct {
	OwnerID     string            `json:"ownerId"`
	OperationID string            `json:"operationId"`
	EntityType  EntityType        `json:"entityType"`
	EntityID    string            `json:"entityId"`
	RequestID   string            `json:"requestId"`
	Status      IdempotencyStatus `json:"status"`
	ProcessedAt *time.Time        `json:"processedAt,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

package domain

// =============================================================================
// Sync Operations
// =============================================================================
//
// An Operation is one mutation intent created on the device at the moment the
// user acts. Its operationId is assigned once, never changes, and is the sole
// handle for idempotent replay: resubmitting a batch with the same ids is
// always safe.

// Operation is one queued create/update/delete against one entity.
type Operation struct {
	OperationID   string     `json:"operationId"`
	EntityType    EntityType `json:"entityType"`
	EntityID      string     `json:"entityId"`
	ClientLocalID string     `json:"clientLocalId,omitempty"`
	Payload       []byte     `json:"payload,omitempty"`
	EnqueuedAtUms int64      `json:"enqueuedAt"` // unix millis, device clock
}

// OperationMeta is the identifying slice of an Operation the processor needs.
type OperationMeta struct {
	OperationID   string
	EntityType    EntityType
	EntityID      string
	ClientLocalID string
	RequestID     string
}

// SyncStatus is the overall outcome of one submitted batch.
type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusFailed  SyncStatus = "failed"
)

// SucceededOperation records one durably applied operation.
type SucceededOperation struct {
	OperationID   string     `json:"operationId"`
	EntityType    EntityType `json:"entityType"`
	EntityID      string     `json:"id"`
	ClientLocalID string     `json:"clientLocalId,omitempty"`
}

// ConflictOperation records one operation whose mutation was rejected.
// The operationId stays retryable: its ledger record was deleted.
type ConflictOperation struct {
	OperationID string     `json:"operationId"`
	EntityType  EntityType `json:"type"`
	EntityID    string     `json:"id"`
	Reason      string     `json:"reason"`
}

// SyncResult is computed once per batch and never persisted.
type SyncResult struct {
	Status    SyncStatus           `json:"status"`
	Succeeded []SucceededOperation `json:"succeeded,omitempty"`
	Conflicts []ConflictOperation  `json:"conflicts"`
}

// ComputeStatus derives the batch status from the two outcome buckets.
func ComputeStatus(succeeded, conflicts int) SyncStatus {
	switch {
	case conflicts == 0:
		return SyncStatusSynced
	case succeeded == 0:
		return SyncStatusFailed
	default:
		return SyncStatusPartial
	}
}

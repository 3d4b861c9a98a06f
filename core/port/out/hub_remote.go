package out

import (
	"context"
	"encoding/json"
	"errors"

	"kitchenhub_server/core/domain"
)

// ErrUnreachable is the distinguished outcome for network loss or a timed-out
// call. The read coordinator falls back to cached data on it; the outbox
// retains its queue and retries on the next trigger.
var ErrUnreachable = errors.New("remote unreachable")

// =============================================================================
// RemoteAPI - device-side view of the sync server
// =============================================================================

type RemoteAPI interface {
	// FetchSnapshot returns the authoritative records for one entity type,
	// tombstones included.
	FetchSnapshot(ctx context.Context, t domain.EntityType) ([]json.RawMessage, error)

	// SubmitBatch submits queued operations. A client that loses the
	// connection mid-request must treat the outcome as unknown and may
	// safely resubmit the same batch with the same operationIds.
	SubmitBatch(ctx context.Context, batch *domain.SyncBatch) (*domain.SyncResult, error)
}

// ReachabilitySignal reports current network availability.
type ReachabilitySignal interface {
	Online() bool
}

package out

import (
	"context"

	"kitchenhub_server/core/domain"
)

// =============================================================================
// CacheStore - device-side persisted cache
// =============================================================================
//
// Key-value store keyed by (entityType, accessMode). Envelopes are stored as
// raw bytes so corrupt payloads surface at parse time, not inside the store.

type CacheStore interface {
	// GetEnvelope returns the raw envelope bytes. found is false when the key
	// has never been written.
	GetEnvelope(ctx context.Context, t domain.EntityType, mode domain.AccessMode) (raw []byte, found bool, err error)

	PutEnvelope(ctx context.Context, t domain.EntityType, mode domain.AccessMode, raw []byte) error

	DeleteEnvelope(ctx context.Context, t domain.EntityType, mode domain.AccessMode) error

	// GetMetadata returns nil when no metadata has ever been recorded for the
	// entity type; the classifier maps that to the missing state.
	GetMetadata(ctx context.Context, t domain.EntityType, mode domain.AccessMode) (*domain.CacheMetadata, error)

	PutMetadata(ctx context.Context, t domain.EntityType, mode domain.AccessMode, meta *domain.CacheMetadata) error

	DeleteMetadata(ctx context.Context, t domain.EntityType, mode domain.AccessMode) error
}

// OutboxStore persists the not-yet-confirmed operation queue across restarts.
type OutboxStore interface {
	LoadQueue(ctx context.Context, mode domain.AccessMode) ([]domain.Operation, error)
	SaveQueue(ctx context.Context, mode domain.AccessMode, ops []domain.Operation) error
}

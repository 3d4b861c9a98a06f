package in

import (
	"context"
	"encoding/json"

	"kitchenhub_server/core/domain"
)

// SyncService accepts queued mutation batches from devices.
type SyncService interface {
	// SubmitBatch reconciles one batch against the authoritative store.
	// The result always satisfies |succeeded| + |conflicts| = number of
	// distinct submitted operations.
	SubmitBatch(ctx context.Context, ownerID string, batch *domain.SyncBatch) (*domain.SyncResult, error)
}

// SnapshotService serves authoritative per-type snapshots to devices.
type SnapshotService interface {
	Snapshot(ctx context.Context, ownerID string, t domain.EntityType) ([]json.RawMessage, error)
}

// ReadService is the device-side read surface consumed by the UI shell.
type ReadService interface {
	// Read serves one entity collection, cache-first. Staleness alone never
	// triggers a network call; only forceRefresh does.
	Read(ctx context.Context, t domain.EntityType, forceRefresh bool) (*domain.CacheReadResult, error)

	// Invalidate drops cached state so the next read re-fetches.
	Invalidate(ctx context.Context, t domain.EntityType) error
}

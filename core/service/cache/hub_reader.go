package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"kitchenhub_server/core/domain"
	"kitchenhub_server/core/port/out"
	"kitchenhub_server/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// =============================================================================
// Cache-First Read Coordinator
// =============================================================================
//
// 읽기는 항상 캐시 우선입니다. Staleness alone never triggers a network call:
// only forceRefresh (or a missing/corrupt/future_version cache while online)
// reaches the remote. This bounds read latency and data usage at the cost of
// an explicit refresh action to observe remote changes.

// Reader applies the read policy per classified cache state.
type Reader struct {
	store      out.CacheStore
	remote     out.RemoteAPI
	reach      out.ReachabilitySignal
	mode       domain.AccessMode
	thresholds domain.CacheThresholds

	// In-flight fetch registry, owned per instance so tests construct a
	// fresh one. Concurrent reads of the same entity type share one fetch.
	flight singleflight.Group

	now      func() time.Time
	onChange func(domain.EntityType)
}

// NewReader creates a read coordinator. onChange may be nil.
func NewReader(store out.CacheStore, remote out.RemoteAPI, reach out.ReachabilitySignal, mode domain.AccessMode, th domain.CacheThresholds, onChange func(domain.EntityType)) *Reader {
	return &Reader{
		store:      store,
		remote:     remote,
		reach:      reach,
		mode:       mode,
		thresholds: th,
		now:        time.Now,
		onChange:   onChange,
	}
}

// Read serves one entity collection according to the cache-first policy.
// Soft-deleted records are excluded from the returned data.
func (r *Reader) Read(ctx context.Context, t domain.EntityType, forceRefresh bool) (*domain.CacheReadResult, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown entity type: %s", t)
	}

	meta, err := r.store.GetMetadata(ctx, t, r.mode)
	if err != nil {
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	raw, found, err := r.store.GetEnvelope(ctx, t, r.mode)
	if err != nil {
		return nil, fmt.Errorf("get envelope: %w", err)
	}

	probe := ProbeEnvelope(raw, found)
	state := Classify(meta, probe, r.now(), r.thresholds)
	online := r.reach.Online()

	if forceRefresh && online {
		if result, err := r.refresh(ctx, t); err == nil {
			return result, nil
		}
		// Fetch failed: fall back to the stateful policy below.
	}

	switch state {
	case domain.CacheMissing, domain.CacheCorrupt:
		if online {
			if result, err := r.refresh(ctx, t); err == nil {
				return result, nil
			}
		}
		// Never fabricate data: offline (or unreachable) yields an empty
		// collection, tagged corrupt when the envelope was unusable.
		status := domain.ReadOK
		if state == domain.CacheCorrupt {
			status = domain.ReadCorrupt
		}
		return &domain.CacheReadResult{Status: status, Records: []json.RawMessage{}}, nil

	case domain.CacheFutureVersion:
		if online {
			if result, err := r.mergeRefresh(ctx, t, probe.Envelope); err == nil {
				return result, nil
			}
		}
		// Offline: serve the local, unmerged snapshot unchanged.
		return &domain.CacheReadResult{
			Status:  domain.ReadFutureVersion,
			Records: activeRecords(probe.Envelope),
		}, nil

	default: // fresh, stale, expired
		status := domain.ReadOK
		if probe.SchemaVersion < domain.CacheSchemaVersion {
			status = domain.ReadMigrated
		}
		return &domain.CacheReadResult{
			Status:  status,
			Records: activeRecords(probe.Envelope),
		}, nil
	}
}

// Invalidate drops cached state so the next read classifies missing and
// re-fetches.
func (r *Reader) Invalidate(ctx context.Context, t domain.EntityType) error {
	if err := r.store.DeleteMetadata(ctx, t, r.mode); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	if err := r.store.DeleteEnvelope(ctx, t, r.mode); err != nil {
		return fmt.Errorf("delete envelope: %w", err)
	}
	return nil
}

// refresh fetches the authoritative snapshot and replaces the envelope
// wholesale. Deduplicated per entity type through the in-flight registry.
func (r *Reader) refresh(ctx context.Context, t domain.EntityType) (*domain.CacheReadResult, error) {
	v, err, _ := r.flight.Do("refresh:"+string(t), func() (interface{}, error) {
		records, err := r.remote.FetchSnapshot(ctx, t)
		if err != nil {
			return nil, err
		}

		env := &domain.CacheEnvelope{
			SchemaVersion: domain.CacheSchemaVersion,
			Data:          records,
		}
		r.persist(ctx, t, env)

		return &domain.CacheReadResult{
			Status:  domain.ReadOK,
			Records: activeRecords(env),
		}, nil
	})
	if err != nil {
		logger.WithError(err).WithField("entity_type", string(t)).
			Warn("[CacheReader] Remote fetch failed, serving cached data")
		return nil, err
	}
	return v.(*domain.CacheReadResult), nil
}

// mergeRefresh handles future_version: remote data is merged into the local
// envelope instead of overwriting it, because a newer client may have written
// records this build cannot fully interpret.
func (r *Reader) mergeRefresh(ctx context.Context, t domain.EntityType, local *domain.CacheEnvelope) (*domain.CacheReadResult, error) {
	v, err, _ := r.flight.Do("merge:"+string(t), func() (interface{}, error) {
		records, err := r.remote.FetchSnapshot(ctx, t)
		if err != nil {
			return nil, err
		}

		merged := mergeRecords(local.Data, records)

		// Keep the higher schema version: the merged data still contains
		// records written by the newer client.
		version := local.SchemaVersion
		if domain.CacheSchemaVersion > version {
			version = domain.CacheSchemaVersion
		}
		env := &domain.CacheEnvelope{SchemaVersion: version, Data: merged}
		r.persist(ctx, t, env)

		return &domain.CacheReadResult{
			Status:  domain.ReadFutureVersion,
			Records: activeRecords(env),
		}, nil
	})
	if err != nil {
		logger.WithError(err).WithField("entity_type", string(t)).
			Warn("[CacheReader] Merge fetch failed, serving local snapshot")
		return nil, err
	}
	return v.(*domain.CacheReadResult), nil
}

// persist writes envelope and metadata. Cache write failures are soft: the
// authoritative data was already fetched, so the caller still gets it.
func (r *Reader) persist(ctx context.Context, t domain.EntityType, env *domain.CacheEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		logger.WithError(err).Error("[CacheReader] Failed to encode envelope")
		return
	}
	if err := r.store.PutEnvelope(ctx, t, r.mode, data); err != nil {
		logger.WithError(err).WithField("entity_type", string(t)).
			Warn("[CacheReader] Failed to persist envelope")
		return
	}
	now := r.now()
	if err := r.store.PutMetadata(ctx, t, r.mode, &domain.CacheMetadata{LastSyncedAt: &now}); err != nil {
		logger.WithError(err).WithField("entity_type", string(t)).
			Warn("[CacheReader] Failed to persist metadata")
	}
	if r.onChange != nil {
		r.onChange(t)
	}
}

// mergeRecords merges remote records into local by id. The newer updatedAt
// wins per record (remote wins ties, its timestamps are server-assigned);
// records present on only one side are kept.
func mergeRecords(local, remote []json.RawMessage) []json.RawMessage {
	type slot struct {
		raw       json.RawMessage
		updatedAt time.Time
	}

	merged := make([]slot, 0, len(local)+len(remote))
	index := make(map[string]int, len(local))

	for _, raw := range local {
		p, err := domain.ProbeRecord(raw)
		if err != nil || p.ID == "" {
			continue
		}
		index[p.ID] = len(merged)
		merged = append(merged, slot{raw: raw, updatedAt: p.UpdatedAt})
	}

	for _, raw := range remote {
		p, err := domain.ProbeRecord(raw)
		if err != nil || p.ID == "" {
			continue
		}
		if i, ok := index[p.ID]; ok {
			if !p.UpdatedAt.Before(merged[i].updatedAt) {
				merged[i] = slot{raw: raw, updatedAt: p.UpdatedAt}
			}
			continue
		}
		index[p.ID] = len(merged)
		merged = append(merged, slot{raw: raw, updatedAt: p.UpdatedAt})
	}

	out := make([]json.RawMessage, len(merged))
	for i, s := range merged {
		out[i] = s.raw
	}
	return out
}

// activeRecords returns the envelope's records minus tombstones.
func activeRecords(env *domain.CacheEnvelope) []json.RawMessage {
	if env == nil {
		return []json.RawMessage{}
	}
	active := make([]json.RawMessage, 0, len(env.Data))
	for _, raw := range env.Data {
		p, err := domain.ProbeRecord(raw)
		if err != nil {
			continue
		}
		if p.DeletedAt != nil {
			continue
		}
		active = append(active, raw)
	}
	return active
}

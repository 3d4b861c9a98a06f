// Package cachestore persists the device cache and outbound queue in Redis.
package cachestore

import (
	"context"
	"fmt"

	"kitchenhub_server/core/domain"
	"kitchenhub_server/pkg/cache"
)

// Keys are namespaced by access mode so logging out never leaks authenticated
// data into the guest namespace, and vice versa.
//
//	hub:cache:{mode}:{entityType}       envelope bytes
//	hub:cache:{mode}:{entityType}:meta  metadata JSON
//	hub:outbox:{mode}                   queued operations JSON

// RedisStore implements out.CacheStore and out.OutboxStore
type RedisStore struct {
	cache *cache.RedisCache
}

// NewRedisStore creates a new RedisStore
func NewRedisStore(c *cache.RedisCache) *RedisStore {
	return &RedisStore{cache: c}
}

// =============================================================================
// CacheStore
// =============================================================================

func (s *RedisStore) GetEnvelope(ctx context.Context, t domain.EntityType, mode domain.AccessMode) ([]byte, bool, error) {
	val, found, err := s.cache.Get(ctx, envelopeKey(t, mode))
	if err != nil {
		return nil, false, fmt.Errorf("get envelope: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	return []byte(val), true, nil
}

func (s *RedisStore) PutEnvelope(ctx context.Context, t domain.EntityType, mode domain.AccessMode, raw []byte) error {
	// TTL 0: staleness is decided by the classifier, not by key expiry.
	if err := s.cache.Set(ctx, envelopeKey(t, mode), string(raw), 0); err != nil {
		return fmt.Errorf("put envelope: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteEnvelope(ctx context.Context, t domain.EntityType, mode domain.AccessMode) error {
	if err := s.cache.Delete(ctx, envelopeKey(t, mode)); err != nil {
		return fmt.Errorf("delete envelope: %w", err)
	}
	return nil
}

func (s *RedisStore) GetMetadata(ctx context.Context, t domain.EntityType, mode domain.AccessMode) (*domain.CacheMetadata, error) {
	var meta domain.CacheMetadata
	found, err := s.cache.GetJSON(ctx, metadataKey(t, mode), &meta)
	if err != nil {
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &meta, nil
}

func (s *RedisStore) PutMetadata(ctx context.Context, t domain.EntityType, mode domain.AccessMode, meta *domain.CacheMetadata) error {
	if err := s.cache.SetJSON(ctx, metadataKey(t, mode), meta, 0); err != nil {
		return fmt.Errorf("put metadata: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteMetadata(ctx context.Context, t domain.EntityType, mode domain.AccessMode) error {
	if err := s.cache.Delete(ctx, metadataKey(t, mode)); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	return nil
}

// =============================================================================
// OutboxStore
// =============================================================================

func (s *RedisStore) LoadQueue(ctx context.Context, mode domain.AccessMode) ([]domain.Operation, error) {
	var ops []domain.Operation
	found, err := s.cache.GetJSON(ctx, outboxKey(mode), &ops)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	if !found {
		return nil, nil
	}
	return ops, nil
}

func (s *RedisStore) SaveQueue(ctx context.Context, mode domain.AccessMode, ops []domain.Operation) error {
	if len(ops) == 0 {
		if err := s.cache.Delete(ctx, outboxKey(mode)); err != nil {
			return fmt.Errorf("clear queue: %w", err)
		}
		return nil
	}
	if err := s.cache.SetJSON(ctx, outboxKey(mode), ops, 0); err != nil {
		return fmt.Errorf("save queue: %w", err)
	}
	return nil
}

// =============================================================================
// Keys
// =============================================================================

func envelopeKey(t domain.EntityType, mode domain.AccessMode) string {
	return fmt.Sprintf("hub:cache:%s:%s", mode, t)
}

func metadataKey(t domain.EntityType, mode domain.AccessMode) string {
	return fmt.Sprintf("hub:cache:%s:%s:meta", mode, t)
}

func outboxKey(mode domain.AccessMode) string {
	return fmt.Sprintf("hub:outbox:%s", mode)
}

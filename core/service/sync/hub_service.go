package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kitchenhub_server/core/domain"
	"kitchenhub_server/core/port/out"
	"kitchenhub_server/pkg/logger"
)

// Service implements in.SyncService and in.SnapshotService.
type Service struct {
	aggregator *Aggregator
	lists      out.ListRepository
	recipes    out.RecipeRepository
	chores     out.ChoreRepository
}

// NewService creates the sync service.
func NewService(aggregator *Aggregator, lists out.ListRepository, recipes out.RecipeRepository, chores out.ChoreRepository) *Service {
	return &Service{
		aggregator: aggregator,
		lists:      lists,
		recipes:    recipes,
		chores:     chores,
	}
}

// SubmitBatch reconciles one batch against the authoritative store.
func (s *Service) SubmitBatch(ctx context.Context, ownerID string, batch *domain.SyncBatch) (*domain.SyncResult, error) {
	start := time.Now()

	result, err := s.aggregator.RunBatch(ctx, ownerID, batch)
	if err != nil {
		return nil, fmt.Errorf("run batch: %w", err)
	}

	logger.WithFields(map[string]any{
		"owner_id":   ownerID,
		"request_id": batch.RequestID,
		"succeeded":  len(result.Succeeded),
		"conflicts":  len(result.Conflicts),
		"status":     string(result.Status),
	}).WithDuration(time.Since(start)).Info("[Sync] Batch processed")

	return result, nil
}

// Snapshot serves the authoritative records for one entity type, tombstones
// included so deletions propagate to devices.
func (s *Service) Snapshot(ctx context.Context, ownerID string, t domain.EntityType) ([]json.RawMessage, error) {
	switch t {
	case domain.EntityShoppingList:
		lists, err := s.lists.Snapshot(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("list snapshot: %w", err)
		}
		return marshalAll(lists)
	case domain.EntityListItem:
		items, err := s.lists.ItemSnapshot(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("item snapshot: %w", err)
		}
		return marshalAll(items)
	case domain.EntityRecipe:
		recipes, err := s.recipes.Snapshot(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("recipe snapshot: %w", err)
		}
		return marshalAll(recipes)
	case domain.EntityChore:
		chores, err := s.chores.Snapshot(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("chore snapshot: %w", err)
		}
		return marshalAll(chores)
	default:
		return nil, fmt.Errorf("unknown entity type: %s", t)
	}
}

func marshalAll[T any](entities []T) ([]json.RawMessage, error) {
	records := make([]json.RawMessage, 0, len(entities))
	for _, e := range entities {
		raw, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		records = append(records, raw)
	}
	return records, nil
}

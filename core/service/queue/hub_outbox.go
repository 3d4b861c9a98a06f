// Package queue implements the device-side outbound operation queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/goccy/go-json"

	"kitchenhub_server/core/domain"
	"kitchenhub_server/core/port/out"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// Outbox - not-yet-confirmed operation queue
// =============================================================================
//
// Every local mutation enqueues one Operation with a stable operationId
// assigned at creation time. Operations are immutable once enqueued and are
// removed only upon confirmed success: a lost response leaves them queued,
// and resubmission is safe because the server ledger deduplicates by id.

// Outbox holds queued operations and drives batch submission.
type Outbox struct {
	store  out.OutboxStore
	remote out.RemoteAPI
	reach  out.ReachabilitySignal
	mode   domain.AccessMode
	log    zerolog.Logger

	mu  gosync.Mutex
	ops []domain.Operation

	now func() time.Time
}

// NewOutbox creates an outbox. Call Load before first use to restore queued
// operations from a previous session.
func NewOutbox(store out.OutboxStore, remote out.RemoteAPI, reach out.ReachabilitySignal, mode domain.AccessMode, log zerolog.Logger) *Outbox {
	return &Outbox{
		store:  store,
		remote: remote,
		reach:  reach,
		mode:   mode,
		log:    log.With().Str("component", "outbox").Logger(),
		now:    time.Now,
	}
}

// Load restores the persisted queue.
func (o *Outbox) Load(ctx context.Context) error {
	ops, err := o.store.LoadQueue(ctx, o.mode)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}

	o.mu.Lock()
	o.ops = ops
	o.mu.Unlock()

	if len(ops) > 0 {
		o.log.Info().Int("pending", len(ops)).Msg("restored queued operations")
	}
	return nil
}

// EnqueueList queues one shopping list mutation.
func (o *Outbox) EnqueueList(ctx context.Context, lu domain.ListUpsert) (string, error) {
	lu.Items = nil // items queue as their own operations
	return o.enqueue(ctx, domain.EntityShoppingList, lu.ID, lu.ClientLocalID, &lu.OperationID, lu)
}

// EnqueueItem queues one list item mutation. ListID must be set.
func (o *Outbox) EnqueueItem(ctx context.Context, iu domain.ItemUpsert) (string, error) {
	if iu.ListID == "" {
		return "", errors.New("item operation requires listId")
	}
	return o.enqueue(ctx, domain.EntityListItem, iu.ID, iu.ClientLocalID, &iu.OperationID, iu)
}

// EnqueueRecipe queues one recipe mutation.
func (o *Outbox) EnqueueRecipe(ctx context.Context, ru domain.RecipeUpsert) (string, error) {
	return o.enqueue(ctx, domain.EntityRecipe, ru.ID, ru.ClientLocalID, &ru.OperationID, ru)
}

// EnqueueChore queues one chore mutation.
func (o *Outbox) EnqueueChore(ctx context.Context, cu domain.ChoreUpsert) (string, error) {
	return o.enqueue(ctx, domain.EntityChore, cu.ID, cu.ClientLocalID, &cu.OperationID, cu)
}

// enqueue assigns the operationId (once, at creation), persists the queue and
// returns the id.
func (o *Outbox) enqueue(ctx context.Context, t domain.EntityType, entityID, clientLocalID string, opID *string, payload any) (string, error) {
	if entityID == "" {
		return "", errors.New("operation requires an entity id")
	}
	if *opID == "" {
		*opID = uuid.NewString()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	op := domain.Operation{
		OperationID:   *opID,
		EntityType:    t,
		EntityID:      entityID,
		ClientLocalID: clientLocalID,
		Payload:       data,
		EnqueuedAtUms: o.now().UnixMilli(),
	}

	o.mu.Lock()
	o.ops = append(o.ops, op)
	snapshot := append([]domain.Operation(nil), o.ops...)
	o.mu.Unlock()

	if err := o.store.SaveQueue(ctx, o.mode, snapshot); err != nil {
		// Queue persistence is best effort; the in-memory queue still syncs
		// this session and the server deduplicates any replay.
		o.log.Warn().Err(err).Msg("failed to persist queue")
	}
	return op.OperationID, nil
}

// Pending returns a copy of the queued operations.
func (o *Outbox) Pending() []domain.Operation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.Operation(nil), o.ops...)
}

// BuildBatch groups the queued operations into one submission with a fresh
// requestId. Returns nil when nothing is queued.
func (o *Outbox) BuildBatch() (*domain.SyncBatch, error) {
	ops := o.Pending()
	if len(ops) == 0 {
		return nil, nil
	}

	batch := &domain.SyncBatch{RequestID: uuid.NewString()}
	for _, op := range ops {
		switch op.EntityType {
		case domain.EntityShoppingList:
			var lu domain.ListUpsert
			if err := json.Unmarshal(op.Payload, &lu); err != nil {
				return nil, fmt.Errorf("decode list operation %s: %w", op.OperationID, err)
			}
			batch.Lists = append(batch.Lists, lu)
		case domain.EntityListItem:
			var iu domain.ItemUpsert
			if err := json.Unmarshal(op.Payload, &iu); err != nil {
				return nil, fmt.Errorf("decode item operation %s: %w", op.OperationID, err)
			}
			batch.Items = append(batch.Items, iu)
		case domain.EntityRecipe:
			var ru domain.RecipeUpsert
			if err := json.Unmarshal(op.Payload, &ru); err != nil {
				return nil, fmt.Errorf("decode recipe operation %s: %w", op.OperationID, err)
			}
			batch.Recipes = append(batch.Recipes, ru)
		case domain.EntityChore:
			var cu domain.ChoreUpsert
			if err := json.Unmarshal(op.Payload, &cu); err != nil {
				return nil, fmt.Errorf("decode chore operation %s: %w", op.OperationID, err)
			}
			batch.Chores = append(batch.Chores, cu)
		default:
			return nil, fmt.Errorf("unknown entity type in queue: %s", op.EntityType)
		}
	}
	return batch, nil
}

// Confirm removes the operations the server durably applied. Conflicted
// operations stay queued for the next trigger.
func (o *Outbox) Confirm(ctx context.Context, result *domain.SyncResult) {
	if result == nil || len(result.Succeeded) == 0 {
		return
	}

	confirmed := make(map[string]bool, len(result.Succeeded))
	for _, s := range result.Succeeded {
		confirmed[s.OperationID] = true
	}

	o.mu.Lock()
	kept := o.ops[:0]
	for _, op := range o.ops {
		if !confirmed[op.OperationID] {
			kept = append(kept, op)
		}
	}
	o.ops = kept
	snapshot := append([]domain.Operation(nil), o.ops...)
	o.mu.Unlock()

	if err := o.store.SaveQueue(ctx, o.mode, snapshot); err != nil {
		o.log.Warn().Err(err).Msg("failed to persist queue after confirm")
	}
}

// SyncNow submits the queued operations once. Safe to call again after a lost
// response: unchanged operationIds make resubmission idempotent server-side.
func (o *Outbox) SyncNow(ctx context.Context) (*domain.SyncResult, error) {
	if !o.reach.Online() {
		return nil, out.ErrUnreachable
	}

	batch, err := o.BuildBatch()
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return &domain.SyncResult{
			Status:    domain.SyncStatusSynced,
			Conflicts: []domain.ConflictOperation{},
		}, nil
	}

	result, err := o.remote.SubmitBatch(ctx, batch)
	if err != nil {
		// Outcome unknown: keep everything queued, retry on the next trigger.
		o.log.Warn().Err(err).Str("request_id", batch.RequestID).Msg("batch submission failed")
		return nil, err
	}

	o.Confirm(ctx, result)

	o.log.Info().
		Str("request_id", batch.RequestID).
		Str("status", string(result.Status)).
		Int("succeeded", len(result.Succeeded)).
		Int("conflicts", len(result.Conflicts)).
		Msg("batch synced")
	return result, nil
}

// Run drives periodic sync until ctx is cancelled. Each tick submits only
// when the network is reachable and operations are queued; connectivity
// restore is therefore picked up on the next tick.
func (o *Outbox) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info().Msg("sync loop stopped")
			return
		case <-ticker.C:
			if !o.reach.Online() || len(o.Pending()) == 0 {
				continue
			}
			if _, err := o.SyncNow(ctx); err != nil && !errors.Is(err, out.ErrUnreachable) {
				o.log.Error().Err(err).Msg("sync trigger failed")
			}
		}
	}
}

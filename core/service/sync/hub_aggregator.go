package sync

import (
	"context"
	"time"

	"kitchenhub_server/core/domain"
	"kitchenhub_server/core/port/out"
	"kitchenhub_server/pkg/logger"
)

// =============================================================================
// Aggregator - batch fan-out and result collection
// =============================================================================

// Aggregator flattens one submitted batch into independent operations, routes
// each through the Processor, and collects succeeded/conflict outcomes.
type Aggregator struct {
	processor *Processor
	lists     out.ListRepository
	recipes   out.RecipeRepository
	chores    out.ChoreRepository
	now       func() time.Time
}

// NewAggregator creates an Aggregator.
func NewAggregator(processor *Processor, lists out.ListRepository, recipes out.RecipeRepository, chores out.ChoreRepository) *Aggregator {
	return &Aggregator{
		processor: processor,
		lists:     lists,
		recipes:   recipes,
		chores:    chores,
		now:       time.Now,
	}
}

// flatOp pairs one operation's identity with its mutation.
type flatOp struct {
	meta   domain.OperationMeta
	mutate func(context.Context) error
}

// RunBatch reconciles one batch. Every flattened operation lands in exactly
// one of succeeded/conflicts; nested items are independent operations, so a
// child's failure does not roll back its parent.
func (a *Aggregator) RunBatch(ctx context.Context, ownerID string, batch *domain.SyncBatch) (*domain.SyncResult, error) {
	if batch.IsEmpty() {
		return &domain.SyncResult{
			Status:    domain.SyncStatusSynced,
			Conflicts: []domain.ConflictOperation{},
		}, nil
	}

	ops := a.flatten(ownerID, batch)

	result := &domain.SyncResult{
		Conflicts: []domain.ConflictOperation{},
	}

	for _, op := range ops {
		if reason := validateMeta(op.meta); reason != "" {
			result.Conflicts = append(result.Conflicts, domain.ConflictOperation{
				OperationID: op.meta.OperationID,
				EntityType:  op.meta.EntityType,
				EntityID:    op.meta.EntityID,
				Reason:      reason,
			})
			continue
		}
		if err := a.processor.Process(ctx, ownerID, op.meta, op.mutate); err != nil {
			result.Conflicts = append(result.Conflicts, domain.ConflictOperation{
				OperationID: op.meta.OperationID,
				EntityType:  op.meta.EntityType,
				EntityID:    op.meta.EntityID,
				Reason:      err.Error(),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, domain.SucceededOperation{
			OperationID:   op.meta.OperationID,
			EntityType:    op.meta.EntityType,
			EntityID:      op.meta.EntityID,
			ClientLocalID: op.meta.ClientLocalID,
		})
	}

	a.verifyCompleteness(ownerID, batch.RequestID, ops, result)

	result.Status = domain.ComputeStatus(len(result.Succeeded), len(result.Conflicts))
	return result, nil
}

// validateMeta rejects operations the ledger could never key correctly.
// Returns the conflict reason, or "" when the operation is processable.
func validateMeta(meta domain.OperationMeta) string {
	if meta.OperationID == "" {
		return "missing operationId"
	}
	if meta.EntityID == "" {
		return "missing entity id"
	}
	return ""
}

// flatten expands the batch into (operation, mutate) pairs. Each nested item
// becomes its own operation with its own ledger record.
func (a *Aggregator) flatten(ownerID string, batch *domain.SyncBatch) []flatOp {
	ops := make([]flatOp, 0, batch.OperationCount())
	requestID := batch.RequestID

	for i := range batch.Lists {
		lu := batch.Lists[i]
		list := &domain.ShoppingList{
			ID:      lu.ID,
			OwnerID: ownerID,
			Name:    lu.Name,
			Color:   lu.Color,
		}
		list.DeletedAt = lu.DeletedAt

		ops = append(ops, flatOp{
			meta: domain.OperationMeta{
				OperationID:   lu.OperationID,
				EntityType:    domain.EntityShoppingList,
				EntityID:      lu.ID,
				ClientLocalID: lu.ClientLocalID,
				RequestID:     requestID,
			},
			mutate: func(ctx context.Context) error {
				return a.lists.UpsertList(ctx, list)
			},
		})

		for j := range lu.Items {
			ops = append(ops, a.itemOp(ownerID, requestID, lu.Items[j], lu.ID))
		}
	}

	for i := range batch.Items {
		iu := batch.Items[i]
		ops = append(ops, a.itemOp(ownerID, requestID, iu, iu.ListID))
	}

	for i := range batch.Recipes {
		ru := batch.Recipes[i]
		recipe := &domain.Recipe{
			ID:           ru.ID,
			OwnerID:      ownerID,
			Title:        ru.Title,
			Ingredients:  ru.Ingredients,
			Instructions: ru.Instructions,
		}
		recipe.DeletedAt = ru.DeletedAt

		ops = append(ops, flatOp{
			meta: domain.OperationMeta{
				OperationID:   ru.OperationID,
				EntityType:    domain.EntityRecipe,
				EntityID:      ru.ID,
				ClientLocalID: ru.ClientLocalID,
				RequestID:     requestID,
			},
			mutate: func(ctx context.Context) error {
				return a.recipes.Upsert(ctx, recipe)
			},
		})
	}

	for i := range batch.Chores {
		cu := batch.Chores[i]
		chore := &domain.Chore{
			ID:          cu.ID,
			OwnerID:     ownerID,
			Title:       cu.Title,
			AssigneeID:  cu.AssigneeID,
			DueDate:     cu.DueDate,
			IsCompleted: cu.IsCompleted,
		}
		chore.DeletedAt = cu.DeletedAt

		ops = append(ops, flatOp{
			meta: domain.OperationMeta{
				OperationID:   cu.OperationID,
				EntityType:    domain.EntityChore,
				EntityID:      cu.ID,
				ClientLocalID: cu.ClientLocalID,
				RequestID:     requestID,
			},
			mutate: func(ctx context.Context) error {
				return a.chores.Upsert(ctx, chore)
			},
		})
	}

	return ops
}

// itemOp builds the flattened operation for one list item.
func (a *Aggregator) itemOp(ownerID, requestID string, iu domain.ItemUpsert, listID string) flatOp {
	item := &domain.ListItem{
		ID:        iu.ID,
		OwnerID:   ownerID,
		ListID:    listID,
		Name:      iu.Name,
		Quantity:  iu.Quantity,
		Unit:      iu.Unit,
		Category:  iu.Category,
		IsChecked: iu.IsChecked,
	}
	item.DeletedAt = iu.DeletedAt

	return flatOp{
		meta: domain.OperationMeta{
			OperationID:   iu.OperationID,
			EntityType:    domain.EntityListItem,
			EntityID:      iu.ID,
			ClientLocalID: iu.ClientLocalID,
			RequestID:     requestID,
		},
		mutate: func(ctx context.Context) error {
			return a.lists.UpsertItem(ctx, item)
		},
	}
}

// verifyCompleteness checks that every submitted operationId landed in
// exactly one outcome bucket. A mismatch is logged with full context but
// never fails the response: sync availability outranks internal bookkeeping.
func (a *Aggregator) verifyCompleteness(ownerID, requestID string, ops []flatOp, result *domain.SyncResult) {
	seen := make(map[string]bool, len(ops))
	for _, s := range result.Succeeded {
		seen[s.OperationID] = true
	}
	for _, c := range result.Conflicts {
		seen[c.OperationID] = true
	}

	var missing []string
	submitted := make(map[string]bool, len(ops))
	for _, op := range ops {
		if submitted[op.meta.OperationID] {
			continue // duplicate id inside one batch counts once
		}
		submitted[op.meta.OperationID] = true
		if !seen[op.meta.OperationID] {
			missing = append(missing, op.meta.OperationID)
		}
	}

	if len(missing) > 0 || len(seen) != len(submitted) {
		logger.WithFields(map[string]any{
			"owner_id":   ownerID,
			"request_id": requestID,
			"submitted":  len(submitted),
			"resolved":   len(seen),
			"missing":    missing,
		}).Error("[Aggregator] Batch completeness check failed")
	}
}

package sync

import (
	"context"
	"errors"
	"testing"

	"kitchenhub_server/core/domain"
)

// fakeRepos records upserts and fails on demand per entity id.
type fakeRepos struct {
	lists   []*domain.ShoppingList
	items   []*domain.ListItem
	recipes []*domain.Recipe
	chores  []*domain.Chore

	failIDs map[string]error
}

func newFakeRepos() *fakeRepos {
	return &fakeRepos{failIDs: make(map[string]error)}
}

func (f *fakeRepos) UpsertList(_ context.Context, list *domain.ShoppingList) error {
	if err := f.failIDs[list.ID]; err != nil {
		return err
	}
	f.lists = append(f.lists, list)
	return nil
}

func (f *fakeRepos) UpsertItem(_ context.Context, item *domain.ListItem) error {
	if err := f.failIDs[item.ID]; err != nil {
		return err
	}
	f.items = append(f.items, item)
	return nil
}

func (f *fakeRepos) Snapshot(_ context.Context, _ string) ([]*domain.ShoppingList, error) {
	return f.lists, nil
}

func (f *fakeRepos) ItemSnapshot(_ context.Context, _ string) ([]*domain.ListItem, error) {
	return f.items, nil
}

type fakeRecipeRepo struct{ parent *fakeRepos }

func (f *fakeRecipeRepo) Upsert(_ context.Context, r *domain.Recipe) error {
	if err := f.parent.failIDs[r.ID]; err != nil {
		return err
	}
	f.parent.recipes = append(f.parent.recipes, r)
	return nil
}

func (f *fakeRecipeRepo) Snapshot(_ context.Context, _ string) ([]*domain.Recipe, error) {
	return f.parent.recipes, nil
}

type fakeChoreRepo struct{ parent *fakeRepos }

func (f *fakeChoreRepo) Upsert(_ context.Context, c *domain.Chore) error {
	if err := f.parent.failIDs[c.ID]; err != nil {
		return err
	}
	f.parent.chores = append(f.parent.chores, c)
	return nil
}

func (f *fakeChoreRepo) Snapshot(_ context.Context, _ string) ([]*domain.Chore, error) {
	return f.parent.chores, nil
}

func newTestAggregator(repos *fakeRepos) (*Aggregator, *fakeLedger) {
	ledger := newFakeLedger()
	return NewAggregator(
		NewProcessor(ledger),
		repos,
		&fakeRecipeRepo{parent: repos},
		&fakeChoreRepo{parent: repos},
	), ledger
}

func TestRunBatchEmptyBatch(t *testing.T) {
	agg, _ := newTestAggregator(newFakeRepos())

	result, err := agg.RunBatch(context.Background(), "owner-1", &domain.SyncBatch{RequestID: "req-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.SyncStatusSynced {
		t.Errorf("status = %s, want synced", result.Status)
	}
	if result.Conflicts == nil {
		t.Error("Conflicts must be non-nil for an empty batch")
	}
	if len(result.Succeeded) != 0 || len(result.Conflicts) != 0 {
		t.Errorf("empty batch produced %d succeeded, %d conflicts", len(result.Succeeded), len(result.Conflicts))
	}
}

func TestRunBatchAllSucceed(t *testing.T) {
	repos := newFakeRepos()
	agg, _ := newTestAggregator(repos)

	batch := &domain.SyncBatch{
		RequestID: "req-1",
		Lists: []domain.ListUpsert{
			{
				ID: "list-1", OperationID: "op-l1", Name: "Groceries",
				Items: []domain.ItemUpsert{
					{ID: "item-1", OperationID: "op-i1", Name: "Milk", Quantity: 2},
					{ID: "item-2", OperationID: "op-i2", Name: "Eggs"},
				},
			},
		},
		Recipes: []domain.RecipeUpsert{
			{ID: "rec-1", OperationID: "op-r1", Title: "Pancakes", Ingredients: []string{"flour", "milk"}},
		},
		Chores: []domain.ChoreUpsert{
			{ID: "chore-1", OperationID: "op-c1", Title: "Dishes"},
		},
	}

	result, err := agg.RunBatch(context.Background(), "owner-1", batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := len(result.Succeeded)+len(result.Conflicts), batch.OperationCount(); got != want {
		t.Errorf("resolved %d operations, submitted %d", got, want)
	}
	if result.Status != domain.SyncStatusSynced {
		t.Errorf("status = %s, want synced", result.Status)
	}
	if len(result.Succeeded) != 5 {
		t.Errorf("succeeded = %d, want 5", len(result.Succeeded))
	}

	// Nested items inherit the parent list id.
	for _, item := range repos.items {
		if item.ListID != "list-1" {
			t.Errorf("item %s listId = %q, want list-1", item.ID, item.ListID)
		}
		if item.OwnerID != "owner-1" {
			t.Errorf("item %s ownerId = %q, want owner-1", item.ID, item.OwnerID)
		}
	}
}

func TestRunBatchItemFailureKeepsParent(t *testing.T) {
	repos := newFakeRepos()
	repos.failIDs["item-bad"] = errors.New("name exceeds limit")
	agg, ledger := newTestAggregator(repos)

	batch := &domain.SyncBatch{
		RequestID: "req-1",
		Lists: []domain.ListUpsert{
			{
				ID: "list-1", OperationID: "op-l1", Name: "Groceries",
				Items: []domain.ItemUpsert{
					{ID: "item-ok", OperationID: "op-ok", Name: "Milk"},
					{ID: "item-bad", OperationID: "op-bad", Name: "X"},
				},
			},
		},
	}

	result, err := agg.RunBatch(context.Background(), "owner-1", batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != domain.SyncStatusPartial {
		t.Errorf("status = %s, want partial", result.Status)
	}
	if len(result.Succeeded) != 2 {
		t.Errorf("succeeded = %d, want 2 (list + good item)", len(result.Succeeded))
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(result.Conflicts))
	}

	c := result.Conflicts[0]
	if c.OperationID != "op-bad" || c.EntityID != "item-bad" {
		t.Errorf("conflict identifies %s/%s, want op-bad/item-bad", c.OperationID, c.EntityID)
	}
	if c.Reason == "" {
		t.Error("conflict reason is empty")
	}

	// The failed operation must be retryable: its ledger record is gone.
	rec, _ := ledger.Get(context.Background(), "owner-1", "op-bad")
	if rec != nil {
		t.Error("failed operation still holds a ledger record")
	}
}

func TestRunBatchAllFail(t *testing.T) {
	repos := newFakeRepos()
	repos.failIDs["rec-1"] = errors.New("boom")
	repos.failIDs["rec-2"] = errors.New("boom")
	agg, _ := newTestAggregator(repos)

	batch := &domain.SyncBatch{
		RequestID: "req-1",
		Recipes: []domain.RecipeUpsert{
			{ID: "rec-1", OperationID: "op-1", Title: "A"},
			{ID: "rec-2", OperationID: "op-2", Title: "B"},
		},
	}

	result, err := agg.RunBatch(context.Background(), "owner-1", batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.SyncStatusFailed {
		t.Errorf("status = %s, want failed", result.Status)
	}
}

func TestRunBatchDuplicateWithinRetry(t *testing.T) {
	repos := newFakeRepos()
	agg, _ := newTestAggregator(repos)
	ctx := context.Background()

	batch := &domain.SyncBatch{
		RequestID: "req-1",
		Chores: []domain.ChoreUpsert{
			{ID: "chore-1", OperationID: "op-c1", Title: "Vacuum"},
		},
	}

	// Client lost the response and resubmits the identical batch.
	for i := 0; i < 2; i++ {
		result, err := agg.RunBatch(ctx, "owner-1", batch)
		if err != nil {
			t.Fatalf("submission %d: %v", i, err)
		}
		if result.Status != domain.SyncStatusSynced {
			t.Errorf("submission %d status = %s, want synced", i, result.Status)
		}
		if len(result.Succeeded) != 1 {
			t.Errorf("submission %d succeeded = %d, want 1", i, len(result.Succeeded))
		}
	}

	if len(repos.chores) != 1 {
		t.Errorf("chore upserted %d times, want 1", len(repos.chores))
	}
}

func TestRunBatchInvalidMeta(t *testing.T) {
	tests := []struct {
		name       string
		upsert     domain.RecipeUpsert
		wantReason string
	}{
		{
			name:       "missing operationId",
			upsert:     domain.RecipeUpsert{ID: "rec-1", Title: "A"},
			wantReason: "missing operationId",
		},
		{
			name:       "missing entity id",
			upsert:     domain.RecipeUpsert{OperationID: "op-1", Title: "A"},
			wantReason: "missing entity id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg, _ := newTestAggregator(newFakeRepos())

			result, err := agg.RunBatch(context.Background(), "owner-1", &domain.SyncBatch{
				RequestID: "req-1",
				Recipes:   []domain.RecipeUpsert{tt.upsert},
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result.Conflicts) != 1 {
				t.Fatalf("conflicts = %d, want 1", len(result.Conflicts))
			}
			if result.Conflicts[0].Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", result.Conflicts[0].Reason, tt.wantReason)
			}
			if result.Status != domain.SyncStatusFailed {
				t.Errorf("status = %s, want failed", result.Status)
			}
		})
	}
}

func TestRunBatchTopLevelItems(t *testing.T) {
	repos := newFakeRepos()
	agg, _ := newTestAggregator(repos)

	batch := &domain.SyncBatch{
		RequestID: "req-1",
		Items: []domain.ItemUpsert{
			{ID: "item-1", OperationID: "op-i1", ListID: "list-existing", Name: "Butter"},
		},
	}

	result, err := agg.RunBatch(context.Background(), "owner-1", batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Succeeded) != 1 {
		t.Fatalf("succeeded = %d, want 1", len(result.Succeeded))
	}
	if len(repos.items) != 1 || repos.items[0].ListID != "list-existing" {
		t.Error("top-level item did not carry its own listId")
	}
}

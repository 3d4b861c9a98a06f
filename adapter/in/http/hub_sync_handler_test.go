package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"kitchenhub_server/core/domain"
	"kitchenhub_server/infra/middleware"

	"github.com/gofiber/fiber/v2"
)

type fakeSyncService struct {
	calls   int
	ownerID string
	batch   *domain.SyncBatch
}

func (s *fakeSyncService) SubmitBatch(_ context.Context, ownerID string, batch *domain.SyncBatch) (*domain.SyncResult, error) {
	s.calls++
	s.ownerID = ownerID
	s.batch = batch
	return &domain.SyncResult{
		Status:    domain.SyncStatusSynced,
		Conflicts: []domain.ConflictOperation{},
	}, nil
}

func (s *fakeSyncService) Snapshot(_ context.Context, _ string, _ domain.EntityType) ([]json.RawMessage, error) {
	return []json.RawMessage{}, nil
}

func newTestApp(svc *fakeSyncService, maxOps int) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("owner_id", "owner-1")
		return c.Next()
	})
	NewSyncHandler(svc, svc, maxOps).Register(app)
	return app
}

func postBatch(t *testing.T, app *fiber.App, batch *domain.SyncBatch) *http.Response {
	t.Helper()
	body, err := json.Marshal(batch)
	if err != nil {
		t.Fatalf("marshal batch: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/sync", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp
}

func batchOfRecipes(n int) *domain.SyncBatch {
	b := &domain.SyncBatch{RequestID: "req-1"}
	for i := 0; i < n; i++ {
		b.Recipes = append(b.Recipes, domain.RecipeUpsert{
			ID:          fmt.Sprintf("r-%d", i),
			OperationID: fmt.Sprintf("op-%d", i),
			Title:       "Stew",
		})
	}
	return b
}

func TestSyncRejectsOversizedBatch(t *testing.T) {
	svc := &fakeSyncService{}
	app := newTestApp(svc, 3)

	resp := postBatch(t, app, batchOfRecipes(4))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if svc.calls != 0 {
		t.Errorf("oversized batch reached the service %d times", svc.calls)
	}
}

func TestSyncAcceptsBatchWithinCap(t *testing.T) {
	svc := &fakeSyncService{}
	app := newTestApp(svc, 3)

	resp := postBatch(t, app, batchOfRecipes(3))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if svc.calls != 1 || svc.ownerID != "owner-1" {
		t.Errorf("service calls = %d owner = %q, want 1 call for owner-1", svc.calls, svc.ownerID)
	}
}

func TestSyncCapCountsNestedItems(t *testing.T) {
	svc := &fakeSyncService{}
	app := newTestApp(svc, 2)

	// One list with two nested items flattens to three operations.
	batch := &domain.SyncBatch{
		RequestID: "req-1",
		Lists: []domain.ListUpsert{{
			ID:          "l-1",
			OperationID: "op-l1",
			Name:        "Groceries",
			Items: []domain.ItemUpsert{
				{ID: "i-1", OperationID: "op-i1", Name: "Milk"},
				{ID: "i-2", OperationID: "op-i2", Name: "Eggs"},
			},
		}},
	}
	resp := postBatch(t, app, batch)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if svc.calls != 0 {
		t.Errorf("oversized batch reached the service %d times", svc.calls)
	}
}

func TestSyncZeroCapDisablesLimit(t *testing.T) {
	svc := &fakeSyncService{}
	app := newTestApp(svc, 0)

	resp := postBatch(t, app, batchOfRecipes(50))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

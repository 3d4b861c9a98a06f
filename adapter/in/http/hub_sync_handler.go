package http

import (
	"fmt"

	"kitchenhub_server/core/domain"
	in "kitchenhub_server/core/port/in"
	"kitchenhub_server/pkg/apperr"
	"kitchenhub_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// SyncHandler handles HTTP requests for batch sync and snapshots
type SyncHandler struct {
	sync     in.SyncService
	snapshot in.SnapshotService
	maxOps   int
}

// NewSyncHandler creates a new SyncHandler. maxOps caps the flattened
// operation count per batch; 0 disables the cap.
func NewSyncHandler(sync in.SyncService, snapshot in.SnapshotService, maxOps int) *SyncHandler {
	return &SyncHandler{sync: sync, snapshot: snapshot, maxOps: maxOps}
}

// Register registers sync routes
func (h *SyncHandler) Register(router fiber.Router) {
	router.Post("/sync", h.Sync)
	router.Get("/snapshot/:type", h.Snapshot)
}

// Sync reconciles one operation batch
// @Summary Submit a sync batch
// @Tags Sync
// @Accept json
// @Produce json
// @Param request body domain.SyncBatch true "Queued operations"
// @Success 200 {object} domain.SyncResult
// @Router /api/v1/sync [post]
func (h *SyncHandler) Sync(c *fiber.Ctx) error {
	ownerID := c.Locals("owner_id").(string)

	var batch domain.SyncBatch
	if err := c.BodyParser(&batch); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	if h.maxOps > 0 && batch.OperationCount() > h.maxOps {
		return apperr.BadRequest(fmt.Sprintf("batch exceeds %d operations", h.maxOps))
	}

	result, err := h.sync.SubmitBatch(c.Context(), ownerID, &batch)
	if err != nil {
		return err
	}

	return response.OK(c, result)
}

// Snapshot serves the authoritative records for one entity type
// @Summary Fetch an entity snapshot
// @Tags Sync
// @Produce json
// @Param type path string true "Entity type"
// @Success 200 {array} json.RawMessage
// @Router /api/v1/snapshot/{type} [get]
func (h *SyncHandler) Snapshot(c *fiber.Ctx) error {
	ownerID := c.Locals("owner_id").(string)

	t := domain.EntityType(c.Params("type"))
	if !t.Valid() {
		return apperr.BadRequest("unknown entity type: " + c.Params("type"))
	}

	records, err := h.snapshot.Snapshot(c.Context(), ownerID, t)
	if err != nil {
		return err
	}

	return response.OK(c, records)
}

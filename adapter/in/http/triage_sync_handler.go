package http

import (
	"triage_server/core/port/in"

	"github.com/gofiber/fiber/v2"
)

// SyncHandler triggers ingestion runs.
type SyncHandler struct {
	ingest in.IngestionService
}

func NewSyncHandler(ingest in.IngestionService) *SyncHandler {
	return &SyncHandler{ingest: ingest}
}

func (h *SyncHandler) Register(router fiber.Router, limit fiber.Handler) {
	router.Post("/accounts/:id/sync", limit, h.SyncAccount)
}

// SyncAccount runs one ingestion batch for the account and returns its report.
func (h *SyncHandler) SyncAccount(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	accountID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	report, err := h.ingest.SyncAccount(c.UserContext(), userID, accountID)
	if err != nil {
		return err
	}
	return c.JSON(report)
}

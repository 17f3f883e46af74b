package http

import (
	"triage_server/core/port/in"
	"triage_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

// UnsubscribeHandler serves the bulk unsubscribe endpoints.
type UnsubscribeHandler struct {
	unsubscribe in.UnsubscribeService
}

func NewUnsubscribeHandler(unsubscribe in.UnsubscribeService) *UnsubscribeHandler {
	return &UnsubscribeHandler{unsubscribe: unsubscribe}
}

func (h *UnsubscribeHandler) Register(router fiber.Router, limit fiber.Handler) {
	emails := router.Group("/emails")
	emails.Post("/unsubscribe", limit, h.Unsubscribe)
	emails.Get("/:id/unsubscribe-links", h.PreviewLinks)
}

type unsubscribeRequest struct {
	EmailIDs json.RawMessage `json:"email_ids"`
}

const emailIDsMessage = "email_ids must be a non-empty array"

// parseEmailIDs accepts only a JSON array of integers.
func parseEmailIDs(body []byte) ([]int64, error) {
	var req unsubscribeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperr.BadRequest("invalid request body")
	}
	var ids []int64
	if len(req.EmailIDs) == 0 || req.EmailIDs[0] != '[' {
		return nil, apperr.BadRequest(emailIDsMessage)
	}
	if err := json.Unmarshal(req.EmailIDs, &ids); err != nil || len(ids) == 0 {
		return nil, apperr.BadRequest(emailIDsMessage)
	}
	return ids, nil
}

// Unsubscribe processes the batch and always answers 200 once the request
// is valid. Per-email failures are reported in the details.
func (h *UnsubscribeHandler) Unsubscribe(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	ids, err := parseEmailIDs(c.Body())
	if err != nil {
		return err
	}

	result, err := h.unsubscribe.UnsubscribeBatch(c.UserContext(), userID, ids)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (h *UnsubscribeHandler) PreviewLinks(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	emailID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	preview, err := h.unsubscribe.PreviewLinks(c.UserContext(), userID, emailID)
	if err != nil {
		return err
	}
	return c.JSON(preview)
}

// Package response provides the JSON error envelope of the API.
package response

import (
	"github.com/gofiber/fiber/v2"
)

// Response is the body of every failed request.
type Response struct {
	Success bool       `json:"success"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

func Error(c *fiber.Ctx, status int, code, message string) error {
	return ErrorWithDetails(c, status, code, message, nil)
}

func ErrorWithDetails(c *fiber.Ctx, status int, code, message string, details map[string]any) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.Status(status).JSON(Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      code,
			Message:   message,
			RequestID: requestID,
			Details:   details,
		},
	})
}

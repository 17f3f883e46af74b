// Package in defines inbound ports (driving ports) for the application.
package in

import (
	"context"

	"triage_server/core/domain"

	"github.com/google/uuid"
)

type IngestionService interface {
	// SyncAccount imports recent inbox messages for one account.
	SyncAccount(ctx context.Context, userID uuid.UUID, accountID int64) (*domain.BatchReport, error)
}

type UnsubscribeService interface {
	UnsubscribeBatch(ctx context.Context, userID uuid.UUID, emailIDs []int64) (*domain.UnsubscribeBatchResult, error)
	// PreviewLinks reports the candidates the engine would use without acting.
	PreviewLinks(ctx context.Context, userID uuid.UUID, emailID int64) (*LinkPreview, error)
}

type LinkPreview struct {
	EmailID    int64                  `json:"email_id"`
	Selected   *domain.LinkCandidate  `json:"selected,omitempty"`
	Candidates []domain.LinkCandidate `json:"candidates"`
	Rejected   []domain.RejectedLink  `json:"rejected,omitempty"`
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

type MailProvider string

const MailProviderGmail MailProvider = "google"

// MailboxAccount is a connected mailbox. Tokens are decrypted by the
// repository and never serialized.
type MailboxAccount struct {
	ID           int64        `json:"id"`
	UserID       uuid.UUID    `json:"user_id"`
	Provider     MailProvider `json:"provider"`
	Email        string       `json:"email"`
	AccessToken  string       `json:"-"`
	RefreshToken string       `json:"-"`
	ExpiresAt    time.Time    `json:"expires_at"`
	LastSyncAt   *time.Time   `json:"last_sync_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (a *MailboxAccount) OwnedBy(userID uuid.UUID) bool {
	return a != nil && a.UserID == userID
}

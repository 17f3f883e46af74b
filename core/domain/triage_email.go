package domain

import (
	"time"

	"github.com/google/uuid"
)

// EmailRecord is a message imported into the triage store. The pair
// (AccountID, SourceMessageID) is unique.
type EmailRecord struct {
	ID                   int64                `json:"id"`
	AccountID            int64                `json:"account_id"`
	UserID               uuid.UUID            `json:"user_id"`
	SourceMessageID      string               `json:"source_message_id"`
	CategoryID           *int64               `json:"category_id,omitempty"`
	Subject              string               `json:"subject"`
	Sender               string               `json:"sender"`
	ReceivedAt           time.Time            `json:"received_at"`
	Body                 string               `json:"-"`
	Summary              string               `json:"summary"`
	Actions              []string             `json:"actions"`
	ClassificationMethod ClassificationMethod `json:"classification_method"`
	ListUnsubscribe      string               `json:"list_unsubscribe,omitempty"`
	ListUnsubscribePost  string               `json:"list_unsubscribe_post,omitempty"`
	IsDeleted            bool                 `json:"is_deleted"`
	IsRead               bool                 `json:"is_read"`
	IsArchived           bool                 `json:"is_archived"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// EmailContent is the full stored content of a message, kept outside the
// relational store.
type EmailContent struct {
	EmailID             int64             `json:"email_id"`
	AccountID           int64             `json:"account_id"`
	SourceMessageID     string            `json:"source_message_id"`
	HTML                string            `json:"html,omitempty"`
	Text                string            `json:"text,omitempty"`
	Headers             map[string]string `json:"headers,omitempty"`
	ListUnsubscribe     string            `json:"list_unsubscribe,omitempty"`
	ListUnsubscribePost string            `json:"list_unsubscribe_post,omitempty"`
	StoredAt            time.Time         `json:"stored_at"`
}

// Summary is the AI digest of one message.
type Summary struct {
	Text    string   `json:"summary"`
	Actions []string `json:"actions"`
}

// FallbackSummary is used when the provider cannot summarize a message.
func FallbackSummary(sender, subject string) string {
	return "Email from " + sender + ": " + subject
}

// BatchReport is returned by one ingestion run.
type BatchReport struct {
	Imported          int      `json:"imported"`
	SkippedDuplicates int      `json:"skipped_duplicates"`
	Errors            []string `json:"errors"`
	// Warnings lists degraded stages on messages that were still imported.
	Warnings []string `json:"warnings,omitempty"`
}

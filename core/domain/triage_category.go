package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// InboxCategoryName is the fallback category. It is never offered to the
// classifier as a candidate.
const InboxCategoryName = "Inbox"

type Category struct {
	ID          int64     `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	EmailCount  int       `json:"email_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c *Category) IsInbox() bool {
	return strings.EqualFold(strings.TrimSpace(c.Name), InboxCategoryName)
}

// EmbeddingText is the text embedded to represent the category.
func (c *Category) EmbeddingText() string {
	return c.Name + "\n\n" + c.Description
}

// SplitInbox separates the Inbox category from classification candidates.
func SplitInbox(categories []*Category) (inbox *Category, candidates []*Category) {
	candidates = make([]*Category, 0, len(categories))
	for _, c := range categories {
		if c.IsInbox() {
			if inbox == nil {
				inbox = c
			}
			continue
		}
		candidates = append(candidates, c)
	}
	return inbox, candidates
}

package out

import (
	"context"
	"errors"
	"time"

	"triage_server/core/domain"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.MailboxAccount, error)
	UpdateLastSync(ctx context.Context, id int64, at time.Time) error
}

type CategoryRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Category, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Category, error)
	// EnsureInbox returns the user's Inbox category, creating it if missing.
	EnsureInbox(ctx context.Context, userID uuid.UUID) (*domain.Category, error)
	RefreshCounts(ctx context.Context, userID uuid.UUID) error
}

type EmailRepository interface {
	// ExistingSourceIDs returns the subset of sourceIDs already imported.
	ExistingSourceIDs(ctx context.Context, accountID int64, sourceIDs []string) (map[string]bool, error)
	// Create returns ErrDuplicate when (account, source id) already exists.
	Create(ctx context.Context, rec *domain.EmailRecord) error
	GetByID(ctx context.Context, id int64) (*domain.EmailRecord, error)
	MarkArchived(ctx context.Context, id int64) error
}

// EmailContentStore keeps full message content (HTML, headers).
type EmailContentStore interface {
	SaveContent(ctx context.Context, content *domain.EmailContent) error
	GetContent(ctx context.Context, emailID int64) (*domain.EmailContent, error)
}

type UnsubscribeAttemptRepository interface {
	Create(ctx context.Context, attempt *domain.UnsubscribeAttempt) error
	Update(ctx context.Context, attempt *domain.UnsubscribeAttempt) error
}

// SyncLocker serializes ingestion per account across processes.
type SyncLocker interface {
	// Acquire returns ok=false when another sync holds the lock.
	Acquire(ctx context.Context, accountID int64) (release func(), ok bool, err error)
}

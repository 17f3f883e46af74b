package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// EmailAdapter implements out.EmailRepository.
type EmailAdapter struct {
	db *sqlx.DB
}

func NewEmailAdapter(db *sqlx.DB) *EmailAdapter {
	return &EmailAdapter{db: db}
}

type emailRow struct {
	ID                   int64          `db:"id"`
	AccountID            int64          `db:"account_id"`
	UserID               uuid.UUID      `db:"user_id"`
	SourceMessageID      string         `db:"source_message_id"`
	CategoryID           sql.NullInt64  `db:"category_id"`
	Subject              string         `db:"subject"`
	Sender               string         `db:"sender"`
	ReceivedAt           time.Time      `db:"received_at"`
	Body                 string         `db:"body"`
	Summary              string         `db:"summary"`
	Actions              pq.StringArray `db:"actions"`
	ClassificationMethod string         `db:"classification_method"`
	ListUnsubscribe      string         `db:"list_unsubscribe"`
	ListUnsubscribePost  string         `db:"list_unsubscribe_post"`
	IsDeleted            bool           `db:"is_deleted"`
	IsRead               bool           `db:"is_read"`
	IsArchived           bool           `db:"is_archived"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func (r *emailRow) toDomain() *domain.EmailRecord {
	rec := &domain.EmailRecord{
		ID:                   r.ID,
		AccountID:            r.AccountID,
		UserID:               r.UserID,
		SourceMessageID:      r.SourceMessageID,
		Subject:              r.Subject,
		Sender:               r.Sender,
		ReceivedAt:           r.ReceivedAt,
		Body:                 r.Body,
		Summary:              r.Summary,
		Actions:              []string(r.Actions),
		ClassificationMethod: domain.ClassificationMethod(r.ClassificationMethod),
		ListUnsubscribe:      r.ListUnsubscribe,
		ListUnsubscribePost:  r.ListUnsubscribePost,
		IsDeleted:            r.IsDeleted,
		IsRead:               r.IsRead,
		IsArchived:           r.IsArchived,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	if r.CategoryID.Valid {
		id := r.CategoryID.Int64
		rec.CategoryID = &id
	}
	return rec
}

func (a *EmailAdapter) ExistingSourceIDs(ctx context.Context, accountID int64, sourceIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(sourceIDs) == 0 {
		return existing, nil
	}

	var found []string
	err := a.db.SelectContext(ctx, &found, `
		SELECT source_message_id FROM email_records
		WHERE account_id = $1 AND source_message_id = ANY($2)`,
		accountID, pq.Array(sourceIDs))
	if err != nil {
		return nil, fmt.Errorf("lookup imported messages: %w", err)
	}
	for _, id := range found {
		existing[id] = true
	}
	return existing, nil
}

func (a *EmailAdapter) Create(ctx context.Context, rec *domain.EmailRecord) error {
	query := `
		INSERT INTO email_records (
			account_id, user_id, source_message_id, category_id, subject, sender,
			received_at, body, summary, actions, classification_method,
			list_unsubscribe, list_unsubscribe_post, is_read, is_archived
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`

	var categoryID sql.NullInt64
	if rec.CategoryID != nil {
		categoryID = sql.NullInt64{Int64: *rec.CategoryID, Valid: true}
	}
	actions := rec.Actions
	if actions == nil {
		actions = []string{}
	}

	err := a.db.QueryRowxContext(ctx, query,
		rec.AccountID, rec.UserID, rec.SourceMessageID, categoryID, rec.Subject, rec.Sender,
		rec.ReceivedAt, rec.Body, rec.Summary, pq.StringArray(actions), string(rec.ClassificationMethod),
		rec.ListUnsubscribe, rec.ListUnsubscribePost, rec.IsRead, rec.IsArchived,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return out.ErrDuplicate
		}
		return fmt.Errorf("create email: %w", err)
	}
	return nil
}

func (a *EmailAdapter) GetByID(ctx context.Context, id int64) (*domain.EmailRecord, error) {
	query := `
		SELECT id, account_id, user_id, source_message_id, category_id, subject, sender,
		       received_at, body, summary, actions, classification_method,
		       list_unsubscribe, list_unsubscribe_post, is_deleted, is_read, is_archived,
		       created_at, updated_at
		FROM email_records
		WHERE id = $1`

	var row emailRow
	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, out.ErrNotFound
		}
		return nil, fmt.Errorf("get email: %w", err)
	}
	return row.toDomain(), nil
}

func (a *EmailAdapter) MarkArchived(ctx context.Context, id int64) error {
	res, err := a.db.ExecContext(ctx,
		`UPDATE email_records SET is_archived = true, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return out.ErrNotFound
	}
	return nil
}

// isUniqueViolation understands errors from both the pgx and lib/pq drivers.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

var _ out.EmailRepository = (*EmailAdapter)(nil)

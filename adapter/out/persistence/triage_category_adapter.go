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
	"github.com/jmoiron/sqlx"
)

// CategoryAdapter implements out.CategoryRepository.
type CategoryAdapter struct {
	db *sqlx.DB
}

func NewCategoryAdapter(db *sqlx.DB) *CategoryAdapter {
	return &CategoryAdapter{db: db}
}

type categoryRow struct {
	ID          int64     `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	EmailCount  int       `db:"email_count"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r *categoryRow) toDomain() *domain.Category {
	return &domain.Category{
		ID:          r.ID,
		UserID:      r.UserID,
		Name:        r.Name,
		Description: r.Description,
		EmailCount:  r.EmailCount,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

const categoryColumns = `id, user_id, name, description, email_count, created_at, updated_at`

func (a *CategoryAdapter) GetByID(ctx context.Context, id int64) (*domain.Category, error) {
	var row categoryRow
	err := a.db.GetContext(ctx, &row, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, out.ErrNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return row.toDomain(), nil
}

func (a *CategoryAdapter) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Category, error) {
	var rows []categoryRow
	err := a.db.SelectContext(ctx, &rows,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	categories := make([]*domain.Category, len(rows))
	for i := range rows {
		categories[i] = rows[i].toDomain()
	}
	return categories, nil
}

// EnsureInbox relies on the (user_id, lower(name)) unique index so that
// concurrent callers converge on one row.
func (a *CategoryAdapter) EnsureInbox(ctx context.Context, userID uuid.UUID) (*domain.Category, error) {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO categories (user_id, name, description)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
		userID, domain.InboxCategoryName, "Emails that do not fit any other category")
	if err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}

	var row categoryRow
	err = a.db.GetContext(ctx, &row,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = $1 AND lower(name) = lower($2)`,
		userID, domain.InboxCategoryName)
	if err != nil {
		return nil, fmt.Errorf("get inbox: %w", err)
	}
	return row.toDomain(), nil
}

func (a *CategoryAdapter) RefreshCounts(ctx context.Context, userID uuid.UUID) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE categories c
		SET email_count = (
		        SELECT count(*) FROM email_records e
		        WHERE e.category_id = c.id AND NOT e.is_deleted
		    ),
		    updated_at = now()
		WHERE c.user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("refresh category counts: %w", err)
	}
	return nil
}

var _ out.CategoryRepository = (*CategoryAdapter)(nil)

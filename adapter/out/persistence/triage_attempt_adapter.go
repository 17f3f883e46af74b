package persistence

import (
	"context"
	"fmt"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
)

// AttemptAdapter implements out.UnsubscribeAttemptRepository.
type AttemptAdapter struct {
	db *sqlx.DB
}

func NewAttemptAdapter(db *sqlx.DB) *AttemptAdapter {
	return &AttemptAdapter{db: db}
}

func (a *AttemptAdapter) Create(ctx context.Context, attempt *domain.UnsubscribeAttempt) error {
	details, err := encodeDetails(attempt.Details)
	if err != nil {
		return err
	}

	err = a.db.QueryRowxContext(ctx, `
		INSERT INTO unsubscribe_attempts (email_id, method, link, status, details, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		attempt.EmailID, string(attempt.Method), attempt.Link, string(attempt.Status),
		details, attempt.ErrorMessage,
	).Scan(&attempt.ID, &attempt.CreatedAt, &attempt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create unsubscribe attempt: %w", err)
	}
	return nil
}

func (a *AttemptAdapter) Update(ctx context.Context, attempt *domain.UnsubscribeAttempt) error {
	details, err := encodeDetails(attempt.Details)
	if err != nil {
		return err
	}

	err = a.db.QueryRowxContext(ctx, `
		UPDATE unsubscribe_attempts
		SET method = $2, link = $3, status = $4, details = $5, error_message = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		attempt.ID, string(attempt.Method), attempt.Link, string(attempt.Status),
		details, attempt.ErrorMessage,
	).Scan(&attempt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update unsubscribe attempt: %w", err)
	}
	return nil
}

func encodeDetails(details map[string]any) (string, error) {
	if len(details) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("encode attempt details: %w", err)
	}
	return string(data), nil
}

var _ out.UnsubscribeAttemptRepository = (*AttemptAdapter)(nil)

// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/crypto"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// AccountAdapter implements out.AccountRepository.
type AccountAdapter struct {
	db     *sqlx.DB
	cipher *crypto.TokenCipher
}

// NewAccountAdapter creates an account repository. cipher may be nil when
// tokens are stored in plain text.
func NewAccountAdapter(db *sqlx.DB, cipher *crypto.TokenCipher) *AccountAdapter {
	return &AccountAdapter{db: db, cipher: cipher}
}

type accountRow struct {
	ID           int64        `db:"id"`
	UserID       uuid.UUID    `db:"user_id"`
	Provider     string       `db:"provider"`
	Email        string       `db:"email"`
	AccessToken  string       `db:"access_token"`
	RefreshToken string       `db:"refresh_token"`
	ExpiresAt    sql.NullTime `db:"expires_at"`
	LastSyncAt   sql.NullTime `db:"last_sync_at"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

func (r *accountRow) toDomain(cipher *crypto.TokenCipher) *domain.MailboxAccount {
	acc := &domain.MailboxAccount{
		ID:           r.ID,
		UserID:       r.UserID,
		Provider:     domain.MailProvider(r.Provider),
		Email:        r.Email,
		AccessToken:  cipher.OpenOrPlain(r.AccessToken),
		RefreshToken: cipher.OpenOrPlain(r.RefreshToken),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.ExpiresAt.Valid {
		acc.ExpiresAt = r.ExpiresAt.Time
	}
	if r.LastSyncAt.Valid {
		t := r.LastSyncAt.Time
		acc.LastSyncAt = &t
	}
	return acc
}

func (a *AccountAdapter) GetByID(ctx context.Context, id int64) (*domain.MailboxAccount, error) {
	query := `
		SELECT id, user_id, provider, email, access_token, refresh_token,
		       expires_at, last_sync_at, created_at, updated_at
		FROM mailbox_accounts
		WHERE id = $1`

	var row accountRow
	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, out.ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return row.toDomain(a.cipher), nil
}

func (a *AccountAdapter) UpdateLastSync(ctx context.Context, id int64, at time.Time) error {
	res, err := a.db.ExecContext(ctx,
		`UPDATE mailbox_accounts SET last_sync_at = $2, updated_at = now() WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("update last sync: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return out.ErrNotFound
	}
	return nil
}

var _ out.AccountRepository = (*AccountAdapter)(nil)

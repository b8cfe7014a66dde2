package repos

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"slabtrack/internal/domain"
)

// TokenRepo stores each user's marketplace OAuth grant.
type TokenRepo struct{ db *sqlx.DB }

func NewTokenRepo(db *sqlx.DB) *TokenRepo { return &TokenRepo{db: db} }

func (r *TokenRepo) Get(ctx context.Context, userID string) (domain.MarketplaceToken, error) {
	var row struct {
		UserID       string `db:"user_id"`
		AccessToken  string `db:"access_token"`
		RefreshToken string `db:"refresh_token"`
		ExpiresAt    string `db:"expires_at"`
	}
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT user_id, access_token, refresh_token, expires_at
		FROM marketplace_tokens WHERE user_id = ?
	`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MarketplaceToken{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.MarketplaceToken{}, err
	}
	return domain.MarketplaceToken{
		UserID:       row.UserID,
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		ExpiresAt:    parseTime(row.ExpiresAt),
	}, nil
}

// Save replaces the user's grant. An empty refresh token keeps the stored one,
// since refresh responses do not always rotate it.
func (r *TokenRepo) Save(ctx context.Context, t domain.MarketplaceToken) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO marketplace_tokens(user_id, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
		  access_token = excluded.access_token,
		  refresh_token = CASE WHEN excluded.refresh_token = '' THEN marketplace_tokens.refresh_token ELSE excluded.refresh_token END,
		  expires_at = excluded.expires_at,
		  updated_at = excluded.updated_at
	`), t.UserID, t.AccessToken, t.RefreshToken, formatTime(t.ExpiresAt), formatTime(time.Now()))
	return err
}

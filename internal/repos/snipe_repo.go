package repos

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"slabtrack/internal/domain"
)

type SnipeRepo struct{ db *sqlx.DB }

func NewSnipeRepo(db *sqlx.DB) *SnipeRepo { return &SnipeRepo{db: db} }

const snipeColumns = `id, user_id, item_id, title, max_bid, current_bid, status, scheduled_for,
	bid_placed_at, bid_response, error_message, created_at, updated_at`

type snipeRow struct {
	ID           string              `db:"id"`
	UserID       string              `db:"user_id"`
	ItemID       string              `db:"item_id"`
	Title        string              `db:"title"`
	MaxBid       decimal.Decimal     `db:"max_bid"`
	CurrentBid   decimal.NullDecimal `db:"current_bid"`
	Status       string              `db:"status"`
	ScheduledFor sql.NullString      `db:"scheduled_for"`
	BidPlacedAt  sql.NullString      `db:"bid_placed_at"`
	BidResponse  sql.NullString      `db:"bid_response"`
	ErrorMessage string              `db:"error_message"`
	CreatedAt    string              `db:"created_at"`
	UpdatedAt    string              `db:"updated_at"`
}

func nullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func (r snipeRow) toDomain() domain.Snipe {
	status, ok := domain.ParseSnipeStatus(r.Status)
	if !ok {
		status = domain.SnipeStatus(r.Status)
	}
	s := domain.Snipe{
		ID:           r.ID,
		UserID:       r.UserID,
		ItemID:       r.ItemID,
		Title:        r.Title,
		MaxBid:       r.MaxBid,
		CurrentBid:   r.CurrentBid,
		Status:       status,
		ScheduledFor: nullTime(r.ScheduledFor),
		BidPlacedAt:  nullTime(r.BidPlacedAt),
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    parseTime(r.CreatedAt),
		UpdatedAt:    parseTime(r.UpdatedAt),
	}
	if r.BidResponse.Valid && r.BidResponse.String != "" {
		s.BidResponse = json.RawMessage(r.BidResponse.String)
	}
	return s
}

func (r *SnipeRepo) Create(ctx context.Context, s domain.Snipe) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO snipes(`+snipeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, '', ?, ?)
	`), s.ID, s.UserID, s.ItemID, s.Title, s.MaxBid, s.CurrentBid, string(s.Status),
		timeArg(s.ScheduledFor), formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	return err
}

// Get returns domain.ErrNotFound when the snipe does not exist.
func (r *SnipeRepo) Get(ctx context.Context, id string) (domain.Snipe, error) {
	var row snipeRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+snipeColumns+` FROM snipes WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snipe{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Snipe{}, err
	}
	return row.toDomain(), nil
}

func (r *SnipeRepo) ListByUser(ctx context.Context, userID string) ([]domain.Snipe, error) {
	var rows []snipeRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+snipeColumns+`
		FROM snipes
		WHERE user_id = ?
		ORDER BY created_at DESC
	`), userID); err != nil {
		return nil, err
	}
	return toSnipes(rows), nil
}

// ListDue returns queued snipes whose schedule has passed, oldest schedule first.
func (r *SnipeRepo) ListDue(ctx context.Context, now time.Time) ([]domain.Snipe, error) {
	var rows []snipeRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+snipeColumns+`
		FROM snipes
		WHERE status = ? AND scheduled_for IS NOT NULL AND scheduled_for <= ?
		ORDER BY scheduled_for
	`), string(domain.SnipeQueued), formatTime(now)); err != nil {
		return nil, err
	}
	return toSnipes(rows), nil
}

func toSnipes(rows []snipeRow) []domain.Snipe {
	out := make([]domain.Snipe, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}

// Transition moves the snipe to `to` only while its status is one of `from`.
// It reports false when no row matched, leaving the snipe untouched.
func (r *SnipeRepo) Transition(ctx context.Context, id string, from []domain.SnipeStatus, to domain.SnipeStatus, now time.Time) (bool, error) {
	statuses := make([]string, 0, len(from))
	for _, s := range from {
		statuses = append(statuses, string(s))
	}
	query, args, err := sqlx.In(`
		UPDATE snipes SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (?)
	`, string(to), formatTime(now), id, statuses)
	if err != nil {
		return false, err
	}
	return affected(r.db.ExecContext(ctx, r.db.Rebind(query), args...))
}

// MarkCompleted records a successful bid on a processing snipe.
func (r *SnipeRepo) MarkCompleted(ctx context.Context, id string, placedAt time.Time, response json.RawMessage) (bool, error) {
	var body any
	if len(response) > 0 {
		body = string(response)
	}
	return affected(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE snipes
		SET status = ?, bid_placed_at = ?, bid_response = ?, error_message = '', updated_at = ?
		WHERE id = ? AND status = ?
	`), string(domain.SnipeCompleted), formatTime(placedAt), body, formatTime(placedAt), id, string(domain.SnipeProcessing)))
}

// MarkFailed records a failed bid attempt on a processing snipe.
func (r *SnipeRepo) MarkFailed(ctx context.Context, id, message string, now time.Time) (bool, error) {
	return affected(r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE snipes
		SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`), string(domain.SnipeError), message, formatTime(now), id, string(domain.SnipeProcessing)))
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

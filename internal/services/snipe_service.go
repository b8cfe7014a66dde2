package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"slabtrack/internal/domain"
	applog "slabtrack/internal/log"
)

type SnipeStore interface {
	Create(ctx context.Context, s domain.Snipe) error
	Get(ctx context.Context, id string) (domain.Snipe, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Snipe, error)
	ListDue(ctx context.Context, now time.Time) ([]domain.Snipe, error)
	Transition(ctx context.Context, id string, from []domain.SnipeStatus, to domain.SnipeStatus, now time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id string, placedAt time.Time, response json.RawMessage) (bool, error)
	MarkFailed(ctx context.Context, id, message string, now time.Time) (bool, error)
}

type BidClient interface {
	PlaceBid(ctx context.Context, userID, itemID string, maxBid decimal.Decimal) (json.RawMessage, error)
}

var (
	preProcessing = []domain.SnipeStatus{domain.SnipePending, domain.SnipeQueued}
	resolvable    = []domain.SnipeStatus{domain.SnipeCompleted, domain.SnipeWon, domain.SnipeLost}
)

type SnipeService struct {
	Store SnipeStore
	Bids  BidClient
	Now   func() time.Time
}

func NewSnipeService(store SnipeStore, bids BidClient) *SnipeService {
	return &SnipeService{Store: store, Bids: bids, Now: time.Now}
}

func (s *SnipeService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

type NewSnipe struct {
	UserID       string
	ItemID       string
	Title        string
	MaxBid       decimal.Decimal
	CurrentBid   decimal.NullDecimal
	ScheduledFor *time.Time
}

// Create stores a pending snipe, or a queued one when it is scheduled for later.
func (s *SnipeService) Create(ctx context.Context, in NewSnipe) (domain.Snipe, error) {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return domain.Snipe{}, fmt.Errorf("%w: missing user", domain.ErrValidation)
	case strings.TrimSpace(in.ItemID) == "":
		return domain.Snipe{}, fmt.Errorf("%w: missing item id", domain.ErrValidation)
	case !in.MaxBid.IsPositive():
		return domain.Snipe{}, fmt.Errorf("%w: max bid must be positive", domain.ErrValidation)
	case in.CurrentBid.Valid && in.CurrentBid.Decimal.IsNegative():
		return domain.Snipe{}, fmt.Errorf("%w: current bid cannot be negative", domain.ErrValidation)
	}

	now := s.now()
	sn := domain.Snipe{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		ItemID:       strings.TrimSpace(in.ItemID),
		Title:        in.Title,
		MaxBid:       in.MaxBid,
		CurrentBid:   in.CurrentBid,
		Status:       domain.SnipePending,
		ScheduledFor: in.ScheduledFor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.ScheduledFor != nil {
		sn.Status = domain.SnipeQueued
	}
	if err := s.Store.Create(ctx, sn); err != nil {
		return domain.Snipe{}, err
	}
	return s.Store.Get(ctx, sn.ID)
}

func (s *SnipeService) Get(ctx context.Context, id string) (domain.Snipe, error) {
	return s.Store.Get(ctx, id)
}

func (s *SnipeService) ListForUser(ctx context.Context, userID string) ([]domain.Snipe, error) {
	return s.Store.ListByUser(ctx, userID)
}

// PlaceBid claims the snipe for processing and submits the bid once.
// A rejected bid is recorded on the snipe as status error; the returned error is nil in that case.
func (s *SnipeService) PlaceBid(ctx context.Context, id string) (domain.Snipe, error) {
	sn, err := s.Store.Get(ctx, id)
	if err != nil {
		return domain.Snipe{}, err
	}
	claimed, err := s.Store.Transition(ctx, id, preProcessing, domain.SnipeProcessing, s.now())
	if err != nil {
		return domain.Snipe{}, err
	}
	if !claimed {
		return s.rejected(ctx, id, "place bid")
	}

	resp, bidErr := s.Bids.PlaceBid(ctx, sn.UserID, sn.ItemID, sn.MaxBid)

	// the outcome must be recorded even if the caller has gone away
	wctx := context.WithoutCancel(ctx)
	fields := map[string]any{"snipe_id": id, "item_id": sn.ItemID, "max_bid": sn.MaxBid.String()}
	var recorded bool
	if bidErr != nil {
		applog.Warn(nil, "snipe.bid.fail", bidErr, fields)
		recorded, err = s.Store.MarkFailed(wctx, id, bidErr.Error(), s.now())
	} else {
		applog.Audit(nil, "snipe.bid.placed", fields)
		recorded, err = s.Store.MarkCompleted(wctx, id, s.now(), resp)
	}
	if err != nil {
		applog.Error(nil, "snipe.bid.record.fail", err, fields)
		return domain.Snipe{}, fmt.Errorf("record bid outcome for %s: %w", id, err)
	}
	if !recorded {
		return domain.Snipe{}, fmt.Errorf("snipe %s left processing before its bid outcome was recorded", id)
	}
	return s.Store.Get(wctx, id)
}

// Cancel is allowed only before processing starts. It never calls the marketplace.
func (s *SnipeService) Cancel(ctx context.Context, id string) (domain.Snipe, error) {
	ok, err := s.Store.Transition(ctx, id, preProcessing, domain.SnipeCancelled, s.now())
	if err != nil {
		return domain.Snipe{}, err
	}
	if !ok {
		return s.rejected(ctx, id, "cancel")
	}
	return s.Store.Get(ctx, id)
}

// Resolve records the auction outcome for a snipe whose bid was placed.
func (s *SnipeService) Resolve(ctx context.Context, id string, won bool) (domain.Snipe, error) {
	to := domain.SnipeLost
	if won {
		to = domain.SnipeWon
	}
	ok, err := s.Store.Transition(ctx, id, resolvable, to, s.now())
	if err != nil {
		return domain.Snipe{}, err
	}
	if !ok {
		return s.rejected(ctx, id, "resolve")
	}
	return s.Store.Get(ctx, id)
}

// rejected explains why a conditional transition matched no row.
func (s *SnipeService) rejected(ctx context.Context, id, op string) (domain.Snipe, error) {
	cur, err := s.Store.Get(ctx, id)
	if err != nil {
		return domain.Snipe{}, err
	}
	return cur, &domain.InvalidStateError{Op: op, Status: cur.Status}
}

// RunDue places bids for queued snipes whose schedule has passed and returns how many were attempted.
// Snipes claimed concurrently by another runner are skipped.
func (s *SnipeService) RunDue(ctx context.Context) (int, error) {
	due, err := s.Store.ListDue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	var (
		attempted int
		errs      []error
	)
	for _, sn := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		_, err := s.PlaceBid(ctx, sn.ID)
		var stateErr *domain.InvalidStateError
		switch {
		case errors.As(err, &stateErr):
			continue
		case err != nil:
			errs = append(errs, err)
			continue
		}
		attempted++
	}
	return attempted, errors.Join(errs...)
}

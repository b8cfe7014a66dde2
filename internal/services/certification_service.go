package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"slabtrack/internal/domain"
	applog "slabtrack/internal/log"
	"slabtrack/internal/psa"
)

const DefaultCertFreshness = 24 * time.Hour

type CertificationStore interface {
	Get(ctx context.Context, certNumber string) (domain.CertificationRecord, error)
	Upsert(ctx context.Context, rec domain.CertificationRecord) error
}

type GradingClient interface {
	GetCertificationByCertNumber(ctx context.Context, certNumber string) (psa.Certification, error)
	GetCertificationWithPopulation(ctx context.Context, certNumber string) (psa.Certification, error)
}

// CertificationService serves PSA certifications from the store, refetching rows older than Freshness.
type CertificationService struct {
	Store     CertificationStore
	PSA       GradingClient
	Freshness time.Duration
	// Strict surfaces refresh failures instead of serving the stale row.
	Strict bool
	Now    func() time.Time

	inflight singleflight.Group
}

func NewCertificationService(store CertificationStore, client GradingClient, freshness time.Duration, strict bool) *CertificationService {
	if freshness <= 0 {
		freshness = DefaultCertFreshness
	}
	return &CertificationService{Store: store, PSA: client, Freshness: freshness, Strict: strict, Now: time.Now}
}

func (s *CertificationService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// GetCertification returns the cached record when fresh, otherwise refreshes it from PSA.
// Concurrent refreshes of the same key share one upstream call.
func (s *CertificationService) GetCertification(ctx context.Context, certNumber string, includePopulation bool) (domain.CertificationRecord, error) {
	certNumber = strings.TrimSpace(certNumber)
	if certNumber == "" {
		return domain.CertificationRecord{}, fmt.Errorf("%w: empty cert number", domain.ErrValidation)
	}

	cached, err := s.Store.Get(ctx, certNumber)
	hasCached := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.CertificationRecord{}, err
	}
	if hasCached && cached.FreshAt(s.now(), s.Freshness) {
		return cached, nil
	}

	key := certNumber
	if includePopulation {
		key += "|pop"
	}
	// shared by every waiter, bounded by the client timeout
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.inflight.Do(key, func() (any, error) {
		return s.refresh(shared, certNumber, includePopulation)
	})
	if err == nil {
		return v.(domain.CertificationRecord), nil
	}

	upstream := errors.Is(err, domain.ErrUpstream) || errors.Is(err, domain.ErrNotFound)
	if hasCached && upstream && !s.Strict {
		applog.Warn(nil, "cert.refresh.degraded", err, map[string]any{
			"cert":       certNumber,
			"updated_at": cached.UpdatedAt,
		})
		cached.Stale = true
		return cached, nil
	}
	return domain.CertificationRecord{}, err
}

func (s *CertificationService) refresh(ctx context.Context, certNumber string, includePopulation bool) (domain.CertificationRecord, error) {
	var (
		cert psa.Certification
		err  error
	)
	if includePopulation {
		cert, err = s.PSA.GetCertificationWithPopulation(ctx, certNumber)
	} else {
		cert, err = s.PSA.GetCertificationByCertNumber(ctx, certNumber)
	}
	if err != nil {
		return domain.CertificationRecord{}, err
	}

	rec := toRecord(certNumber, cert, s.now())
	if err := s.Store.Upsert(ctx, rec); err != nil {
		return domain.CertificationRecord{}, fmt.Errorf("store cert %s: %w", certNumber, err)
	}
	applog.Info(nil, "cert.refresh", map[string]any{"cert": certNumber, "population": includePopulation})
	return rec, nil
}

func toRecord(certNumber string, c psa.Certification, now time.Time) domain.CertificationRecord {
	rec := domain.CertificationRecord{
		CertNumber:       certNumber,
		Grade:            c.Cert.CardGrade,
		GradeDescription: c.Cert.GradeDescription,
		TotalPopulation:  max(c.Cert.TotalPopulation, 0),
		PopulationHigher: max(c.Cert.PopulationHigher, 0),
		Year:             c.Cert.Year,
		Brand:            c.Cert.Brand,
		Series:           c.Cert.Category,
		CardNumber:       c.Cert.CardNumber,
		Description:      strings.TrimSpace(c.Cert.Subject + " " + c.Cert.Variety),
		UpdatedAt:        now.UTC().Truncate(time.Microsecond),
	}
	if c.Cert.SpecID != 0 {
		rec.SpecID = strconv.FormatInt(c.Cert.SpecID, 10)
	}
	if c.Population != nil {
		rec.PSA10Count = max(c.Population.Grade10, 0)
		rec.PSA9Count = max(c.Population.Grade9, 0)
	}
	return rec
}

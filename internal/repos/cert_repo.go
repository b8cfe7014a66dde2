package repos

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"slabtrack/internal/domain"
)

type CertRepo struct{ db *sqlx.DB }

func NewCertRepo(db *sqlx.DB) *CertRepo { return &CertRepo{db: db} }

type certRow struct {
	CertNumber       string `db:"cert_number"`
	SpecID           string `db:"spec_id"`
	Grade            string `db:"grade"`
	GradeDescription string `db:"grade_description"`
	TotalPopulation  int    `db:"total_population"`
	PopulationHigher int    `db:"population_higher"`
	Year             string `db:"year"`
	Brand            string `db:"brand"`
	Series           string `db:"series"`
	CardNumber       string `db:"card_number"`
	Description      string `db:"description"`
	PSA10Count       int    `db:"psa10_count"`
	PSA9Count        int    `db:"psa9_count"`
	UpdatedAt        string `db:"updated_at"`
}

func (r certRow) toDomain() domain.CertificationRecord {
	return domain.CertificationRecord{
		CertNumber:       r.CertNumber,
		SpecID:           r.SpecID,
		Grade:            r.Grade,
		GradeDescription: r.GradeDescription,
		TotalPopulation:  r.TotalPopulation,
		PopulationHigher: r.PopulationHigher,
		Year:             r.Year,
		Brand:            r.Brand,
		Series:           r.Series,
		CardNumber:       r.CardNumber,
		Description:      r.Description,
		PSA10Count:       r.PSA10Count,
		PSA9Count:        r.PSA9Count,
		UpdatedAt:        parseTime(r.UpdatedAt),
	}
}

// Get returns domain.ErrNotFound when no row exists for certNumber.
func (r *CertRepo) Get(ctx context.Context, certNumber string) (domain.CertificationRecord, error) {
	var row certRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT cert_number, spec_id, grade, grade_description, total_population, population_higher,
		       year, brand, series, card_number, description, psa10_count, psa9_count, updated_at
		FROM psa_certifications
		WHERE cert_number = ?
	`), certNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CertificationRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CertificationRecord{}, err
	}
	return row.toDomain(), nil
}

// Upsert writes rec keyed by its cert number, replacing every column.
func (r *CertRepo) Upsert(ctx context.Context, rec domain.CertificationRecord) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO psa_certifications(
		  cert_number, spec_id, grade, grade_description, total_population, population_higher,
		  year, brand, series, card_number, description, psa10_count, psa9_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cert_number) DO UPDATE SET
		  spec_id = excluded.spec_id,
		  grade = excluded.grade,
		  grade_description = excluded.grade_description,
		  total_population = excluded.total_population,
		  population_higher = excluded.population_higher,
		  year = excluded.year,
		  brand = excluded.brand,
		  series = excluded.series,
		  card_number = excluded.card_number,
		  description = excluded.description,
		  psa10_count = excluded.psa10_count,
		  psa9_count = excluded.psa9_count,
		  updated_at = excluded.updated_at
	`), rec.CertNumber, rec.SpecID, rec.Grade, rec.GradeDescription, rec.TotalPopulation, rec.PopulationHigher,
		rec.Year, rec.Brand, rec.Series, rec.CardNumber, rec.Description, rec.PSA10Count, rec.PSA9Count,
		formatTime(rec.UpdatedAt))
	return err
}

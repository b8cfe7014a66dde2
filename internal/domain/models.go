package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CertificationRecord is the cached PSA view of one graded card, keyed by cert number.
type CertificationRecord struct {
	CertNumber       string    `json:"certNumber"`
	SpecID           string    `json:"specId,omitempty"`
	Grade            string    `json:"grade"`
	GradeDescription string    `json:"gradeDescription"`
	TotalPopulation  int       `json:"totalPopulation"`
	PopulationHigher int       `json:"populationHigher"`
	Year             string    `json:"year,omitempty"`
	Brand            string    `json:"brand,omitempty"`
	Series           string    `json:"series,omitempty"`
	CardNumber       string    `json:"cardNumber,omitempty"`
	Description      string    `json:"description,omitempty"`
	PSA10Count       int       `json:"psa10Count"`
	PSA9Count        int       `json:"psa9Count"`
	UpdatedAt        time.Time `json:"updatedAt"`

	// Stale marks a record served after a failed refresh.
	Stale bool `json:"stale,omitempty"`
}

// FreshAt reports whether the record is younger than ttl at now.
func (r CertificationRecord) FreshAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.UpdatedAt) < ttl
}

type SnipeStatus string

const (
	SnipePending    SnipeStatus = "pending"
	SnipeQueued     SnipeStatus = "queued"
	SnipeProcessing SnipeStatus = "processing"
	SnipeCompleted  SnipeStatus = "completed"
	SnipeWon        SnipeStatus = "won"
	SnipeLost       SnipeStatus = "lost"
	SnipeError      SnipeStatus = "error"
	SnipeCancelled  SnipeStatus = "cancelled"
)

// ParseSnipeStatus accepts the canonical names plus the legacy "placed" and "failed" spellings.
func ParseSnipeStatus(s string) (SnipeStatus, bool) {
	switch SnipeStatus(s) {
	case SnipePending, SnipeQueued, SnipeProcessing, SnipeCompleted,
		SnipeWon, SnipeLost, SnipeError, SnipeCancelled:
		return SnipeStatus(s), true
	case "placed":
		return SnipeCompleted, true
	case "failed":
		return SnipeError, true
	}
	return "", false
}

// Terminal reports whether no bid-placement or cancel transition leaves this status.
func (s SnipeStatus) Terminal() bool {
	switch s {
	case SnipeCompleted, SnipeWon, SnipeLost, SnipeError, SnipeCancelled:
		return true
	}
	return false
}

// PreProcessing reports whether the snipe has not been picked up for bidding yet.
func (s SnipeStatus) PreProcessing() bool {
	return s == SnipePending || s == SnipeQueued
}

type Snipe struct {
	ID           string              `json:"id"`
	UserID       string              `json:"userId"`
	ItemID       string              `json:"itemId"`
	Title        string              `json:"title,omitempty"`
	MaxBid       decimal.Decimal     `json:"maxBid"`
	CurrentBid   decimal.NullDecimal `json:"currentBid"`
	Status       SnipeStatus         `json:"status"`
	ScheduledFor *time.Time          `json:"scheduledFor,omitempty"`
	BidPlacedAt  *time.Time          `json:"bidPlacedAt,omitempty"`
	BidResponse  json.RawMessage     `json:"bidResponse,omitempty"`
	ErrorMessage string              `json:"errorMessage,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

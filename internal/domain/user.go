package domain

import "time"

const (
	RoleCollector = "COLLECTOR"
	RoleAdmin     = "ADMIN"
)

type User struct {
	ID    string `db:"id" json:"id"`
	Email string `db:"email" json:"email"`
	Name  string `db:"name" json:"name"`
	Hash  string `db:"password_hash" json:"-"`
	Role  string `db:"role" json:"role"`
}

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// MarketplaceToken is a user's OAuth grant for the auction marketplace.
type MarketplaceToken struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ValidAt reports whether the access token can still be used at now, keeping a small margin.
func (t MarketplaceToken) ValidAt(now time.Time) bool {
	return t.AccessToken != "" && now.Add(time.Minute).Before(t.ExpiresAt)
}

package repos

import (
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" for hosted Postgres DSNs
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// rows written by hand or by older tooling
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func driverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "pgx"
	}
	return "sqlite"
}

func OpenDB(dsn string) (*sqlx.DB, error) {
	driver := driverFor(dsn)
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if strings.Contains(dsn, ":memory:") {
		// every sqlite connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	if err := ensureSchema(db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users(
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL CHECK (role IN ('COLLECTOR','ADMIN')),
  created_at TEXT
)`,
	`CREATE TABLE IF NOT EXISTS sessions(
  id TEXT PRIMARY KEY,
  user_id TEXT NULL REFERENCES users(id) ON DELETE SET NULL,
  created_at TEXT,
  last_seen TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,

	// one row per certificate; refreshed in place
	`CREATE TABLE IF NOT EXISTS psa_certifications(
  cert_number TEXT PRIMARY KEY,
  spec_id TEXT NOT NULL DEFAULT '',
  grade TEXT NOT NULL DEFAULT '',
  grade_description TEXT NOT NULL DEFAULT '',
  total_population INTEGER NOT NULL DEFAULT 0 CHECK (total_population >= 0),
  population_higher INTEGER NOT NULL DEFAULT 0 CHECK (population_higher >= 0),
  year TEXT NOT NULL DEFAULT '',
  brand TEXT NOT NULL DEFAULT '',
  series TEXT NOT NULL DEFAULT '',
  card_number TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  psa10_count INTEGER NOT NULL DEFAULT 0 CHECK (psa10_count >= 0),
  psa9_count INTEGER NOT NULL DEFAULT 0 CHECK (psa9_count >= 0),
  updated_at TEXT NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS snipes(
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id),
  item_id TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  max_bid TEXT NOT NULL,
  current_bid TEXT NULL,
  status TEXT NOT NULL CHECK (status IN ('pending','queued','processing','completed','won','lost','error','cancelled')),
  scheduled_for TEXT NULL,
  bid_placed_at TEXT NULL,
  bid_response TEXT NULL,
  error_message TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_snipes_user ON snipes(user_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_snipes_due ON snipes(status, scheduled_for)`,

	`CREATE TABLE IF NOT EXISTS marketplace_tokens(
  user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
  access_token TEXT NOT NULL,
  refresh_token TEXT NOT NULL,
  expires_at TEXT NOT NULL,
  updated_at TEXT
)`,
}

func ensureSchema(db *sqlx.DB, driver string) error {
	if driver == "sqlite" {
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			return err
		}
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

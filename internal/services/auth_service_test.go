package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"slabtrack/internal/repos"
	"slabtrack/internal/services"
)

func TestSeedDemoStoresHashedPasswords(t *testing.T) {
	db := memdb(t)
	auth := services.NewAuthService(repos.NewUserRepo(db))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := auth.SeedDemo(ctx, bcrypt.MinCost); err != nil {
			t.Fatalf("seed run %d: %v", i, err)
		}
	}

	var hashes []string
	if err := db.Select(&hashes, `SELECT password_hash FROM users`); err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 2 {
		t.Fatalf("want 2 seeded users, got %d", len(hashes))
	}
	for _, h := range hashes {
		if strings.Contains(h, "Passw0rd!") || !strings.HasPrefix(h, "$2") {
			t.Fatalf("unexpected hash format: %s", h)
		}
	}

	u, err := auth.Login(ctx, "sid-1", "admin@slabtrack.test", "Passw0rd!")
	if err != nil {
		t.Fatal(err)
	}
	if !u.IsAdmin() {
		t.Fatalf("seeded admin has role %s", u.Role)
	}
	cur, err := auth.CurrentUser(ctx, "sid-1")
	if err != nil || cur.ID != "u-admin" {
		t.Fatalf("session not bound: %+v %v", cur, err)
	}
	if _, err := auth.Login(ctx, "sid-2", "admin@slabtrack.test", "Wr0ngPass!"); !errors.Is(err, services.ErrBadCreds) {
		t.Fatalf("want ErrBadCreds, got %v", err)
	}
}

package services

import (
	"context"
	"errors"
	"log"

	"slabtrack/internal/domain"
	"slabtrack/internal/repos"

	"golang.org/x/crypto/bcrypt"
)

var ErrBadCreds = errors.New("invalid email or password")

type AuthService struct {
	Users *repos.UserRepo
}

func NewAuthService(users *repos.UserRepo) *AuthService { return &AuthService{Users: users} }

// Register stores a collector with a bcrypt hash of password.
func (s *AuthService) Register(ctx context.Context, u domain.User, password string, cost int) error {
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return err
	}
	u.Hash = string(h)
	if u.Role == "" {
		u.Role = domain.RoleCollector
	}
	return s.Users.Create(ctx, u)
}

func (s *AuthService) Login(ctx context.Context, sid, email, password string) (*domain.User, error) {
	u, err := s.Users.ByEmail(ctx, email)
	if err != nil {
		return nil, ErrBadCreds
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)) != nil {
		return nil, ErrBadCreds
	}
	if err := s.Users.BindSession(ctx, sid, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *AuthService) Logout(ctx context.Context, sid string) error {
	return s.Users.UnbindSession(ctx, sid)
}

func (s *AuthService) CurrentUser(ctx context.Context, sid string) (*domain.User, error) {
	return s.Users.SessionUser(ctx, sid)
}

// SeedDemo registers a demo collector and admin with password "Passw0rd!". Existing emails are left alone.
func (s *AuthService) SeedDemo(ctx context.Context, cost int) error {
	seed := []domain.User{
		{ID: "u-collector", Email: "collector@slabtrack.test", Name: "Collector", Role: domain.RoleCollector},
		{ID: "u-admin", Email: "admin@slabtrack.test", Name: "Admin", Role: domain.RoleAdmin},
	}
	for _, u := range seed {
		if err := s.Register(ctx, u, "Passw0rd!", cost); err != nil {
			return err
		}
	}
	log.Println("[seed] demo users ensured")
	return nil
}

package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/jmoiron/sqlx"

	"slabtrack/internal/config"
	applog "slabtrack/internal/log"
	"slabtrack/internal/repos"
	"slabtrack/internal/services"
)

// MarketClient places bids and links accounts; *ebay.Client satisfies it.
type MarketClient interface {
	services.BidClient
	Marketplace
}

type Deps struct {
	Auth          *services.AuthService
	AuthHandler   *AuthHandler
	CertHandler   *CertHandler
	SnipeHandler  *SnipeHandler
	EbayHandler   *EbayHandler
	Certification *services.CertificationService
	Snipes        *services.SnipeService
}

func NewDeps(db *sqlx.DB, cfg config.Config, auth *services.AuthService, grading services.GradingClient, market MarketClient) *Deps {
	certSvc := services.NewCertificationService(repos.NewCertRepo(db), grading, cfg.CertFreshness, cfg.CertStrict)
	snipeSvc := services.NewSnipeService(repos.NewSnipeRepo(db), market)

	return &Deps{
		Auth:          auth,
		AuthHandler:   &AuthHandler{Auth: auth},
		CertHandler:   &CertHandler{Certs: certSvc},
		SnipeHandler:  &SnipeHandler{Snipes: snipeSvc},
		EbayHandler:   &EbayHandler{Market: market},
		Certification: certSvc,
		Snipes:        snipeSvc,
	}
}

// Mount registers the session and API routes on r.
func (d *Deps) Mount(r fiber.Router) {
	r.Post("/login", limiter.New(limiter.Config{
		Max:        5,
		Expiration: 10 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.login.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many attempts. Please try again later."})
		},
	}), d.AuthHandler.Login)
	r.Post("/logout", d.AuthHandler.Logout)

	api := r.Group("/api/v1")
	api.Get("/certs/:cert", limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|certs"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.certs.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	}), d.CertHandler.Get)

	user := RequireUser(d.Auth)
	api.Get("/snipes", user, d.SnipeHandler.List)
	api.Post("/snipes", user, d.SnipeHandler.Create)
	api.Get("/snipes/export.xlsx", user, d.SnipeHandler.Export)
	api.Get("/snipes/:id", user, d.SnipeHandler.Get)
	api.Post("/snipes/:id/bid", user, d.SnipeHandler.Bid)
	api.Post("/snipes/:id/cancel", user, d.SnipeHandler.Cancel)
	api.Get("/ebay/connect", user, d.EbayHandler.Connect)
	api.Get("/ebay/callback", user, d.EbayHandler.Callback)

	admin := api.Group("/admin", RequireAdmin(d.Auth))
	admin.Post("/snipes/:id/resolve", d.SnipeHandler.Resolve)
}

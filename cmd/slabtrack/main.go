package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"slabtrack/internal/config"
	"slabtrack/internal/ebay"
	"slabtrack/internal/http/handlers"
	applog "slabtrack/internal/log"
	"slabtrack/internal/psa"
	"slabtrack/internal/repos"
	"slabtrack/internal/services"
)

func main() {
	cfg := config.Load()
	if err := applog.Configure(cfg.LogLevel, cfg.LogFile, cfg.LogMaxAgeDays); err != nil {
		log.Printf("[warn] %v, keeping defaults", err)
	}

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	authSvc := services.NewAuthService(repos.NewUserRepo(db))
	if cfg.SeedDemo {
		if err := authSvc.SeedDemo(context.Background(), 12); err != nil {
			log.Fatal(err)
		}
	}
	psaClient := psa.New(psa.Options{
		BaseURL: cfg.PSABaseURL,
		Token:   cfg.PSAToken,
		Timeout: cfg.HTTPTimeout,
		RPS:     cfg.PSARPS,
	})
	ebayClient := ebay.New(ebay.Options{
		APIURL:       cfg.EbayAPIURL,
		AuthURL:      cfg.EbayAuthURL,
		ClientID:     cfg.EbayClientID,
		ClientSecret: cfg.EbayClientSecret,
		RuName:       cfg.EbayRuName,
		Marketplace:  cfg.EbayMarketplace,
		Timeout:      cfg.HTTPTimeout,
	}, repos.NewTokenRepo(db))

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	app.Server().MaxRequestBodySize = 1 << 20 // 1 MiB

	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(helmet.New())
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.global.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	}))
	app.Use(csrf.New(csrf.Config{
		KeyLookup:      "header:X-Csrf-Token",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		CookieSecure:   false, // set true behind HTTPS
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Security(c, "csrf.fail", nil)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Security check failed. Please refresh and try again."})
		},
	}))

	deps := handlers.NewDeps(db, cfg, authSvc, psaClient, ebayClient)
	deps.Mount(app)

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	})

	applog.Info(nil, "server.start", map[string]any{"port": cfg.Port})
	log.Fatal(app.Listen(":" + cfg.Port))
}

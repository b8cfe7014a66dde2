// Command snipe-runner places bids for queued snipes that are due, then exits.
// Run it from cron or a similar scheduler.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"slabtrack/internal/config"
	"slabtrack/internal/ebay"
	applog "slabtrack/internal/log"
	"slabtrack/internal/repos"
	"slabtrack/internal/services"
)

func main() {
	cfg := config.Load()
	if err := applog.Configure(cfg.LogLevel, cfg.LogFile, cfg.LogMaxAgeDays); err != nil {
		log.Printf("[warn] %v, keeping defaults", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	bids := ebay.New(ebay.Options{
		APIURL:       cfg.EbayAPIURL,
		AuthURL:      cfg.EbayAuthURL,
		ClientID:     cfg.EbayClientID,
		ClientSecret: cfg.EbayClientSecret,
		RuName:       cfg.EbayRuName,
		Marketplace:  cfg.EbayMarketplace,
		Timeout:      cfg.HTTPTimeout,
	}, repos.NewTokenRepo(db))
	snipes := services.NewSnipeService(repos.NewSnipeRepo(db), bids)

	n, err := snipes.RunDue(ctx)
	applog.Info(nil, "runner.done", map[string]any{"attempted": n})
	if err != nil {
		applog.Error(nil, "runner.fail", err, nil)
		db.Close()
		os.Exit(1)
	}
}

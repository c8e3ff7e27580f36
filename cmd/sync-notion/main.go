package main

import (
	"context"
	"flag"
	"time"

	"github.com/dvloznov/kyc-ledger/internal/app"
	"github.com/dvloznov/kyc-ledger/internal/config"
	"github.com/dvloznov/kyc-ledger/internal/logger"
	"github.com/dvloznov/kyc-ledger/internal/notionsync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := app.NewLogger(&config.Config{})
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Parse CLI flags
	notionToken := flag.String("notion-token", cfg.NotionToken, "Notion API token (or NOTION_TOKEN)")
	notionDBID := flag.String("notion-db-id", cfg.NotionDatabaseID, "Notion clients database ID (or NOTION_DATABASE_ID)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	prune := flag.Bool("prune", false, "Archive pages of clients no longer in the ledger")
	withNetWorth := flag.Bool("net-worth", false, "Ask the extraction service for the net worth breakdown instead of using ledger totals only")
	flag.Parse()

	cfg.NotionToken, cfg.NotionDatabaseID = *notionToken, *notionDBID
	log := app.NewLogger(cfg)
	if err := cfg.RequireNotion(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	opts := []app.Option{}
	if !*withNetWorth {
		opts = append(opts, app.Offline())
	}
	a, err := app.Build(ctx, cfg, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()
	ctx = logger.WithContext(ctx, a.Log)

	stats, err := notionsync.SyncClients(ctx, a.Ledger, a.NetWorth, notionsync.NewNotionClient(cfg.NotionToken), cfg.NotionDatabaseID, notionsync.Options{
		DryRun: *dryRun,
		Prune:  *prune,
	})
	if err != nil {
		a.Log.Fatal().Err(err).Msg("Notion sync failed")
	}
	if stats.Failed > 0 {
		a.Log.Warn().Int("failed", stats.Failed).Msg("Some client pages could not be synced")
	}
}

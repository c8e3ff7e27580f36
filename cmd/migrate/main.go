package main

import (
	"context"
	"flag"
	"os"

	"cloud.google.com/go/bigquery"
	infraBQ "github.com/dvloznov/kyc-ledger/internal/infra/bigquery"
	"github.com/dvloznov/kyc-ledger/internal/logger"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	var (
		projectID     = flag.String("project", os.Getenv("BIGQUERY_PROJECT"), "GCP project ID (required)")
		datasetID     = flag.String("dataset", envOr("BIGQUERY_DATASET", "kyc"), "BigQuery dataset ID")
		appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		migrationsDir = flag.String("migrations", "", "Directory of migration files (defaults to the embedded set)")
	)
	flag.Parse()

	log := logger.New()
	ctx := logger.WithContext(context.Background(), log)

	if *projectID == "" {
		log.Fatal().Msg("-project flag or BIGQUERY_PROJECT is required")
	}

	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	migrations := infraBQ.EmbeddedMigrations()
	if *migrationsDir != "" {
		migrations = os.DirFS(*migrationsDir)
	}

	applied, err := infraBQ.NewMigrator(client, *datasetID, *appliedBy).Apply(ctx, migrations)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	if applied == 0 {
		log.Info().Msg("No new migrations to apply. Dataset is up to date.")
		return
	}
	log.Info().Int("applied", applied).Msg("Migrations applied")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/kyc-ledger/internal/app"
	"github.com/dvloznov/kyc-ledger/internal/config"
	"github.com/dvloznov/kyc-ledger/internal/gcsstore"
	"github.com/dvloznov/kyc-ledger/internal/jobs"
	"github.com/dvloznov/kyc-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/kyc-ledger/internal/logger"
	"github.com/dvloznov/kyc-ledger/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := app.NewLogger(&config.Config{})
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	var (
		prefix = flag.String("prefix", "", "gs:// prefix to scan for text documents (defaults to gs://$DOCUMENTS_BUCKET/)")
		poll   = flag.Duration("poll", 0, "Rescan interval; 0 processes the current documents once and exits")
	)
	flag.Parse()

	log := app.NewLogger(cfg)
	if err := cfg.RequireDocuments(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if *prefix == "" {
		*prefix = gcsstore.URI(cfg.DocumentsBucket, "")
	}

	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, app.WithRunTracking())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()
	log = a.Log
	ctx = logger.WithContext(ctx, log)

	client, err := a.Storage(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	documents := gcsstore.NewDocuments(client)
	processor := worker.NewProcessor(documents, a.Analyzer, gcsstore.NewResultArchive(client, cfg.ResultsBucket, cfg.ResultsPrefix))

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore, inmemory.WithWorkers(cfg.WorkerCount))
	if err := jobQueue.Start(ctx, processor.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Str("prefix", *prefix).Int("workers", cfg.WorkerCount).Dur("poll", *poll).Msg("Worker service started")

	seen := make(map[string]bool)
	for {
		if err := scan(ctx, documents, jobQueue, jobStore, *prefix, seen); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Scan failed")
		}
		if *poll <= 0 || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(*poll):
		}
	}

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

// scan enqueues every unseen document under prefix and waits for the batch.
func scan(ctx context.Context, documents *gcsstore.Documents, queue jobs.Publisher, store jobs.JobStore, prefix string, seen map[string]bool) error {
	log := logger.FromContext(ctx)

	uris, err := documents.List(ctx, prefix)
	if err != nil {
		return err
	}

	var ids []string
	for _, uri := range uris {
		if seen[uri] {
			continue
		}
		seen[uri] = true

		job := &jobs.AnalyzeDocumentJob{DocumentURI: uri}
		if err := queue.PublishAnalyzeDocument(ctx, job); err != nil {
			return err
		}
		ids = append(ids, job.JobID)
	}
	if len(ids) == 0 {
		log.Debug().Msg("No new documents")
		return nil
	}
	log.Info().Int("documents", len(ids)).Msg("Enqueued documents")

	done, err := worker.WaitForJobs(ctx, store, ids, time.Second)
	if err != nil {
		return err
	}

	failed := 0
	for _, job := range done {
		if job.Status == jobs.JobStatusFailed {
			failed++
			log.Warn().Str("document_uri", job.DocumentURI).Str("error", job.Error).Msg("Document failed")
			continue
		}
		log.Info().Str("document_uri", job.DocumentURI).Str("result_uri", job.ResultURI).Msg("Document analyzed")
	}
	log.Info().Int("completed", len(done)-failed).Int("failed", failed).Msg("Batch finished")
	return nil
}

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/kyc-ledger/internal/api/handlers"
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

	port := flag.String("port", cfg.Port, "HTTP server port")
	flag.Parse()

	ctx := context.Background()

	a, err := app.Build(ctx, cfg, app.WithRunTracking())
	if err != nil {
		log := app.NewLogger(cfg)
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()
	log := a.Log
	ctx = logger.WithContext(ctx, log)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore, inmemory.WithWorkers(cfg.WorkerCount))

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	var publisher jobs.Publisher
	if client, err := a.Storage(ctx); err != nil {
		log.Warn().Err(err).Msg("No GCS access - document enqueueing is disabled")
	} else {
		var archive worker.Archiver
		if cfg.ResultsBucket != "" {
			archive = gcsstore.NewResultArchive(client, cfg.ResultsBucket, cfg.ResultsPrefix)
		} else {
			log.Warn().Msg("No RESULTS_BUCKET configured - enqueued analysis results will not be archived")
		}
		processor := worker.NewProcessor(gcsstore.NewDocuments(client), a.Analyzer, archive)

		log.Info().Int("workers", cfg.WorkerCount).Msg("Starting job workers")
		if err := jobQueue.Start(workerCtx, processor.Handle); err != nil {
			log.Fatal().Err(err).Msg("Failed to start job workers")
		}
		publisher = jobQueue
	}

	handler := handlers.Router{
		Documents: handlers.NewDocumentsHandler(a.Analyzer, publisher),
		Clients:   handlers.NewClientsHandler(a.Ledger, a.NetWorth),
		Jobs:      handlers.NewJobsHandler(jobStore),
		APIToken:  cfg.APIToken,
	}.Handler(log)

	// Analysis runs several model calls; the write timeout covers the slowest
	// sequential pipeline.
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * cfg.ExtractionTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Str("ledger_backend", cfg.LedgerBackend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}

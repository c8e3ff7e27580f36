// Package app wires configuration into the ledger, extraction service and
// pipeline shared by every binary.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/kyc-ledger/internal/config"
	"github.com/dvloznov/kyc-ledger/internal/extraction"
	"github.com/dvloznov/kyc-ledger/internal/gcsstore"
	infraBQ "github.com/dvloznov/kyc-ledger/internal/infra/bigquery"
	"github.com/dvloznov/kyc-ledger/internal/ledger"
	"github.com/dvloznov/kyc-ledger/internal/logger"
	"github.com/dvloznov/kyc-ledger/internal/networth"
	"github.com/dvloznov/kyc-ledger/internal/pipeline"
	"github.com/dvloznov/kyc-ledger/internal/sqlitestore"
	"github.com/rs/zerolog"
)

// App holds the wired components. Fields that a command did not ask for are nil.
type App struct {
	Config *config.Config
	Log    zerolog.Logger

	Ledger   *ledger.Ledger
	Service  extraction.Service
	NetWorth *networth.Calculator
	Analyzer *pipeline.Analyzer
	Runs     *infraBQ.RunRepository

	storage *storage.Client
	closers []func() error
}

type options struct {
	offline bool
	runs    bool
}

// Option customizes Build.
type Option func(*options)

// Offline skips the extraction service. Net worth is computed from ledger
// totals only and no Analyzer is built.
func Offline() Option {
	return func(o *options) { o.offline = true }
}

// WithRunTracking opens the BigQuery run repository when BIGQUERY_PROJECT is
// set and, unless offline, records every analysis in it.
func WithRunTracking() Option {
	return func(o *options) { o.runs = true }
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
}

// Build validates cfg and wires every component. Call Close when done.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	validate := cfg.Validate
	if o.offline {
		validate = cfg.ValidateLedger
	}
	if err := validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: NewLogger(cfg)}
	ctx = logger.WithContext(ctx, a.Log)

	store, err := a.ledgerStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Ledger = ledger.New(store)

	if !o.offline {
		registry, err := extraction.DefaultRegistry()
		if err != nil {
			a.Close()
			return nil, err
		}
		gemini, err := extraction.NewGeminiService(ctx, extraction.GeminiConfig{
			APIKey:   cfg.GeminiAPIKey,
			Project:  cfg.VertexProject,
			Location: cfg.VertexLocation,
			Model:    cfg.Model,
		}, registry)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Service = extraction.WithLogging(extraction.WithTimeout(gemini, cfg.ExtractionTimeout))
	}

	a.NetWorth = networth.New(a.Ledger, a.Service,
		networth.WithDefaultCurrency(cfg.TargetCurrency),
		networth.WithConcurrency(cfg.WorkerCount),
	)

	if o.runs && cfg.BigQueryProject != "" {
		runs, err := infraBQ.NewRunRepository(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Runs = runs
		a.closers = append(a.closers, runs.Close)
	}

	if o.offline {
		return a, nil
	}

	analyzerOpts := []pipeline.Option{pipeline.WithParallelStages(cfg.ParallelStages)}
	if a.Runs != nil {
		analyzerOpts = append(analyzerOpts, pipeline.WithRunRecorder(a.Runs))
	}

	a.Analyzer, err = pipeline.NewAnalyzer(a.Service, a.Ledger, a.NetWorth, analyzerOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) ledgerStore(ctx context.Context) (ledger.Store, error) {
	switch a.Config.LedgerBackend {
	case config.BackendGCS:
		client, err := a.Storage(ctx)
		if err != nil {
			return nil, err
		}
		return gcsstore.NewLedgerStore(client, a.Config.LedgerBucket, a.Config.LedgerPrefix), nil
	case config.BackendSQLite:
		s, err := sqlitestore.Open(a.Config.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		a.Log.Warn().Msg("Using in-memory ledger; records are lost on exit")
		return nil, nil
	}
}

// Storage returns the shared GCS client, creating it on first use.
func (a *App) Storage(ctx context.Context) (*storage.Client, error) {
	if a.storage != nil {
		return a.storage, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	a.storage = client
	a.closers = append(a.closers, client.Close)
	return client, nil
}

// Close releases every client opened by Build, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

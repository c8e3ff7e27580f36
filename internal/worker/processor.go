// Package worker turns queued document jobs into ledger updates.
package worker

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/gcsstore"
	"github.com/dvloznov/kyc-ledger/internal/jobs"
	"github.com/dvloznov/kyc-ledger/internal/logger"
	"github.com/dvloznov/kyc-ledger/internal/pipeline"
)

// Fetcher loads the text of a document URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (string, error)
}

// Analyzer runs the document pipeline.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, text, documentName string) domain.DocumentAnalysisResult
}

// Archiver stores a finished analysis and returns where it went.
type Archiver interface {
	Save(ctx context.Context, result domain.DocumentAnalysisResult) (string, error)
}

var (
	_ Fetcher  = (*gcsstore.Documents)(nil)
	_ Analyzer = (*pipeline.Analyzer)(nil)
	_ Archiver = (*gcsstore.ResultArchive)(nil)
)

// Processor handles AnalyzeDocumentJob values pulled from a queue.
type Processor struct {
	fetcher  Fetcher
	analyzer Analyzer
	archive  Archiver
}

// NewProcessor wires a processor. archive may be nil when results are not kept.
func NewProcessor(fetcher Fetcher, analyzer Analyzer, archive Archiver) *Processor {
	return &Processor{fetcher: fetcher, analyzer: analyzer, archive: archive}
}

// Handle implements jobs.JobHandler.
//
// A missing document or a configuration failure is permanent. Transport and
// timeout failures are returned as-is so the queue retries them.
func (p *Processor) Handle(ctx context.Context, job jobs.Job) error {
	analyzeJob, ok := job.(*jobs.AnalyzeDocumentJob)
	if !ok {
		return jobs.Permanent(fmt.Errorf("unexpected job type: %T", job))
	}

	log := logger.FromContext(ctx).With().
		Str("job_id", analyzeJob.JobID).
		Str("document_uri", analyzeJob.DocumentURI).
		Logger()
	ctx = logger.WithContext(ctx, log)

	name := analyzeJob.DocumentName
	if name == "" {
		name = pipeline.DocumentNameFromURI(analyzeJob.DocumentURI)
		analyzeJob.DocumentName = name
	}

	log.Info().Msg("Processing analysis job")

	text, err := p.fetcher.Fetch(ctx, analyzeJob.DocumentURI)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return jobs.Permanent(err)
	}
	if err != nil {
		return err
	}

	result := p.analyzer.AnalyzeDocument(ctx, text, name)
	analyzeJob.RunID = result.RunID

	if p.archive != nil {
		uri, err := p.archive.Save(ctx, result)
		if err != nil {
			log.Error().Err(err).Str("run_id", result.RunID).Msg("Failed to archive analysis result")
		} else {
			analyzeJob.ResultURI = uri
		}
	}

	if !result.Failed() {
		log.Info().Str("run_id", result.RunID).Str("result_uri", analyzeJob.ResultURI).Msg("Analysis job completed")
		return nil
	}

	err = fmt.Errorf("analysis of %s failed (%s): %s", name, result.ErrorType, result.Error)
	switch result.ErrorType {
	case pipeline.ErrorTypeTransport, pipeline.ErrorTypeTimeout:
		return err
	default:
		return jobs.Permanent(err)
	}
}

// Package pipeline turns one KYC document into ledger updates and a
// DocumentAnalysisResult.
//
// Each document runs through an explicit, validated step list:
// language detection, translation, client identification and
// classification (optionally in parallel), financial overview, ledger
// update and per-client net worth.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/extraction"
	"github.com/dvloznov/kyc-ledger/internal/ledger"
	"github.com/dvloznov/kyc-ledger/internal/logger"
	"github.com/google/uuid"
)

// Analyzer is the top-level entry point for document analysis.
type Analyzer struct {
	stages   *Stages
	ledger   *ledger.Ledger
	recorder RunRecorder
	parallel bool
	now      func() time.Time
	pipeline *Pipeline
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithParallelStages runs client identification and classification
// concurrently.
func WithParallelStages(enabled bool) Option {
	return func(a *Analyzer) { a.parallel = enabled }
}

// WithRunRecorder records every run and its stage outputs.
func WithRunRecorder(r RunRecorder) Option {
	return func(a *Analyzer) { a.recorder = r }
}

// WithClock overrides the time source for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer wires the default step list over svc, l and calc.
func NewAnalyzer(svc extraction.Service, l *ledger.Ledger, calc NetWorthCalculator, opts ...Option) (*Analyzer, error) {
	if svc == nil {
		return nil, fmt.Errorf("%w: extraction service is required", extraction.ErrConfiguration)
	}
	if l == nil {
		return nil, errors.New("pipeline: ledger is required")
	}
	if calc == nil {
		return nil, errors.New("pipeline: net worth calculator is required")
	}

	a := &Analyzer{
		stages: NewStages(svc),
		ledger: l,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}

	identify := PipelineStep(&IdentifyClientStep{stages: a.stages})
	classify := PipelineStep(&ClassifyStep{stages: a.stages})
	steps := []PipelineStep{
		&DetectLanguageStep{stages: a.stages},
		&TranslateStep{stages: a.stages},
	}
	if a.parallel {
		steps = append(steps, NewParallelStep(identify, classify))
	} else {
		steps = append(steps, identify, classify)
	}
	steps = append(steps,
		&OverviewStep{stages: a.stages},
		&LedgerUpdateStep{ledger: l},
		&NetWorthStep{calc: calc},
	)

	p, err := NewPipeline(steps...)
	if err != nil {
		return nil, err
	}
	a.pipeline = p
	return a, nil
}

// Stages exposes the individual stages for callers that run them outside
// the default flow.
func (a *Analyzer) Stages() *Stages {
	return a.stages
}

// AnalyzeDocument processes one document. It never returns an error and
// never panics: failures are reported through the result's status, error
// and error type.
func (a *Analyzer) AnalyzeDocument(ctx context.Context, text, documentName string) (result domain.DocumentAnalysisResult) {
	runID := uuid.NewString()
	ctx = logger.WithDocument(ctx, documentName, runID)
	log := logger.FromContext(ctx)
	started := a.now()

	log.Info().Int("chars", len(text)).Msg("Starting document analysis")
	a.startRun(ctx, runID, documentName, started)

	state := NewPipelineState(runID, documentName, text)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrPanic, r)
			log.Error().Err(err).Str("stack", string(debug.Stack())).Msg("Recovered panic during analysis")
			result = a.failed(ctx, state, started, err)
		}
	}()

	if err := a.pipeline.Execute(ctx, state); err != nil {
		log.Error().Err(err).Str("error_type", ErrorType(err)).Msg("Document analysis failed")
		return a.failed(ctx, state, started, err)
	}

	result = domain.DocumentAnalysisResult{
		RunID:             runID,
		DocumentName:      documentName,
		Status:            domain.StatusCompleted,
		Language:          &state.Language,
		DocumentType:      state.DocumentType,
		ClientInformation: &state.Client,
		FinancialData:     state.Overview,
		NetWorth:          state.NetWorth,
		Warnings:          state.Warnings(),
		StartedAt:         started,
		CompletedAt:       a.now(),
	}
	a.finishRun(ctx, state, result, nil)

	log.Info().
		Str("document_type", string(result.DocumentType)).
		Int("clients", len(state.ClientNames)).
		Str("combined_net_worth", result.NetWorth.CombinedNetWorth.String()).
		Msg("Document analysis completed")
	return result
}

func (a *Analyzer) failed(ctx context.Context, state *PipelineState, started time.Time, err error) domain.DocumentAnalysisResult {
	result := domain.DocumentAnalysisResult{
		RunID:        state.RunID,
		DocumentName: state.DocumentName,
		Status:       domain.StatusFailed,
		Warnings:     state.Warnings(),
		Error:        err.Error(),
		ErrorType:    ErrorType(err),
		StartedAt:    started,
		CompletedAt:  a.now(),
	}
	if state.Has(FieldLanguage) {
		lang := state.Language
		result.Language = &lang
	}
	a.finishRun(ctx, state, result, err)
	return result
}

func (a *Analyzer) startRun(ctx context.Context, runID, documentName string, started time.Time) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.StartRun(ctx, runID, documentName, started); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to record run start")
	}
}

// finishRun stores stage outputs and the final status. It uses a context
// detached from cancellation so a canceled analysis is still recorded.
func (a *Analyzer) finishRun(ctx context.Context, state *PipelineState, result domain.DocumentAnalysisResult, runErr error) {
	if a.recorder == nil {
		return
	}
	log := logger.FromContext(ctx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	for _, out := range state.Outputs() {
		if err := a.recorder.InsertStageOutput(ctx, state.RunID, out); err != nil {
			log.Warn().Err(err).Str("stage", out.Stage).Msg("Failed to record stage output")
		}
	}
	if runErr != nil {
		a.recorder.MarkRunFailed(ctx, state.RunID, runErr)
		return
	}
	if err := a.recorder.MarkRunSucceeded(ctx, state.RunID, result); err != nil {
		log.Warn().Err(err).Msg("Failed to record run completion")
	}
}

// IngestAssets runs the asset stage on a document and appends its items to
// key. It returns the stage output.
func (a *Analyzer) IngestAssets(ctx context.Context, key domain.ClientKey, text, documentName string, docType domain.DocumentCategory) (AssetExtraction, error) {
	if err := checkIngestKey(key); err != nil {
		return AssetExtraction{}, err
	}
	out, err := a.stages.ExtractAssets(ctx, text, docType, "").Get()
	if err != nil {
		return AssetExtraction{}, err
	}
	src := domain.SourceRef{DocumentName: documentName, Stage: StageAssets, ExtractedAt: a.ledger.Now()}
	entries := itemEntries(out.Items, out.Currency, docType.EntryTag(), src)
	if err := a.ledger.MergeClientData(ctx, key, ledger.KindAssets, entries); err != nil {
		return out, err
	}
	err = a.ledger.RecordEvent(ctx, key, domain.EventAssetUpdate, map[string]string{
		"document_name": documentName,
		"items":         fmt.Sprint(len(entries)),
	})
	return out, err
}

// IngestLiabilities runs the liability stage on a document and appends its
// items to key. Values are stored as absolute amounts.
func (a *Analyzer) IngestLiabilities(ctx context.Context, key domain.ClientKey, text, documentName string, docType domain.DocumentCategory) (LiabilityExtraction, error) {
	if err := checkIngestKey(key); err != nil {
		return LiabilityExtraction{}, err
	}
	out, err := a.stages.ExtractLiabilities(ctx, text, docType, "").Get()
	if err != nil {
		return LiabilityExtraction{}, err
	}
	src := domain.SourceRef{DocumentName: documentName, Stage: StageLiabilities, ExtractedAt: a.ledger.Now()}
	entries := itemEntries(out.Items, out.Currency, docType.EntryTag(), src)
	if err := a.ledger.MergeClientData(ctx, key, ledger.KindLiabilities, entries); err != nil {
		return out, err
	}
	err = a.ledger.RecordEvent(ctx, key, domain.EventLiabilityUpdate, map[string]string{
		"document_name": documentName,
		"items":         fmt.Sprint(len(entries)),
	})
	return out, err
}

func checkIngestKey(key domain.ClientKey) error {
	if key == "" || domain.IsPlaceholderID(string(key)) {
		return fmt.Errorf("cannot update data for unknown client %q", key)
	}
	return nil
}

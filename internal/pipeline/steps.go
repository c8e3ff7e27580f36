package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/ledger"
	"github.com/dvloznov/kyc-ledger/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Field names a piece of PipelineState that steps consume or produce.
type Field string

const (
	FieldText         Field = "text"
	FieldLanguage     Field = "language"
	FieldEnglishText  Field = "english_text"
	FieldClient       Field = "client"
	FieldDocumentType Field = "document_type"
	FieldOverview     Field = "overview"
	FieldClientKeys   Field = "client_keys"
	FieldNetWorth     Field = "net_worth"
)

// PipelineStep represents a single step in the analysis pipeline.
type PipelineStep interface {
	Name() string
	Requires() []Field
	Provides() []Field
	Execute(ctx context.Context, state *PipelineState) error
}

// StageOutput is the recorded result of one stage.
type StageOutput struct {
	Stage      string
	Outcome    OutcomeKind
	Reason     string
	Payload    interface{}
	RecordedAt time.Time
}

// PipelineState holds the shared state across all pipeline steps of one
// document.
type PipelineState struct {
	RunID        string
	DocumentName string
	Text         string

	Language     domain.LanguageInfo
	EnglishText  string
	Client       domain.ClientInfo
	DocumentType domain.DocumentCategory
	Overview     domain.FinancialOverview

	// ClientNames lists overview clients in ledger update order; ClientKeys
	// maps each to its ledger key.
	ClientNames []string
	ClientKeys  map[string]domain.ClientKey
	NetWorth    *domain.NetWorthReport

	mu       sync.Mutex
	warnings []string
	outputs  []StageOutput
	provided map[Field]bool
}

// NewPipelineState starts the state of one document.
func NewPipelineState(runID, documentName, text string) *PipelineState {
	return &PipelineState{
		RunID:        runID,
		DocumentName: documentName,
		Text:         text,
		provided:     map[Field]bool{FieldText: true},
	}
}

// Warn records a non-fatal problem reported on the result.
func (s *PipelineState) Warn(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
}

// Warnings returns a copy of the recorded warnings.
func (s *PipelineState) Warnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.warnings...)
}

// Outputs returns a copy of the recorded stage outputs.
func (s *PipelineState) Outputs() []StageOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StageOutput(nil), s.outputs...)
}

// Has reports whether a step has produced field.
func (s *PipelineState) Has(f Field) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provided[f]
}

func (s *PipelineState) markProvided(fields []Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fields {
		s.provided[f] = true
	}
}

func (s *PipelineState) record(stage string, kind OutcomeKind, reason string, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = append(s.outputs, StageOutput{
		Stage:      stage,
		Outcome:    kind,
		Reason:     reason,
		Payload:    payload,
		RecordedAt: time.Now().UTC(),
	})
}

// settle records an outcome and returns its value, or the error of a failed
// outcome. Fallbacks are logged and reported as warnings.
func settle[T any](ctx context.Context, state *PipelineState, stage string, o Outcome[T]) (T, error) {
	v, err := o.Get()
	if err != nil {
		state.record(stage, o.Kind, err.Error(), nil)
		return v, err
	}
	state.record(stage, o.Kind, o.Reason, v)
	if o.IsFallback() {
		log := logger.FromContext(ctx)
		log.Warn().Str("stage", stage).Str("reason", o.Reason).Msg("Stage fell back to default")
		state.Warn("%s: used default (%s)", stage, o.Reason)
	}
	return v, nil
}

// Pipeline executes a validated sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a pipeline, failing when a step requires a field that
// no earlier step provides.
func NewPipeline(steps ...PipelineStep) (*Pipeline, error) {
	available := map[Field]bool{FieldText: true}
	for i, step := range steps {
		for _, f := range step.Requires() {
			if !available[f] {
				return nil, fmt.Errorf("pipeline step %d (%s) requires %q which no earlier step provides", i+1, step.Name(), f)
			}
		}
		for _, f := range step.Provides() {
			available[f] = true
		}
	}
	return &Pipeline{steps: steps}, nil
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: step.Name(), Err: err}
		}
		start := time.Now()
		if err := step.Execute(ctx, state); err != nil {
			return &StageError{Stage: step.Name(), Err: err}
		}
		state.markProvided(step.Provides())
		log.Debug().Str("stage", step.Name()).Dur("duration", time.Since(start)).Msg("Stage completed")
	}
	return nil
}

// ParallelStep runs independent steps concurrently. Members may not depend
// on each other's output.
type ParallelStep struct {
	steps []PipelineStep
}

// NewParallelStep groups steps that only need fields produced before the
// group.
func NewParallelStep(steps ...PipelineStep) *ParallelStep {
	return &ParallelStep{steps: steps}
}

func (p *ParallelStep) Name() string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return "parallel(" + strings.Join(names, ",") + ")"
}

func (p *ParallelStep) Requires() []Field {
	var out []Field
	for _, s := range p.steps {
		out = append(out, s.Requires()...)
	}
	return out
}

func (p *ParallelStep) Provides() []Field {
	var out []Field
	for _, s := range p.steps {
		out = append(out, s.Provides()...)
	}
	return out
}

func (p *ParallelStep) Execute(ctx context.Context, state *PipelineState) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, step := range p.steps {
		step := step
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &StageError{Stage: step.Name(), Err: fmt.Errorf("%w: %v", ErrPanic, r)}
				}
			}()
			if err := step.Execute(gctx, state); err != nil {
				return &StageError{Stage: step.Name(), Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}

// DetectLanguageStep detects the document language.
type DetectLanguageStep struct{ stages *Stages }

func (s *DetectLanguageStep) Name() string { return StageDetectLanguage }
func (s *DetectLanguageStep) Requires() []Field { return []Field{FieldText} }
func (s *DetectLanguageStep) Provides() []Field { return []Field{FieldLanguage} }
func (s *DetectLanguageStep) Execute(ctx context.Context, state *PipelineState) error {
	lang, err := settle(ctx, state, s.Name(), s.stages.DetectLanguage(ctx, state.Text))
	if err != nil {
		return err
	}
	state.Language = lang
	return nil
}

// TranslateStep produces the English text used for financial extraction.
type TranslateStep struct{ stages *Stages }

func (s *TranslateStep) Name() string { return StageTranslate }
func (s *TranslateStep) Requires() []Field { return []Field{FieldText, FieldLanguage} }
func (s *TranslateStep) Provides() []Field { return []Field{FieldEnglishText} }
func (s *TranslateStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Language.IsEnglish() {
		state.EnglishText = state.Text
		return nil
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("language", state.Language.PrimaryLanguage).
		Msg("Translating non-English document")

	text, err := settle(ctx, state, s.Name(), s.stages.Translate(ctx, state.Text, state.Language))
	if err != nil {
		return err
	}
	state.EnglishText = text
	return nil
}

// IdentifyClientStep extracts the primary client from the original text.
type IdentifyClientStep struct{ stages *Stages }

func (s *IdentifyClientStep) Name() string { return StageIdentifyClient }
func (s *IdentifyClientStep) Requires() []Field { return []Field{FieldText, FieldLanguage} }
func (s *IdentifyClientStep) Provides() []Field { return []Field{FieldClient} }
func (s *IdentifyClientStep) Execute(ctx context.Context, state *PipelineState) error {
	info, err := settle(ctx, state, s.Name(), s.stages.IdentifyClient(ctx, state.Text, state.Language.LanguageCode))
	if err != nil {
		return err
	}
	state.Client = info
	log := logger.FromContext(ctx)
	log.Info().Str("client_id", info.ClientID).Msg("Identified client")
	return nil
}

// ClassifyStep labels the document from the original text.
type ClassifyStep struct{ stages *Stages }

func (s *ClassifyStep) Name() string { return StageClassify }
func (s *ClassifyStep) Requires() []Field { return []Field{FieldText, FieldLanguage} }
func (s *ClassifyStep) Provides() []Field { return []Field{FieldDocumentType} }
func (s *ClassifyStep) Execute(ctx context.Context, state *PipelineState) error {
	label, err := settle(ctx, state, s.Name(), s.stages.Classify(ctx, state.Text, state.Language.LanguageCode))
	if err != nil {
		return err
	}
	if !label.Known() {
		state.Warn("%s: unrecognized document type %q", s.Name(), string(label))
	}
	state.DocumentType = label
	log := logger.FromContext(ctx)
	log.Info().Str("document_type", string(label)).Msg("Classified document")
	return nil
}

// OverviewStep extracts the per-client financial overview from the English
// text.
type OverviewStep struct{ stages *Stages }

func (s *OverviewStep) Name() string { return StageOverview }
func (s *OverviewStep) Requires() []Field { return []Field{FieldEnglishText, FieldClient} }
func (s *OverviewStep) Provides() []Field { return []Field{FieldOverview} }
func (s *OverviewStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := settle(ctx, state, s.Name(), s.stages.ExtractOverview(ctx, state.EnglishText, state.Client))
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		state.Warn("%s: %s", s.Name(), w)
	}
	state.Overview = res.Overview
	return nil
}

// LedgerUpdateStep appends every overview client's line items to the
// ledger under its name-based key.
type LedgerUpdateStep struct {
	ledger *ledger.Ledger
}

func (s *LedgerUpdateStep) Name() string { return StageLedgerUpdate }
func (s *LedgerUpdateStep) Requires() []Field {
	return []Field{FieldOverview, FieldClient, FieldDocumentType}
}
func (s *LedgerUpdateStep) Provides() []Field { return []Field{FieldClientKeys} }
func (s *LedgerUpdateStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	names := make([]string, 0, len(state.Overview))
	for name := range state.Overview {
		names = append(names, name)
	}
	sort.Strings(names)

	state.ClientKeys = make(map[string]domain.ClientKey, len(names))
	state.ClientNames = state.ClientNames[:0]
	seen := make(map[domain.ClientKey]string, len(names))
	tag := state.DocumentType.EntryTag()
	src := domain.SourceRef{DocumentName: state.DocumentName, Stage: StageOverview, ExtractedAt: s.ledger.Now()}

	for _, name := range names {
		co := state.Overview[name]
		key := domain.KeyForName(name)
		assets, liabilities := overviewEntries(co, tag, src)

		if err := s.ledger.MergeClientData(ctx, key, ledger.KindAssets, assets); err != nil {
			return fmt.Errorf("updating assets of %s: %w", key, err)
		}
		if err := s.ledger.MergeClientData(ctx, key, ledger.KindLiabilities, liabilities); err != nil {
			return fmt.Errorf("updating liabilities of %s: %w", key, err)
		}
		if err := s.ledger.RecordEvent(ctx, key, domain.EventOverviewUpdate, map[string]string{
			"document_name":     state.DocumentName,
			"run_id":            state.RunID,
			"document_type":     string(state.DocumentType),
			"assets_count":      fmt.Sprint(len(assets)),
			"liabilities_count": fmt.Sprint(len(liabilities)),
		}); err != nil {
			return fmt.Errorf("recording event for %s: %w", key, err)
		}
		if err := s.attachClientInfo(ctx, state, key, name); err != nil {
			return err
		}

		if first, dup := seen[key]; dup {
			state.Warn("%s: overview names %q and %q share ledger key %s", s.Name(), first, name, key)
			continue
		}
		seen[key] = name
		state.ClientKeys[name] = key
		state.ClientNames = append(state.ClientNames, name)

		log.Info().
			Str("client_key", string(key)).
			Int("assets", len(assets)).
			Int("liabilities", len(liabilities)).
			Msg("Client data updated")
	}
	return nil
}

// attachClientInfo stores the identified client's details on the record
// whose name matches, and a name-only identity on records that have none.
func (s *LedgerUpdateStep) attachClientInfo(ctx context.Context, state *PipelineState, key domain.ClientKey, name string) error {
	if state.Client.HasName() && state.Client.NormalizedName == domain.NormalizeName(name) {
		if err := s.ledger.SetClientInfo(ctx, key, state.Client); err != nil {
			return fmt.Errorf("attaching client info to %s: %w", key, err)
		}
		return s.ledger.RecordEvent(ctx, key, domain.EventClientInfo, map[string]string{
			"document_name": state.DocumentName,
			"client_id":     state.Client.ClientID,
		})
	}

	_, err := s.ledger.Update(ctx, key, func(rec *domain.ClientRecord) error {
		if rec.ClientInfo == nil {
			rec.ClientInfo = &domain.ClientInfo{
				ClientID:       string(key),
				ClientName:     name,
				NormalizedName: domain.NormalizeName(name),
				Confidence:     domain.ConfidenceLow,
				Source:         StageOverview,
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("attaching client name to %s: %w", key, err)
	}
	return nil
}

// NetWorthStep computes net worth for every client updated by the document.
type NetWorthStep struct {
	calc NetWorthCalculator
}

func (s *NetWorthStep) Name() string { return StageNetWorth }
func (s *NetWorthStep) Requires() []Field { return []Field{FieldClientKeys} }
func (s *NetWorthStep) Provides() []Field { return []Field{FieldNetWorth} }
func (s *NetWorthStep) Execute(ctx context.Context, state *PipelineState) error {
	keys := make([]domain.ClientKey, len(state.ClientNames))
	for i, name := range state.ClientNames {
		keys[i] = state.ClientKeys[name]
	}

	results := s.calc.ComputeMany(ctx, keys)
	if err := ctx.Err(); err != nil {
		return err
	}

	individual := make(map[string]domain.NetWorthSummary, len(results))
	for i, r := range results {
		name := state.ClientNames[i]
		if r.Err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(r.Err).Str("client_key", string(r.Key)).Msg("Net worth calculation failed")
			state.Warn("%s: %s: %v", s.Name(), name, r.Err)
		}
		individual[name] = r.Summary
	}
	state.NetWorth = domain.NewNetWorthReport(individual)
	state.record(s.Name(), OutcomeOK, "", state.NetWorth)
	return nil
}

package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/networth"
)

// NetWorthCalculator computes summaries for the clients of one document.
// *networth.Calculator is the production implementation.
type NetWorthCalculator interface {
	ComputeMany(ctx context.Context, keys []domain.ClientKey) []networth.Result
}

// RunRecorder persists analysis runs and their raw stage outputs.
// Recording is best effort: errors are logged and never fail a document.
type RunRecorder interface {
	// StartRun creates a run with status RUNNING.
	StartRun(ctx context.Context, runID, documentName string, startedAt time.Time) error
	// InsertStageOutput stores the decoded output of one stage.
	InsertStageOutput(ctx context.Context, runID string, out StageOutput) error
	// MarkRunSucceeded finalizes a completed run.
	MarkRunSucceeded(ctx context.Context, runID string, result domain.DocumentAnalysisResult) error
	// MarkRunFailed finalizes a failed run.
	MarkRunFailed(ctx context.Context, runID string, runErr error)
}

var _ NetWorthCalculator = (*networth.Calculator)(nil)

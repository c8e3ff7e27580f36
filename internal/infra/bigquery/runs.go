package bigquery

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/pipeline"
	"github.com/google/uuid"
)

// Run statuses stored in analysis_runs.status.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

const (
	runsTable         = "analysis_runs"
	stageOutputsTable = "stage_outputs"
)

// RunRow is one analysis run.
type RunRow struct {
	RunID        string `bigquery:"run_id"`        // REQUIRED
	DocumentName string `bigquery:"document_name"` // REQUIRED

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status       string              `bigquery:"status"`        // REQUIRED
	ErrorType    bigquery.NullString `bigquery:"error_type"`    // NULLABLE
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE

	LanguageCode     bigquery.NullString `bigquery:"language_code"`      // NULLABLE
	DocumentType     bigquery.NullString `bigquery:"document_type"`      // NULLABLE
	ClientID         bigquery.NullString `bigquery:"client_id"`          // NULLABLE
	ClientNames      []string            `bigquery:"client_names"`       // REPEATED
	CombinedNetWorth bigquery.NullString `bigquery:"combined_net_worth"` // NULLABLE, decimal text
	WarningsCount    bigquery.NullInt64  `bigquery:"warnings_count"`     // NULLABLE
}

// StageOutputRow is the recorded output of one stage in a run.
type StageOutputRow struct {
	OutputID   string              `bigquery:"output_id"`   // REQUIRED
	RunID      string              `bigquery:"run_id"`      // REQUIRED
	Stage      string              `bigquery:"stage"`       // REQUIRED
	Outcome    string              `bigquery:"outcome"`     // REQUIRED
	Reason     bigquery.NullString `bigquery:"reason"`      // NULLABLE
	Payload    bigquery.NullJSON   `bigquery:"payload"`     // NULLABLE
	RecordedTS time.Time           `bigquery:"recorded_ts"` // REQUIRED
}

// truncateError limits stored error messages to pipeline.MaxErrorMessageLen
// bytes.
func truncateError(msg string) string {
	if len(msg) > pipeline.MaxErrorMessageLen {
		return msg[:pipeline.MaxErrorMessageLen]
	}
	return msg
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

// newStageOutputRow converts a pipeline stage output into its row.
func newStageOutputRow(runID string, out pipeline.StageOutput) (*StageOutputRow, error) {
	row := &StageOutputRow{
		OutputID:   uuid.NewString(),
		RunID:      runID,
		Stage:      out.Stage,
		Outcome:    out.Outcome.String(),
		Reason:     nullString(truncateError(out.Reason)),
		RecordedTS: out.RecordedAt,
	}
	if row.RecordedTS.IsZero() {
		row.RecordedTS = time.Now().UTC()
	}
	if out.Payload != nil {
		data, err := json.Marshal(out.Payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", out.Stage, err)
		}
		row.Payload = bigquery.NullJSON{JSONVal: string(data), Valid: true}
	}
	return row, nil
}

// completedRunFields extracts the summary columns of a completed run.
func completedRunFields(result domain.DocumentAnalysisResult) RunRow {
	row := RunRow{
		RunID:         result.RunID,
		DocumentName:  result.DocumentName,
		Status:        RunStatusSuccess,
		DocumentType:  nullString(string(result.DocumentType)),
		WarningsCount: bigquery.NullInt64{Int64: int64(len(result.Warnings)), Valid: true},
		ClientNames:   []string{},
	}
	if !result.CompletedAt.IsZero() {
		row.FinishedTS = bigquery.NullTimestamp{Timestamp: result.CompletedAt, Valid: true}
	}
	if result.Language != nil {
		row.LanguageCode = nullString(result.Language.LanguageCode)
	}
	if result.ClientInformation != nil {
		row.ClientID = nullString(result.ClientInformation.ClientID)
	}
	if result.NetWorth != nil {
		row.CombinedNetWorth = nullString(result.NetWorth.CombinedNetWorth.String())
		for name := range result.NetWorth.IndividualNetWorth {
			row.ClientNames = append(row.ClientNames, name)
		}
		sort.Strings(row.ClientNames)
	}
	return row
}

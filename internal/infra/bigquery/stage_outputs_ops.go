package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/kyc-ledger/internal/pipeline"
)

// InsertStageOutput stores one stage output. Uses DML INSERT to avoid
// streaming buffer issues with later updates.
func (r *RunRepository) InsertStageOutput(ctx context.Context, runID string, out pipeline.StageOutput) error {
	row, err := newStageOutputRow(runID, out)
	if err != nil {
		return fmt.Errorf("InsertStageOutput: %w", err)
	}

	sql := fmt.Sprintf(`
		INSERT INTO %s (
			output_id, run_id, stage,
			outcome, reason, payload, recorded_ts
		)
		VALUES (
			@output_id, @run_id, @stage,
			@outcome, @reason, SAFE.PARSE_JSON(@payload), @recorded_ts
		)
	`, r.table(stageOutputsTable))

	payload := bigquery.NullString{StringVal: row.Payload.JSONVal, Valid: row.Payload.Valid}
	return r.exec(ctx, "InsertStageOutput", sql, []bigquery.QueryParameter{
		{Name: "output_id", Value: row.OutputID},
		{Name: "run_id", Value: row.RunID},
		{Name: "stage", Value: row.Stage},
		{Name: "outcome", Value: row.Outcome},
		{Name: "reason", Value: row.Reason},
		{Name: "payload", Value: payload},
		{Name: "recorded_ts", Value: row.RecordedTS},
	})
}

package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/logger"
	"github.com/dvloznov/kyc-ledger/internal/pipeline"
	"google.golang.org/api/iterator"
)

// RunRepository records analysis runs and their stage outputs in BigQuery.
// It implements pipeline.RunRecorder.
type RunRepository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewRunRepository creates a repository with its own BigQuery client.
func NewRunRepository(ctx context.Context, projectID, datasetID string) (*RunRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRunRepository: creating client: %w", err)
	}
	return NewRunRepositoryWithClient(client, datasetID), nil
}

// NewRunRepositoryWithClient creates a repository over a shared client.
func NewRunRepositoryWithClient(client *bigquery.Client, datasetID string) *RunRepository {
	return &RunRepository{client: client, projectID: client.Project(), datasetID: datasetID}
}

// Close closes the BigQuery client connection.
func (r *RunRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *RunRepository) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", r.projectID, r.datasetID, name)
}

// exec runs a DML statement and waits for it to finish.
func (r *RunRepository) exec(ctx context.Context, op, sql string, params []bigquery.QueryParameter) error {
	q := r.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running query: %w", op, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%s: job error: %w", op, err)
	}
	return nil
}

// StartRun inserts a run with status=RUNNING.
func (r *RunRepository) StartRun(ctx context.Context, runID, documentName string, startedAt time.Time) error {
	sql := fmt.Sprintf(`
		INSERT %s (
			run_id,
			document_name,
			started_ts,
			status
		)
		VALUES (
			@run_id,
			@document_name,
			@started_ts,
			@status
		)
	`, r.table(runsTable))

	return r.exec(ctx, "StartRun", sql, []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "document_name", Value: documentName},
		{Name: "started_ts", Value: startedAt},
		{Name: "status", Value: RunStatusRunning},
	})
}

// MarkRunSucceeded sets status=SUCCESS and the result summary columns.
func (r *RunRepository) MarkRunSucceeded(ctx context.Context, runID string, result domain.DocumentAnalysisResult) error {
	row := completedRunFields(result)
	finished := time.Now().UTC()
	if row.FinishedTS.Valid {
		finished = row.FinishedTS.Timestamp
	}

	sql := fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_type = NULL,
		    error_message = NULL,
		    language_code = @language_code,
		    document_type = @document_type,
		    client_id = @client_id,
		    client_names = @client_names,
		    combined_net_worth = @combined_net_worth,
		    warnings_count = @warnings_count
		WHERE run_id = @run_id
	`, r.table(runsTable))

	return r.exec(ctx, "MarkRunSucceeded", sql, []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusSuccess},
		{Name: "finished_ts", Value: finished},
		{Name: "language_code", Value: row.LanguageCode},
		{Name: "document_type", Value: row.DocumentType},
		{Name: "client_id", Value: row.ClientID},
		{Name: "client_names", Value: row.ClientNames},
		{Name: "combined_net_worth", Value: row.CombinedNetWorth},
		{Name: "warnings_count", Value: row.WarningsCount},
		{Name: "run_id", Value: runID},
	})
}

// MarkRunFailed sets status=FAILED, finished_ts and the error columns.
// Failures are logged, not returned.
func (r *RunRepository) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	log := logger.FromContext(ctx)

	errMsg, errType := "", ""
	if runErr != nil {
		errMsg = truncateError(runErr.Error())
		errType = pipeline.ErrorType(runErr)
	}

	sql := fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_type = @error_type,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, r.table(runsTable))

	err := r.exec(ctx, "MarkRunFailed", sql, []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusFailed},
		{Name: "finished_ts", Value: time.Now().UTC()},
		{Name: "error_type", Value: errType},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("Failed to mark run as failed")
	}
}

// ListRuns returns the most recent runs, newest first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]*RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	sql := fmt.Sprintf(`
		SELECT
			run_id,
			document_name,
			started_ts,
			finished_ts,
			status,
			error_type,
			error_message,
			language_code,
			document_type,
			client_id,
			client_names,
			combined_net_worth,
			warnings_count
		FROM %s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, r.table(runsTable))

	q := r.client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: limit}}
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRuns: reading query: %w", err)
	}

	var runs []*RunRow
	for {
		var row RunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRuns: iterating: %w", err)
		}
		runs = append(runs, &row)
	}
	return runs, nil
}

var _ pipeline.RunRecorder = (*RunRepository)(nil)

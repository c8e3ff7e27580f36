package worker

import (
	"context"
	"time"

	"github.com/dvloznov/kyc-ledger/internal/jobs"
)

// Terminal reports whether a job will not run again.
func Terminal(status jobs.JobStatus) bool {
	return status == jobs.JobStatusCompleted || status == jobs.JobStatusFailed
}

// WaitForJobs polls store until every job in ids is terminal and returns
// their final state in the order of ids.
func WaitForJobs(ctx context.Context, store jobs.JobStore, ids []string, interval time.Duration) ([]*jobs.AnalyzeDocumentJob, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		out := make([]*jobs.AnalyzeDocumentJob, 0, len(ids))
		done := true
		for _, id := range ids {
			job, err := store.GetJob(ctx, id)
			if err != nil {
				return nil, err
			}
			if !Terminal(job.Status) {
				done = false
				break
			}
			out = append(out, job)
		}
		if done {
			return out, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/kyc-ledger/internal/jobs"
	"github.com/dvloznov/kyc-ledger/internal/jobs/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForJobs_ThroughQueue(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := inmemory.NewStore()
	queue := inmemory.NewQueue(10, store, inmemory.WithWorkers(2), inmemory.WithBackoff(func(int) time.Duration { return time.Millisecond }))
	defer queue.Close()

	handler := func(ctx context.Context, job jobs.Job) error {
		j := job.(*jobs.AnalyzeDocumentJob)
		if j.DocumentURI == "gs://b/bad.txt" {
			return jobs.Permanent(errors.New("unreadable"))
		}
		return nil
	}
	require.NoError(t, queue.Start(ctx, handler))

	var ids []string
	for _, uri := range []string{"gs://b/good.txt", "gs://b/bad.txt"} {
		job := &jobs.AnalyzeDocumentJob{DocumentURI: uri}
		require.NoError(t, queue.PublishAnalyzeDocument(ctx, job))
		ids = append(ids, job.JobID)
	}

	done, err := WaitForJobs(ctx, store, ids, 5*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, done, 2)
	assert.Equal(t, jobs.JobStatusCompleted, done[0].Status)
	assert.Equal(t, jobs.JobStatusFailed, done[1].Status)
	assert.Contains(t, done[1].Error, "unreadable")
}

func TestWaitForJobs_ContextDone(t *testing.T) {
	store := inmemory.NewStore()
	require.NoError(t, store.SaveJob(context.Background(), &jobs.AnalyzeDocumentJob{JobID: "stuck", Status: jobs.JobStatusRunning}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := WaitForJobs(ctx, store, []string{"stuck"}, time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForJobs_UnknownJob(t *testing.T) {
	_, err := WaitForJobs(context.Background(), inmemory.NewStore(), []string{"nope"}, time.Millisecond)
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

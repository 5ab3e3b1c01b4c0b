package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizradar/bizradar/engine/llm"
)

func TestWorker_ProcessJob(t *testing.T) {
	ctx := context.Background()

	t.Run("Should embed and persist a new business", func(t *testing.T) {
		repo := newFakeEmbeddingRepo()
		jobs := newFakeJobsRepo()
		embedder := &countingEmbedder{vector: []float32{0.1, 0.2, 0.3}}
		w := NewWorker(newTestQueue(t), repo, jobs, embedder, WorkerConfig{})

		jobID, err := jobs.CreateJob(ctx, "run", 1, "openai", "text-embedding-3-small")
		require.NoError(t, err)
		job := testJob("b1")
		job.ProgressID = jobID

		outcome, err := w.processJob(ctx, job)
		require.NoError(t, err)
		assert.Equal(t, OutcomeProcessed, outcome)
		assert.Equal(t, 1, embedder.calls)

		saved, err := repo.GetEmbedding(ctx, "b1", "openai", "text-embedding-3-small")
		require.NoError(t, err)
		assert.Equal(t, job.ContentHash, saved.ContentHash)
		assert.Equal(t, 3, saved.Dimension)
		assert.Len(t, saved.Embedding, 3)

		progress, err := jobs.GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, 1, progress.Processed)
		assert.Equal(t, StatusCompleted, progress.Status)

		metrics, err := jobs.GetJobMetrics(ctx, jobID, "")
		require.NoError(t, err)
		assert.Len(t, metrics, 2)
	})

	t.Run("Should skip without a provider call when the hash is unchanged", func(t *testing.T) {
		repo := newFakeEmbeddingRepo()
		jobs := newFakeJobsRepo()
		embedder := &countingEmbedder{vector: []float32{1}}
		w := NewWorker(newTestQueue(t), repo, jobs, embedder, WorkerConfig{})

		job := testJob("b1")
		_, err := repo.SaveEmbedding(ctx, &BusinessEmbedding{
			BusinessID:  "b1",
			ContentHash: job.ContentHash,
			Embedding:   []float32{1},
			Provider:    job.Provider,
			Model:       job.Model,
		})
		require.NoError(t, err)
		savesBefore := repo.saves

		jobID, err := jobs.CreateJob(ctx, "run", 1, job.Provider, job.Model)
		require.NoError(t, err)
		job.ProgressID = jobID

		outcome, err := w.processJob(ctx, job)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, outcome)
		assert.Zero(t, embedder.calls)
		assert.Equal(t, savesBefore, repo.saves)

		progress, err := jobs.GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, 1, progress.Skipped)
		assert.Equal(t, StatusCompleted, progress.Status)
	})

	t.Run("Should re-embed when the stored hash differs", func(t *testing.T) {
		repo := newFakeEmbeddingRepo()
		embedder := &countingEmbedder{vector: []float32{0.5}}
		w := NewWorker(newTestQueue(t), repo, newFakeJobsRepo(), embedder, WorkerConfig{})

		job := testJob("b1")
		_, err := repo.SaveEmbedding(ctx, &BusinessEmbedding{
			BusinessID:  "b1",
			ContentHash: "stale-hash",
			Embedding:   []float32{9},
			Provider:    job.Provider,
			Model:       job.Model,
		})
		require.NoError(t, err)

		outcome, err := w.processJob(ctx, job)
		require.NoError(t, err)
		assert.Equal(t, OutcomeProcessed, outcome)
		assert.Equal(t, 1, embedder.calls)

		saved, err := repo.GetEmbedding(ctx, "b1", job.Provider, job.Model)
		require.NoError(t, err)
		assert.Equal(t, job.ContentHash, saved.ContentHash)
		assert.Equal(t, []float32{0.5}, saved.Embedding)
	})
}

func TestWorker_RetryAndBury(t *testing.T) {
	ctx := context.Background()

	t.Run("Should retry with strictly increasing attempts and bury at max retries", func(t *testing.T) {
		queue := newTestQueue(t)
		jobs := newFakeJobsRepo()
		w := NewWorker(queue, newFakeEmbeddingRepo(), jobs, &failingEmbedder{}, WorkerConfig{
			BackoffBase: time.Millisecond,
		})

		jobID, err := jobs.CreateJob(ctx, "run", 1, "openai", "text-embedding-3-small")
		require.NoError(t, err)
		job := testJob("b1")
		job.ProgressID = jobID
		require.NoError(t, queue.Enqueue(ctx, job))

		seen := []int{}
		for attempt := 0; attempt <= job.MaxRetries; attempt++ {
			var current *EmbeddingJobData
			require.Eventually(t, func() bool {
				dequeued, dqErr := queue.Dequeue(ctx, 50*time.Millisecond)
				if dqErr != nil || dequeued == nil {
					return false
				}
				current = dequeued
				return true
			}, 2*time.Second, 5*time.Millisecond)

			seen = append(seen, current.RetryCount)
			outcome, procErr := w.processJob(ctx, current)
			require.NoError(t, procErr)
			if attempt < job.MaxRetries {
				assert.Equal(t, OutcomeRetried, outcome)
			} else {
				assert.Equal(t, OutcomeBuried, outcome)
			}
		}
		assert.Equal(t, []int{0, 1, 2, 3}, seen)

		dead, err := queue.DeadLen(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, dead)

		pending, err := queue.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, pending)
		delayed, err := queue.DelayedLen(ctx)
		require.NoError(t, err)
		assert.Zero(t, delayed)

		progress, err := jobs.GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, 1, progress.Failed)
		assert.Equal(t, StatusCompleted, progress.Status)
	})
}

func TestWorker_Run(t *testing.T) {
	t.Run("Should drain queued jobs and stop on cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		queue := newTestQueue(t)
		repo := newFakeEmbeddingRepo()
		embedder := &countingEmbedder{vector: []float32{0.1, 0.2}}
		w := NewWorker(queue, repo, newFakeJobsRepo(), embedder, WorkerConfig{
			Concurrency:    2,
			DequeueTimeout: 20 * time.Millisecond,
		})

		for _, id := range []string{"b1", "b2", "b3", "b4"} {
			require.NoError(t, queue.Enqueue(ctx, testJob(id)))
		}

		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()

		require.Eventually(t, func() bool {
			count, err := repo.CountEmbeddings(context.Background(), "", "")
			return err == nil && count == 4
		}, 3*time.Second, 10*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not stop after cancel")
		}
	})
}

func TestWorker_Run_DequeueErrors(t *testing.T) {
	t.Run("Should pause between failed dequeues instead of spinning", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		queue := &failingQueue{}
		w := NewWorker(queue, newFakeEmbeddingRepo(), newFakeJobsRepo(), &countingEmbedder{}, WorkerConfig{
			DequeueTimeout: time.Millisecond,
			ErrorBackoff:   50 * time.Millisecond,
		})

		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()

		time.Sleep(180 * time.Millisecond)
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not stop after cancel")
		}

		// ~180ms with a 50ms pause allows at most a handful of attempts; a
		// hot loop would make thousands.
		assert.LessOrEqual(t, queue.attempts(), 6)
		assert.GreaterOrEqual(t, queue.attempts(), 2)
	})
}

// failingQueue rejects every dequeue, standing in for an unreachable Redis.
type failingQueue struct {
	mu    sync.Mutex
	calls int
}

func (q *failingQueue) Enqueue(context.Context, *EmbeddingJobData) error { return nil }

func (q *failingQueue) Dequeue(context.Context, time.Duration) (*EmbeddingJobData, error) {
	q.mu.Lock()
	q.calls++
	q.mu.Unlock()
	return nil, errors.New("connection refused")
}

func (q *failingQueue) Retry(context.Context, *EmbeddingJobData, time.Duration) error { return nil }

func (q *failingQueue) Bury(context.Context, *EmbeddingJobData, string) error { return nil }

func (q *failingQueue) attempts() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

// The registry must keep satisfying the worker's embedder contract.
var _ Embedder = (*llm.Registry)(nil)

// The Redis queue must keep satisfying the worker's queue contract.
var _ JobQueue = (*Queue)(nil)

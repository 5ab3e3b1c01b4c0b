package embedding

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBusinesses(n int) []Business {
	now := time.Now().UTC()
	businesses := make([]Business, 0, n)
	for i := 0; i < n; i++ {
		businesses = append(businesses, Business{
			ID:          fmt.Sprintf("b%d", i+1),
			Name:        fmt.Sprintf("Business %d", i+1),
			Description: "A local business",
			Website:     fmt.Sprintf("https://b%d.test", i+1),
			Category:    "retail",
			CreatedAt:   now.Add(-time.Duration(i) * time.Minute),
			UpdatedAt:   now,
		})
	}
	return businesses
}

func TestBuildBusinessContent(t *testing.T) {
	t.Run("Should join populated fields with blank lines", func(t *testing.T) {
		content := BuildBusinessContent(&Business{
			Name:        "Acme",
			Description: "Hardware store",
			Website:     "https://acme.test",
		})
		assert.Equal(t, "Name: Acme\n\nDescription: Hardware store\n\nWebsite: https://acme.test", content)
	})

	t.Run("Should omit empty fields", func(t *testing.T) {
		content := BuildBusinessContent(&Business{Name: "Acme"})
		assert.Equal(t, "Name: Acme", content)
	})
}

func TestBackfillService_StartBackfill(t *testing.T) {
	ctx := context.Background()

	t.Run("Should create a progress row and enqueue one job per business", func(t *testing.T) {
		store := NewMemoryBusinessStore(seedBusinesses(5)...)
		jobs := newFakeJobsRepo()
		queue := newTestQueue(t)
		svc := NewBackfillService(store, jobs, queue)

		jobID, err := svc.StartBackfill(ctx, "nightly", BackfillOptions{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			BatchSize: 2,
		})
		require.NoError(t, err)

		progress, err := svc.GetJobProgress(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, 5, progress.Total)
		assert.Equal(t, StatusProcessing, progress.Status)

		pending, err := queue.Len(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 5, pending)

		job, err := queue.Dequeue(ctx, 100*time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, jobID, job.ProgressID)
		assert.Equal(t, "openai", job.Provider)
		assert.Equal(t, 3, job.MaxRetries)
		assert.Contains(t, job.Content, "Name: Business")
		assert.NotEmpty(t, job.ContentHash)
	})

	t.Run("Should hash name, description, and website as typed sources", func(t *testing.T) {
		business := seedBusinesses(1)[0]
		store := NewMemoryBusinessStore(business)
		queue := newTestQueue(t)
		svc := NewBackfillService(store, newFakeJobsRepo(), queue)

		_, err := svc.StartBackfill(ctx, "run", BackfillOptions{Provider: "openai", Model: "m"})
		require.NoError(t, err)

		job, err := queue.Dequeue(ctx, 100*time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, job)
		want := GenerateContentHash([]ContentSource{
			{Type: SourceName, Content: business.Name},
			{Type: SourceDescription, Content: business.Description},
			{Type: SourceWebsite, Content: business.Website},
		})
		assert.Equal(t, want, job.ContentHash)
	})

	t.Run("Should apply the business filter", func(t *testing.T) {
		businesses := seedBusinesses(3)
		businesses[2].Category = "food"
		store := NewMemoryBusinessStore(businesses...)
		queue := newTestQueue(t)
		svc := NewBackfillService(store, newFakeJobsRepo(), queue)

		jobID, err := svc.StartBackfill(ctx, "filtered", BackfillOptions{
			Provider: "openai",
			Model:    "m",
			Filter:   &BusinessFilter{Categories: []string{"food"}},
		})
		require.NoError(t, err)

		progress, err := svc.GetJobProgress(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, 1, progress.Total)
	})

	t.Run("Should require provider and model", func(t *testing.T) {
		svc := NewBackfillService(NewMemoryBusinessStore(), newFakeJobsRepo(), newTestQueue(t))
		_, err := svc.StartBackfill(ctx, "bad", BackfillOptions{})
		require.Error(t, err)
	})
}

func TestBackfillService_ResumeIncompleteJobs(t *testing.T) {
	ctx := context.Background()

	t.Run("Should report only incomplete jobs with remaining work", func(t *testing.T) {
		jobs := newFakeJobsRepo()
		svc := NewBackfillService(NewMemoryBusinessStore(), jobs, newTestQueue(t))

		incompleteID, err := jobs.CreateJob(ctx, "incomplete", 10, "openai", "m")
		require.NoError(t, err)
		require.NoError(t, jobs.IncrementProgress(ctx, incompleteID, 4, 0, 0))

		doneID, err := jobs.CreateJob(ctx, "done", 2, "openai", "m")
		require.NoError(t, err)
		require.NoError(t, jobs.IncrementProgress(ctx, doneID, 2, 0, 0))
		require.NoError(t, jobs.CompleteJob(ctx, doneID, nil))

		otherID, err := jobs.CreateJob(ctx, "other-model", 5, "openai", "other")
		require.NoError(t, err)
		_ = otherID

		ids, err := svc.ResumeIncompleteJobs(ctx, "openai", "m")
		require.NoError(t, err)
		assert.Equal(t, []string{incompleteID}, ids)
	})

	t.Run("Should return nothing when all jobs are complete", func(t *testing.T) {
		svc := NewBackfillService(NewMemoryBusinessStore(), newFakeJobsRepo(), newTestQueue(t))
		ids, err := svc.ResumeIncompleteJobs(ctx, "openai", "m")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestBackfill_SkipScenario(t *testing.T) {
	t.Run("Should complete with five skips when nothing changed", func(t *testing.T) {
		ctx := context.Background()
		businesses := seedBusinesses(5)
		store := NewMemoryBusinessStore(businesses...)
		jobs := newFakeJobsRepo()
		queue := newTestQueue(t)
		repo := newFakeEmbeddingRepo()
		embedder := &countingEmbedder{vector: []float32{1, 2}}

		// Seed every business with a current embedding.
		for i := range businesses {
			b := &businesses[i]
			_, err := repo.SaveEmbedding(ctx, &BusinessEmbedding{
				BusinessID: b.ID,
				ContentHash: GenerateContentHash([]ContentSource{
					{Type: SourceName, Content: b.Name},
					{Type: SourceDescription, Content: b.Description},
					{Type: SourceWebsite, Content: b.Website},
				}),
				Embedding: []float32{1, 2},
				Provider:  "openai",
				Model:     "m",
			})
			require.NoError(t, err)
		}

		svc := NewBackfillService(store, jobs, queue)
		jobID, err := svc.StartBackfill(ctx, "noop-run", BackfillOptions{Provider: "openai", Model: "m"})
		require.NoError(t, err)

		w := NewWorker(queue, repo, jobs, embedder, WorkerConfig{})
		for i := 0; i < 5; i++ {
			job, dqErr := queue.Dequeue(ctx, 100*time.Millisecond)
			require.NoError(t, dqErr)
			require.NotNil(t, job)
			outcome, procErr := w.processJob(ctx, job)
			require.NoError(t, procErr)
			assert.Equal(t, OutcomeSkipped, outcome)
		}

		progress, err := svc.GetJobProgress(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, progress.Status)
		assert.Equal(t, 5, progress.Skipped)
		assert.Zero(t, progress.Processed)
		assert.Zero(t, progress.Failed)
		assert.Zero(t, embedder.calls)
	})
}

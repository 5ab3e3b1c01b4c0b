package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/bizradar/bizradar/pkg/logger"
)

const (
	defaultBackfillBatch = 100
	defaultMaxRetries    = 3
	defaultJobPriority   = 5
)

// BackfillOptions select which businesses to embed and how.
type BackfillOptions struct {
	Provider  string
	Model     string
	BatchSize int
	Filter    *BusinessFilter
}

// BackfillService enumerates businesses, creates a progress row, and feeds
// the durable queue in batches.
type BackfillService struct {
	store BusinessStore
	jobs  JobsRepo
	queue *Queue
}

func NewBackfillService(store BusinessStore, jobs JobsRepo, queue *Queue) *BackfillService {
	return &BackfillService{store: store, jobs: jobs, queue: queue}
}

// StartBackfill creates the progress row with the candidate total, then
// enqueues one embedding job per business in BatchSize chunks. Returns the
// progress row id.
func (s *BackfillService) StartBackfill(
	ctx context.Context,
	jobName string,
	opts BackfillOptions,
) (string, error) {
	log := logger.FromContext(ctx)
	if opts.Provider == "" || opts.Model == "" {
		return "", fmt.Errorf("provider and model are required")
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBackfillBatch
	}
	businesses, err := s.store.ListBusinesses(ctx, opts.Filter)
	if err != nil {
		return "", fmt.Errorf("enumerate businesses: %w", err)
	}
	log.Info("starting backfill", "job_name", jobName, "total", len(businesses))

	jobID, err := s.jobs.CreateJob(ctx, jobName, len(businesses), opts.Provider, opts.Model)
	if err != nil {
		return "", err
	}

	work := make([]EmbeddingJobData, 0, len(businesses))
	for i := range businesses {
		b := &businesses[i]
		work = append(work, EmbeddingJobData{
			BusinessID: b.ID,
			Content:    BuildBusinessContent(b),
			ContentHash: GenerateContentHash([]ContentSource{
				{Type: SourceName, Content: b.Name},
				{Type: SourceDescription, Content: b.Description},
				{Type: SourceWebsite, Content: b.Website},
			}),
			Provider:   opts.Provider,
			Model:      opts.Model,
			Priority:   defaultJobPriority,
			RetryCount: 0,
			MaxRetries: defaultMaxRetries,
			ProgressID: jobID,
		})
	}
	for start := 0; start < len(work); start += batchSize {
		end := min(start+batchSize, len(work))
		if err := s.queue.EnqueueBatch(ctx, work[start:end]); err != nil {
			return "", fmt.Errorf("enqueue backfill batch: %w", err)
		}
	}
	log.Info("backfill started", "job_id", jobID, "tasks", len(work))
	return jobID, nil
}

// GetJobProgress looks up one progress row.
func (s *BackfillService) GetJobProgress(ctx context.Context, jobID string) (*JobProgress, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// ResumeIncompleteJobs reports pending or processing jobs for the
// provider/model that still have unprocessed items. It only identifies them;
// outstanding queue items keep flowing to workers on their own.
func (s *BackfillService) ResumeIncompleteJobs(
	ctx context.Context,
	provider, model string,
) ([]string, error) {
	log := logger.FromContext(ctx)
	incomplete, err := s.jobs.ListIncompleteJobs(ctx, provider, model)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, progress := range incomplete {
		remaining := progress.Total - progress.Processed
		if remaining <= 0 {
			continue
		}
		log.Info("resuming job", "job_id", progress.JobID, "remaining", remaining)
		ids = append(ids, progress.JobID)
	}
	return ids, nil
}

// BuildBusinessContent assembles the embedding input from the populated
// business fields.
func BuildBusinessContent(b *Business) string {
	var parts []string
	if b.Name != "" {
		parts = append(parts, "Name: "+b.Name)
	}
	if b.Description != "" {
		parts = append(parts, "Description: "+b.Description)
	}
	if b.Website != "" {
		parts = append(parts, "Website: "+b.Website)
	}
	return strings.Join(parts, "\n\n")
}

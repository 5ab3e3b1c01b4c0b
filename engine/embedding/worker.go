package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bizradar/bizradar/engine/core"
	"github.com/bizradar/bizradar/engine/llm"
	llmadapter "github.com/bizradar/bizradar/engine/llm/adapter"
	"github.com/bizradar/bizradar/pkg/logger"
)

// Embedder computes vectors for text. *llm.Registry satisfies it.
type Embedder interface {
	EmbedText(ctx context.Context, content string, opts *llm.RequestOptions) (*llmadapter.EmbedResult, error)
}

// JobQueue is the queue surface the worker drives. *Queue satisfies it.
type JobQueue interface {
	Enqueue(ctx context.Context, job *EmbeddingJobData) error
	Dequeue(ctx context.Context, timeout time.Duration) (*EmbeddingJobData, error)
	Retry(ctx context.Context, job *EmbeddingJobData, delay time.Duration) error
	Bury(ctx context.Context, job *EmbeddingJobData, reason string) error
}

// Job processing outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeRetried   = "retried"
	OutcomeBuried    = "buried"
)

// WorkerConfig bounds the embedding worker pool.
type WorkerConfig struct {
	Concurrency    int
	MaxRetries     int
	BackoffBase    time.Duration
	DequeueTimeout time.Duration
	// ErrorBackoff is how long the loop pauses after a failed dequeue, so an
	// unreachable queue does not spin hot.
	ErrorBackoff time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.DequeueTimeout <= 0 {
		c.DequeueTimeout = 5 * time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = time.Second
	}
	return c
}

// Worker consumes embedding jobs from the queue with a bounded pool. The
// pool size is the backpressure control between embedding throughput and the
// provider's rate limits.
type Worker struct {
	queue    JobQueue
	repo     EmbeddingRepo
	jobs     JobsRepo
	embedder Embedder
	cfg      WorkerConfig
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
}

func NewWorker(
	queue JobQueue,
	repo EmbeddingRepo,
	jobs JobsRepo,
	embedder Embedder,
	cfg WorkerConfig,
) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		queue:    queue,
		repo:     repo,
		jobs:     jobs,
		embedder: embedder,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
	}
}

// Run consumes jobs until ctx is canceled, then waits for in-flight jobs.
func (w *Worker) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	log.Info("embedding worker started", "concurrency", w.cfg.Concurrency)
	defer w.wg.Wait()
	for {
		if ctx.Err() != nil {
			log.Info("embedding worker stopped")
			return ctx.Err()
		}
		job, err := w.queue.Dequeue(ctx, w.cfg.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("embedding worker stopped")
				return ctx.Err()
			}
			log.Error("dequeue failed", "error", err)
			if !sleepCtx(ctx, w.cfg.ErrorBackoff) {
				log.Info("embedding worker stopped")
				return ctx.Err()
			}
			continue
		}
		if job == nil {
			continue
		}
		if err := w.sem.Acquire(ctx, 1); err != nil {
			// Shutting down with a job in hand: put it back.
			if requeueErr := w.queue.Enqueue(context.WithoutCancel(ctx), job); requeueErr != nil {
				log.Error("requeue on shutdown failed", "business_id", job.BusinessID, "error", requeueErr)
			}
			log.Info("embedding worker stopped")
			return err
		}
		w.wg.Add(1)
		go func(job *EmbeddingJobData) {
			defer w.wg.Done()
			defer w.sem.Release(1)
			if _, err := w.processJob(ctx, job); err != nil {
				log.Error("job handling failed", "business_id", job.BusinessID, "error", err)
			}
		}(job)
	}
}

// sleepCtx waits for d or until ctx is canceled, reporting whether the full
// wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// processJob runs one job to an outcome. Equal content hash short-circuits
// before any provider call or write; transient failures go back on the queue
// with exponential backoff until MaxRetries, then the job is buried.
func (w *Worker) processJob(ctx context.Context, job *EmbeddingJobData) (string, error) {
	log := logger.FromContext(ctx)

	existing, err := w.repo.GetEmbedding(ctx, job.BusinessID, job.Provider, job.Model)
	if err != nil && !errors.Is(err, ErrEmbeddingNotFound) {
		return w.handleFailure(ctx, job, err)
	}
	if existing != nil && existing.ContentHash == job.ContentHash {
		log.Debug("content unchanged, skipping", "business_id", job.BusinessID)
		if err := w.reportProgress(ctx, job, 0, 0, 1); err != nil {
			return OutcomeSkipped, err
		}
		return OutcomeSkipped, nil
	}

	started := time.Now()
	result, err := w.embedder.EmbedText(ctx, job.Content, &llm.RequestOptions{
		Provider: core.ProviderName(job.Provider),
	})
	if err != nil {
		return w.handleFailure(ctx, job, err)
	}
	elapsed := time.Since(started)

	if _, err := w.repo.SaveEmbedding(ctx, &BusinessEmbedding{
		BusinessID:  job.BusinessID,
		ContentHash: job.ContentHash,
		Embedding:   result.Embedding,
		Provider:    job.Provider,
		Model:       job.Model,
		Dimension:   result.Dimension,
	}); err != nil {
		return w.handleFailure(ctx, job, err)
	}

	w.recordMetrics(ctx, job, elapsed, result.Dimension)
	if err := w.reportProgress(ctx, job, 1, 0, 0); err != nil {
		return OutcomeProcessed, err
	}
	log.Debug("embedding saved",
		"business_id", job.BusinessID,
		"dimension", result.Dimension,
		"elapsed", elapsed,
	)
	return OutcomeProcessed, nil
}

// handleFailure retries with 2^retries * base delay while attempts remain,
// otherwise buries the job and counts the permanent failure.
func (w *Worker) handleFailure(ctx context.Context, job *EmbeddingJobData, cause error) (string, error) {
	log := logger.FromContext(ctx)
	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = w.cfg.MaxRetries
	}
	if job.RetryCount < maxRetries {
		delay := w.cfg.BackoffBase * (1 << job.RetryCount)
		log.Warn("job failed, scheduling retry",
			"business_id", job.BusinessID,
			"attempt", job.RetryCount+1,
			"delay", delay,
			"error", cause,
		)
		if err := w.queue.Retry(ctx, job, delay); err != nil {
			return OutcomeRetried, err
		}
		return OutcomeRetried, nil
	}
	log.Error("job failed permanently", "business_id", job.BusinessID, "error", cause)
	if err := w.queue.Bury(ctx, job, fmt.Sprintf("failed to compute embedding: %v", cause)); err != nil {
		return OutcomeBuried, err
	}
	if err := w.reportProgress(ctx, job, 0, 1, 0); err != nil {
		return OutcomeBuried, err
	}
	return OutcomeBuried, nil
}

func (w *Worker) recordMetrics(ctx context.Context, job *EmbeddingJobData, elapsed time.Duration, dimension int) {
	if w.jobs == nil || job.ProgressID == "" {
		return
	}
	log := logger.FromContext(ctx)
	tags := map[string]string{"provider": job.Provider, "model": job.Model}
	if err := w.jobs.RecordMetric(ctx, job.ProgressID, "embedding_time_ms",
		float64(elapsed.Milliseconds()), tags); err != nil {
		log.Warn("record metric failed", "error", err)
	}
	if err := w.jobs.RecordMetric(ctx, job.ProgressID, "embedding_dimension",
		float64(dimension), tags); err != nil {
		log.Warn("record metric failed", "error", err)
	}
}

// reportProgress adds the outcome to the job's progress row and closes the
// row once every queued item is accounted for.
func (w *Worker) reportProgress(ctx context.Context, job *EmbeddingJobData, processed, failed, skipped int) error {
	if w.jobs == nil || job.ProgressID == "" {
		return nil
	}
	if err := w.jobs.IncrementProgress(ctx, job.ProgressID, processed, failed, skipped); err != nil {
		return err
	}
	progress, err := w.jobs.GetJob(ctx, job.ProgressID)
	if err != nil {
		return err
	}
	if progress.Status == StatusProcessing &&
		progress.Processed+progress.Failed+progress.Skipped >= progress.Total {
		return w.jobs.CompleteJob(ctx, job.ProgressID, nil)
	}
	return nil
}

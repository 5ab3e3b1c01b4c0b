package embedding

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bizradar/bizradar/engine/core"
	"github.com/bizradar/bizradar/engine/llm"
	llmadapter "github.com/bizradar/bizradar/engine/llm/adapter"
)

// fakeEmbeddingRepo is an in-memory EmbeddingRepo. FindSimilar scores with
// in-process cosine so threshold behavior can be asserted without a database.
type fakeEmbeddingRepo struct {
	mu             sync.Mutex
	rows           map[string]*BusinessEmbedding
	names          map[string]string
	saves          int
	lastFindVector []float32
	lastFindOpts   FindSimilarOptions
}

func newFakeEmbeddingRepo() *fakeEmbeddingRepo {
	return &fakeEmbeddingRepo{
		rows:  make(map[string]*BusinessEmbedding),
		names: make(map[string]string),
	}
}

func embeddingKey(businessID, provider, model string) string {
	return businessID + "|" + provider + "|" + model
}

func (f *fakeEmbeddingRepo) SaveEmbedding(
	_ context.Context,
	emb *BusinessEmbedding,
) (*BusinessEmbedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	saved := *emb
	if saved.ID == "" {
		saved.ID = core.MustNewID().String()
	}
	saved.Dimension = len(saved.Embedding)
	saved.UpdatedAt = time.Now().UTC()
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = saved.UpdatedAt
	}
	key := embeddingKey(saved.BusinessID, saved.Provider, saved.Model)
	if existing, ok := f.rows[key]; ok {
		saved.ID = existing.ID
		saved.CreatedAt = existing.CreatedAt
	}
	f.rows[key] = &saved
	f.saves++
	return &saved, nil
}

func (f *fakeEmbeddingRepo) GetEmbedding(
	_ context.Context,
	businessID, provider, model string,
) (*BusinessEmbedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if emb, ok := f.rows[embeddingKey(businessID, provider, model)]; ok {
		copied := *emb
		return &copied, nil
	}
	return nil, ErrEmbeddingNotFound
}

func (f *fakeEmbeddingRepo) GetBusinessEmbeddings(
	_ context.Context,
	businessID string,
) ([]*BusinessEmbedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*BusinessEmbedding
	for _, emb := range f.rows {
		if emb.BusinessID == businessID {
			copied := *emb
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeEmbeddingRepo) FindSimilar(
	_ context.Context,
	vector []float32,
	opts FindSimilarOptions,
) ([]SimilarBusiness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFindVector = vector
	f.lastFindOpts = opts
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	threshold := opts.SimilarityThreshold
	if threshold == 0 {
		threshold = 0.5
	}
	var hits []SimilarBusiness
	for _, emb := range f.rows {
		if emb.BusinessID == opts.ExcludeBusinessID {
			continue
		}
		sim, err := CosineSimilarity(vector, emb.Embedding)
		if err != nil {
			return nil, err
		}
		if sim <= threshold {
			continue
		}
		hits = append(hits, SimilarBusiness{
			ID:         emb.BusinessID,
			Name:       f.names[emb.BusinessID],
			Similarity: sim,
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeEmbeddingRepo) DeleteEmbedding(_ context.Context, businessID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, emb := range f.rows {
		if emb.BusinessID == businessID {
			delete(f.rows, key)
		}
	}
	return nil
}

func (f *fakeEmbeddingRepo) CountEmbeddings(_ context.Context, provider, model string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, emb := range f.rows {
		if provider != "" && emb.Provider != provider {
			continue
		}
		if model != "" && emb.Model != model {
			continue
		}
		count++
	}
	return count, nil
}

func (f *fakeEmbeddingRepo) Stats(_ context.Context, provider, model string) (*EmbeddingStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &EmbeddingStats{}
	totalDim := 0
	for _, emb := range f.rows {
		if emb.Provider != provider || emb.Model != model {
			continue
		}
		stats.TotalEmbeddings++
		totalDim += emb.Dimension
		created := emb.CreatedAt
		if stats.OldestEmbedding == nil || created.Before(*stats.OldestEmbedding) {
			stats.OldestEmbedding = &created
		}
		if stats.NewestEmbedding == nil || created.After(*stats.NewestEmbedding) {
			stats.NewestEmbedding = &created
		}
	}
	if stats.TotalEmbeddings > 0 {
		stats.AverageDimension = totalDim / stats.TotalEmbeddings
	}
	return stats, nil
}

// fakeJobsRepo is an in-memory JobsRepo.
type fakeJobsRepo struct {
	mu      sync.Mutex
	jobs    map[string]*JobProgress
	metrics []Metric
}

func newFakeJobsRepo() *fakeJobsRepo {
	return &fakeJobsRepo{jobs: make(map[string]*JobProgress)}
}

func (f *fakeJobsRepo) CreateJob(
	_ context.Context,
	jobName string,
	total int,
	provider, model string,
) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := core.MustNewID().String()
	now := time.Now().UTC()
	f.jobs[id] = &JobProgress{
		JobID:     id,
		JobName:   jobName,
		Status:    StatusProcessing,
		Provider:  provider,
		Model:     model,
		Total:     total,
		StartedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

func (f *fakeJobsRepo) GetJob(_ context.Context, jobID string) (*JobProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if progress, ok := f.jobs[jobID]; ok {
		copied := *progress
		return &copied, nil
	}
	return nil, ErrJobNotFound
}

func (f *fakeJobsRepo) IncrementProgress(
	_ context.Context,
	jobID string,
	processed, failed, skipped int,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	progress, ok := f.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	progress.Processed += processed
	progress.Failed += failed
	progress.Skipped += skipped
	progress.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeJobsRepo) CompleteJob(_ context.Context, jobID string, jobErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	progress, ok := f.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	now := time.Now().UTC()
	progress.CompletedAt = &now
	progress.UpdatedAt = now
	if jobErr != nil {
		progress.Status = StatusFailed
		progress.Error = jobErr.Error()
	} else {
		progress.Status = StatusCompleted
	}
	return nil
}

func (f *fakeJobsRepo) RecordMetric(
	_ context.Context,
	jobID, name string,
	value float64,
	tags map[string]string,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, Metric{
		JobID:     jobID,
		Name:      name,
		Value:     value,
		Tags:      tags,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (f *fakeJobsRepo) GetJobMetrics(_ context.Context, jobID, name string) ([]Metric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Metric
	for _, metric := range f.metrics {
		if metric.JobID != jobID {
			continue
		}
		if name != "" && metric.Name != name {
			continue
		}
		out = append(out, metric)
	}
	return out, nil
}

func (f *fakeJobsRepo) GetRecentJobs(_ context.Context, limit int) ([]*JobProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*JobProgress
	for _, progress := range f.jobs {
		copied := *progress
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeJobsRepo) ListIncompleteJobs(
	_ context.Context,
	provider, model string,
) ([]*JobProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*JobProgress
	for _, progress := range f.jobs {
		if progress.Provider != provider || progress.Model != model {
			continue
		}
		if progress.Status != StatusPending && progress.Status != StatusProcessing {
			continue
		}
		copied := *progress
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// failingEmbedder always errors, for retry path tests.
type failingEmbedder struct {
	calls int
	mu    sync.Mutex
}

func (f *failingEmbedder) EmbedText(
	context.Context,
	string,
	*llm.RequestOptions,
) (*llmadapter.EmbedResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil, fmt.Errorf("provider unavailable (call %d)", f.calls)
}

// countingEmbedder delegates to a fixed vector and counts calls.
type countingEmbedder struct {
	mu     sync.Mutex
	calls  int
	vector []float32
}

func (c *countingEmbedder) EmbedText(
	context.Context,
	string,
	*llm.RequestOptions,
) (*llmadapter.EmbedResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	vec := make([]float32, len(c.vector))
	copy(vec, c.vector)
	return &llmadapter.EmbedResult{Embedding: vec, Dimension: len(vec)}, nil
}

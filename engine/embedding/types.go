package embedding

import (
	"time"
)

// Content source types combined into a business's embedding input.
const (
	SourceName        = "name"
	SourceDescription = "description"
	SourceWebsite     = "website"
	SourceSocial      = "social"
)

// ContentSource is one typed piece of business content. Source order is
// significant for hashing.
type ContentSource struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Business is the read-side record embeddings are computed from.
type Business struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Website     string     `json:"website,omitempty"`
	Category    string     `json:"category,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// BusinessEmbedding is the persisted vector row. At most one row exists per
// (BusinessID, Provider, Model); Dimension always equals len(Embedding).
type BusinessEmbedding struct {
	ID          string    `json:"id"`
	BusinessID  string    `json:"businessId"`
	ContentHash string    `json:"contentHash"`
	Embedding   []float32 `json:"embedding"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Dimension   int       `json:"embeddingDimension"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// EmbeddingJobData is the wire shape enqueued to the durable queue. The
// content hash is the idempotence key.
type EmbeddingJobData struct {
	BusinessID  string `json:"businessId"`
	Content     string `json:"content"`
	ContentHash string `json:"contentHash"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	Priority    int    `json:"priority,omitempty"`
	RetryCount  int    `json:"retryCount"`
	MaxRetries  int    `json:"maxRetries"`
	// ProgressID links the job back to its backfill progress row.
	ProgressID string `json:"progressId,omitempty"`
}

// Job statuses for progress rows.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// JobProgress tracks one backfill run.
type JobProgress struct {
	JobID       string     `json:"jobId"`
	JobName     string     `json:"jobName"`
	Status      string     `json:"status"`
	Provider    string     `json:"provider"`
	Model       string     `json:"model"`
	Total       int        `json:"totalBusinesses"`
	Processed   int        `json:"processedBusinesses"`
	Failed      int        `json:"failedBusinesses"`
	Skipped     int        `json:"skippedBusinesses"`
	StartedAt   time.Time  `json:"startedAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"errorMessage,omitempty"`
}

// SimilarBusiness is one similarity search hit.
type SimilarBusiness struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

// GeoRadius restricts similarity hits to a circle around a point.
type GeoRadius struct {
	Latitude  float64
	Longitude float64
	RadiusKm  float64
}

// FindSimilarOptions tune a similarity search. Zero values fall back to
// Limit 10 and SimilarityThreshold 0.5.
type FindSimilarOptions struct {
	Limit               int
	SimilarityThreshold float64
	ExcludeBusinessID   string
	Category            string
	GeoRadius           *GeoRadius
	Provider            string
	Model               string
}

// EmbeddingStats summarizes the persisted vectors for one provider/model.
type EmbeddingStats struct {
	TotalEmbeddings  int
	AverageDimension int
	OldestEmbedding  *time.Time
	NewestEmbedding  *time.Time
}

// Metric is one append-only measurement attached to a backfill run.
type Metric struct {
	JobID     string            `json:"jobId"`
	Name      string            `json:"metricName"`
	Value     float64           `json:"metricValue"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

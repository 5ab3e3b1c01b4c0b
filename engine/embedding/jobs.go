package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bizradar/bizradar/engine/core"
)

// ErrJobNotFound is returned for lookups with no progress row.
var ErrJobNotFound = errors.New("embedding job not found")

// JobsRepo tracks backfill runs and their metrics.
type JobsRepo interface {
	CreateJob(ctx context.Context, jobName string, total int, provider, model string) (string, error)
	GetJob(ctx context.Context, jobID string) (*JobProgress, error)
	IncrementProgress(ctx context.Context, jobID string, processed, failed, skipped int) error
	CompleteJob(ctx context.Context, jobID string, jobErr error) error
	RecordMetric(ctx context.Context, jobID, name string, value float64, tags map[string]string) error
	GetJobMetrics(ctx context.Context, jobID, name string) ([]Metric, error)
	GetRecentJobs(ctx context.Context, limit int) ([]*JobProgress, error)
	ListIncompleteJobs(ctx context.Context, provider, model string) ([]*JobProgress, error)
}

type pgJobsRepo struct {
	db DB
}

func NewJobsRepo(db DB) JobsRepo {
	return &pgJobsRepo{db: db}
}

func (r *pgJobsRepo) CreateJob(
	ctx context.Context,
	jobName string,
	total int,
	provider, model string,
) (string, error) {
	id := core.MustNewID().String()
	now := time.Now().UTC()
	if _, err := r.db.Exec(ctx,
		`INSERT INTO embedding_jobs
			(id, job_name, status, total_count, processed_count, failed_count, skipped_count, provider, model, started_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, 0, $5, $6, $7, $7)`,
		id, jobName, StatusProcessing, total, provider, model, now,
	); err != nil {
		return "", fmt.Errorf("create job %q: %w", jobName, err)
	}
	return id, nil
}

func (r *pgJobsRepo) GetJob(ctx context.Context, jobID string) (*JobProgress, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, job_name, status, total_count, processed_count, failed_count, skipped_count,
			provider, model, started_at, updated_at, completed_at, error_message
		FROM embedding_jobs WHERE id = $1`,
		jobID,
	)
	progress, err := scanJobProgress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %q: %w", jobID, err)
	}
	return progress, nil
}

// IncrementProgress adds deltas to the counters. Counters only grow, so
// concurrent workers can report without coordinating.
func (r *pgJobsRepo) IncrementProgress(
	ctx context.Context,
	jobID string,
	processed, failed, skipped int,
) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE embedding_jobs
		SET processed_count = processed_count + $1,
			failed_count = failed_count + $2,
			skipped_count = skipped_count + $3,
			updated_at = $4
		WHERE id = $5`,
		processed, failed, skipped, time.Now().UTC(), jobID,
	); err != nil {
		return fmt.Errorf("update progress for job %q: %w", jobID, err)
	}
	return nil
}

func (r *pgJobsRepo) CompleteJob(ctx context.Context, jobID string, jobErr error) error {
	status := StatusCompleted
	var message *string
	if jobErr != nil {
		status = StatusFailed
		text := jobErr.Error()
		message = &text
	}
	now := time.Now().UTC()
	if _, err := r.db.Exec(ctx,
		`UPDATE embedding_jobs
		SET status = $1, completed_at = $2, error_message = $3, updated_at = $2
		WHERE id = $4`,
		status, now, message, jobID,
	); err != nil {
		return fmt.Errorf("complete job %q: %w", jobID, err)
	}
	return nil
}

func (r *pgJobsRepo) RecordMetric(
	ctx context.Context,
	jobID, name string,
	value float64,
	tags map[string]string,
) error {
	var tagsJSON []byte
	if len(tags) > 0 {
		encoded, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("encode metric tags: %w", err)
		}
		tagsJSON = encoded
	}
	if _, err := r.db.Exec(ctx,
		`INSERT INTO embedding_metrics (job_id, metric_name, metric_value, tags, timestamp)
		VALUES ($1, $2, $3, $4, $5)`,
		jobID, name, value, tagsJSON, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("record metric %q for job %q: %w", name, jobID, err)
	}
	return nil
}

func (r *pgJobsRepo) GetJobMetrics(ctx context.Context, jobID, name string) ([]Metric, error) {
	query := `SELECT job_id, metric_name, metric_value, tags, timestamp
		FROM embedding_metrics WHERE job_id = $1`
	args := []any{jobID}
	if name != "" {
		query += ` AND metric_name = $2`
		args = append(args, name)
	}
	query += ` ORDER BY timestamp DESC`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list metrics for job %q: %w", jobID, err)
	}
	defer rows.Close()
	var out []Metric
	for rows.Next() {
		var metric Metric
		var tagsJSON []byte
		if err := rows.Scan(&metric.JobID, &metric.Name, &metric.Value, &tagsJSON, &metric.Timestamp); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		if len(tagsJSON) > 0 {
			if err := json.Unmarshal(tagsJSON, &metric.Tags); err != nil {
				return nil, fmt.Errorf("decode metric tags: %w", err)
			}
		}
		out = append(out, metric)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list metrics rows: %w", err)
	}
	return out, nil
}

func (r *pgJobsRepo) GetRecentJobs(ctx context.Context, limit int) ([]*JobProgress, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, job_name, status, total_count, processed_count, failed_count, skipped_count,
			provider, model, started_at, updated_at, completed_at, error_message
		FROM embedding_jobs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	return collectJobs(rows)
}

func (r *pgJobsRepo) ListIncompleteJobs(
	ctx context.Context,
	provider, model string,
) ([]*JobProgress, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, job_name, status, total_count, processed_count, failed_count, skipped_count,
			provider, model, started_at, updated_at, completed_at, error_message
		FROM embedding_jobs
		WHERE status IN ($1, $2) AND provider = $3 AND model = $4
		ORDER BY started_at DESC`,
		StatusPending, StatusProcessing, provider, model,
	)
	if err != nil {
		return nil, fmt.Errorf("list incomplete jobs: %w", err)
	}
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]*JobProgress, error) {
	defer rows.Close()
	var out []*JobProgress
	for rows.Next() {
		progress, err := scanJobProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, progress)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job rows: %w", err)
	}
	return out, nil
}

func scanJobProgress(row pgx.Row) (*JobProgress, error) {
	progress := &JobProgress{}
	var completedAt *time.Time
	var message *string
	if err := row.Scan(
		&progress.JobID,
		&progress.JobName,
		&progress.Status,
		&progress.Total,
		&progress.Processed,
		&progress.Failed,
		&progress.Skipped,
		&progress.Provider,
		&progress.Model,
		&progress.StartedAt,
		&progress.UpdatedAt,
		&completedAt,
		&message,
	); err != nil {
		return nil, err
	}
	progress.CompletedAt = completedAt
	if message != nil {
		progress.Error = *message
	}
	return progress, nil
}

package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultQueueName = "compute-embeddings"

// DeadJob wraps a buried job with its failure reason.
type DeadJob struct {
	Job      EmbeddingJobData `json:"job"`
	Reason   string           `json:"reason"`
	BuriedAt time.Time        `json:"buriedAt"`
}

// Queue is a Redis-backed durable job queue: a pending list for ready work,
// a delayed zset scored by ready time for backoff retries, and a dead-letter
// list for unrecoverable jobs.
type Queue struct {
	client redis.UniversalClient
	name   string
}

func NewQueue(client redis.UniversalClient, name string) *Queue {
	if name == "" {
		name = defaultQueueName
	}
	return &Queue{client: client, name: name}
}

func (q *Queue) pendingKey() string { return q.name + ":pending" }
func (q *Queue) delayedKey() string { return q.name + ":delayed" }
func (q *Queue) deadKey() string    { return q.name + ":dead" }

// Enqueue makes the job immediately available to workers.
func (q *Queue) Enqueue(ctx context.Context, job *EmbeddingJobData) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job for %q: %w", job.BusinessID, err)
	}
	if err := q.client.LPush(ctx, q.pendingKey(), payload).Err(); err != nil {
		return fmt.Errorf("enqueue job for %q: %w", job.BusinessID, err)
	}
	return nil
}

// EnqueueBatch pushes jobs in one round trip.
func (q *Queue) EnqueueBatch(ctx context.Context, jobs []EmbeddingJobData) error {
	if len(jobs) == 0 {
		return nil
	}
	payloads := make([]any, 0, len(jobs))
	for i := range jobs {
		payload, err := json.Marshal(&jobs[i])
		if err != nil {
			return fmt.Errorf("encode job for %q: %w", jobs[i].BusinessID, err)
		}
		payloads = append(payloads, payload)
	}
	if err := q.client.LPush(ctx, q.pendingKey(), payloads...).Err(); err != nil {
		return fmt.Errorf("enqueue batch of %d: %w", len(jobs), err)
	}
	return nil
}

// Dequeue promotes due delayed jobs and then blocks up to timeout for the
// next pending job. A nil job with nil error means the timeout elapsed.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*EmbeddingJobData, error) {
	if err := q.promoteDue(ctx); err != nil {
		return nil, err
	}
	values, err := q.client.BRPop(ctx, timeout, q.pendingKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	// BRPOP returns [key, value].
	job := &EmbeddingJobData{}
	if err := json.Unmarshal([]byte(values[1]), job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}

// Retry reschedules the job after delay with its retry count incremented.
func (q *Queue) Retry(ctx context.Context, job *EmbeddingJobData, delay time.Duration) error {
	retried := *job
	retried.RetryCount++
	payload, err := json.Marshal(&retried)
	if err != nil {
		return fmt.Errorf("encode retry for %q: %w", job.BusinessID, err)
	}
	score := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, q.delayedKey(), redis.Z{Score: score, Member: payload}).Err(); err != nil {
		return fmt.Errorf("schedule retry for %q: %w", job.BusinessID, err)
	}
	return nil
}

// Bury moves the job to the dead-letter list. Buried jobs are never retried.
func (q *Queue) Bury(ctx context.Context, job *EmbeddingJobData, reason string) error {
	payload, err := json.Marshal(&DeadJob{Job: *job, Reason: reason, BuriedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode dead job for %q: %w", job.BusinessID, err)
	}
	if err := q.client.LPush(ctx, q.deadKey(), payload).Err(); err != nil {
		return fmt.Errorf("bury job for %q: %w", job.BusinessID, err)
	}
	return nil
}

// Len counts ready jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.pendingKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

// DelayedLen counts jobs waiting on a backoff delay.
func (q *Queue) DelayedLen(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("delayed length: %w", err)
	}
	return n, nil
}

// DeadLen counts buried jobs.
func (q *Queue) DeadLen(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.deadKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("dead-letter length: %w", err)
	}
	return n, nil
}

// DeadJobs returns the dead-letter contents, newest first.
func (q *Queue) DeadJobs(ctx context.Context) ([]DeadJob, error) {
	values, err := q.client.LRange(ctx, q.deadKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead jobs: %w", err)
	}
	out := make([]DeadJob, 0, len(values))
	for _, value := range values {
		var dead DeadJob
		if err := json.Unmarshal([]byte(value), &dead); err != nil {
			return nil, fmt.Errorf("decode dead job: %w", err)
		}
		out = append(out, dead)
	}
	return out, nil
}

// promoteDue moves delayed jobs whose ready time has passed back onto the
// pending list. ZRem gates the push so concurrent promoters cannot duplicate
// a job.
func (q *Queue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return fmt.Errorf("list due jobs: %w", err)
	}
	for _, member := range due {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), member).Result()
		if err != nil {
			return fmt.Errorf("promote job: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.pendingKey(), member).Err(); err != nil {
			return fmt.Errorf("requeue promoted job: %w", err)
		}
	}
	return nil
}

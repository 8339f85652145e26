// Package jobqueue holds ingest job queues that live outside Postgres.
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pdf-rag/internal/domain"
)

// DefaultPrefix namespaces every key the queue writes.
const DefaultPrefix = "pdfrag"

// RedisQueue keeps job ids in a Redis list and job state in one hash per job.
type RedisQueue struct {
	client *redis.Client
	prefix string
}

// NewRedisQueue wraps an existing client.
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisQueue{client: client, prefix: prefix}
}

// NewRedisQueueWithURL connects using a redis:// URL.
func NewRedisQueueWithURL(url, prefix string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return NewRedisQueue(redis.NewClient(opts), prefix), nil
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Ping checks the Redis connection.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) listKey() string {
	return q.prefix + ":ingest:queue"
}

func (q *RedisQueue) jobKey(id string) string {
	return q.prefix + ":ingest:job:" + id
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *domain.IngestJob) error {
	values, err := jobToValues(job)
	if err != nil {
		return err
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(job.ID), values)
		pipe.LPush(ctx, q.listKey(), job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// AcquireNextJob pops the oldest job id and marks that job as processing.
func (q *RedisQueue) AcquireNextJob(ctx context.Context) (*domain.IngestJob, error) {
	id, err := q.client.RPop(ctx, q.listKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to acquire next job: %w", err)
	}

	now := time.Now()
	if err := q.client.HSet(ctx, q.jobKey(id),
		"status", domain.JobStatusProcessing,
		"updated_at", now.Format(time.RFC3339Nano),
	).Err(); err != nil {
		return nil, fmt.Errorf("failed to mark job %s processing: %w", id, err)
	}
	return q.GetJob(ctx, id)
}

func (q *RedisQueue) UpdateStatus(ctx context.Context, id string, status string, errorMessage *string) error {
	values := []any{
		"status", status,
		"updated_at", time.Now().Format(time.RFC3339Nano),
	}
	if errorMessage != nil {
		values = append(values, "error_message", *errorMessage)
	}
	if err := q.client.HSet(ctx, q.jobKey(id), values...).Err(); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

func (q *RedisQueue) GetJob(ctx context.Context, id string) (*domain.IngestJob, error) {
	values, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return valuesToJob(values)
}

func (q *RedisQueue) Pending(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.listKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return n, nil
}

func jobToValues(job *domain.IngestJob) (map[string]any, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	values := map[string]any{
		"id":         job.ID,
		"job_type":   job.JobType,
		"payload":    string(payload),
		"status":     job.Status,
		"created_at": job.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": job.UpdatedAt.Format(time.RFC3339Nano),
	}
	if job.ErrorMessage != nil {
		values["error_message"] = *job.ErrorMessage
	}
	return values, nil
}

func valuesToJob(values map[string]string) (*domain.IngestJob, error) {
	job := &domain.IngestJob{
		ID:      values["id"],
		JobType: values["job_type"],
		Status:  values["status"],
	}
	if msg, ok := values["error_message"]; ok {
		job.ErrorMessage = &msg
	}
	if err := json.Unmarshal([]byte(values["payload"]), &job.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	var err error
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, values["created_at"]); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339Nano, values["updated_at"]); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return job, nil
}

var _ domain.IngestJobQueue = (*RedisQueue)(nil)

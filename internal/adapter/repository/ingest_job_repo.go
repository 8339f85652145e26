package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pdf-rag/internal/domain"
)

// IngestJobRepository is a Postgres-backed ingest job queue.
type IngestJobRepository struct {
	db PgxPool
}

func NewIngestJobRepository(db PgxPool) *IngestJobRepository {
	return &IngestJobRepository{db: db}
}

// EnsureSchema creates the job table if it does not exist.
func (r *IngestJobRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ingest_jobs (
			id            TEXT PRIMARY KEY,
			job_type      TEXT NOT NULL,
			payload       JSONB NOT NULL,
			status        TEXT NOT NULL,
			error_message TEXT,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure ingest_jobs table: %w", err)
	}
	return nil
}

func (r *IngestJobRepository) Enqueue(ctx context.Context, job *domain.IngestJob) error {
	query := `
		INSERT INTO ingest_jobs (id, job_type, payload, status, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	payloadBytes, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = r.db.Exec(ctx, query,
		job.ID,
		job.JobType,
		payloadBytes,
		job.Status,
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// AcquireNextJob claims the oldest new job. SKIP LOCKED lets several workers
// poll the same table without handing out a job twice.
func (r *IngestJobRepository) AcquireNextJob(ctx context.Context) (*domain.IngestJob, error) {
	query := `
		WITH next_job AS (
			SELECT id
			FROM ingest_jobs
			WHERE status = 'new'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE ingest_jobs
		SET status = 'processing', updated_at = $1
		FROM next_job
		WHERE ingest_jobs.id = next_job.id
		RETURNING ingest_jobs.id, ingest_jobs.job_type, ingest_jobs.payload, ingest_jobs.status,
			ingest_jobs.error_message, ingest_jobs.created_at, ingest_jobs.updated_at
	`

	job, err := scanJob(r.db.QueryRow(ctx, query, time.Now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to acquire next job: %w", err)
	}
	return job, nil
}

func (r *IngestJobRepository) UpdateStatus(ctx context.Context, id string, status string, errorMessage *string) error {
	query := `
		UPDATE ingest_jobs
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.Exec(ctx, query, status, errorMessage, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

func (r *IngestJobRepository) GetJob(ctx context.Context, id string) (*domain.IngestJob, error) {
	query := `
		SELECT id, job_type, payload, status, error_message, created_at, updated_at
		FROM ingest_jobs
		WHERE id = $1
	`
	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (r *IngestJobRepository) Pending(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM ingest_jobs WHERE status = 'new'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return n, nil
}

func scanJob(row pgx.Row) (*domain.IngestJob, error) {
	var (
		job          domain.IngestJob
		payloadBytes []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.JobType,
		&payloadBytes,
		&job.Status,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payloadBytes, &job.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &job, nil
}

var _ domain.IngestJobQueue = (*IngestJobRepository)(nil)

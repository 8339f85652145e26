package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobTypeIngestMarkdown ingests a converted markdown document into the chunk store.
const JobTypeIngestMarkdown = "ingest_markdown"

// Job statuses.
const (
	JobStatusNew        = "new"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// IngestJob is one unit of background work for the write path.
type IngestJob struct {
	ID           string
	JobType      string
	Payload      map[string]interface{}
	Status       string
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewIngestJob creates a queued markdown ingest job for the given document name.
func NewIngestJob(name string) *IngestJob {
	now := time.Now()
	return &IngestJob{
		ID:        "convert-" + uuid.NewString(),
		JobType:   JobTypeIngestMarkdown,
		Payload:   map[string]interface{}{"name": name},
		Status:    JobStatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IngestJobQueue stores background ingest jobs.
type IngestJobQueue interface {
	Enqueue(ctx context.Context, job *IngestJob) error
	// AcquireNextJob marks the oldest new job as processing and returns it.
	// Returns nil, nil when the queue is empty.
	AcquireNextJob(ctx context.Context) (*IngestJob, error)
	UpdateStatus(ctx context.Context, id string, status string, errorMessage *string) error
	GetJob(ctx context.Context, id string) (*IngestJob, error)
	// Pending counts jobs that have not been picked up yet.
	Pending(ctx context.Context) (int64, error)
}

// ErrJobNotFound is returned by GetJob for unknown ids.
var ErrJobNotFound = errors.New("job not found")

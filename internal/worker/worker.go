package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pdf-rag/internal/domain"
	"pdf-rag/internal/infra/logger"
	"pdf-rag/internal/infra/metrics"
	"pdf-rag/internal/usecase"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	jobTimeout          = 5 * time.Minute
	statusUpdateTimeout = 5 * time.Second
	initialBackoff      = 1 * time.Second
	maxBackoff          = 5 * time.Minute
)

// Rebuilder refreshes the retrievers after the store changed.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

// CompletionNotifier tells an upstream service that a job finished.
type CompletionNotifier interface {
	NotifyConverted(ctx context.Context, jobID string) error
}

// Config controls how ingest jobs are processed.
type Config struct {
	MarkdownFolder     string
	RebuildAfterIngest bool
	PollInterval       time.Duration
}

// JobWorker polls the ingest queue and feeds markdown documents into the data pipeline.
type JobWorker struct {
	queue     domain.IngestJobQueue
	data      usecase.DataPipeline
	rebuilder Rebuilder
	notifier  CompletionNotifier
	cfg       Config
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	backoff   time.Duration
}

// NewJobWorker creates a worker. rebuilder and notifier may be nil.
func NewJobWorker(
	queue domain.IngestJobQueue,
	data usecase.DataPipeline,
	rebuilder Rebuilder,
	notifier CompletionNotifier,
	cfg Config,
	logger *slog.Logger,
) *JobWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobWorker{
		queue:     queue,
		data:      data,
		rebuilder: rebuilder,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (w *JobWorker) Start() {
	w.logger.Info("ingest_worker_started", slog.Duration("poll_interval", w.cfg.PollInterval))
	go w.run()
}

// Stop cancels the job in flight and waits for the loop to exit.
func (w *JobWorker) Stop() {
	w.logger.Info("ingest_worker_stopping")
	w.cancel()
	<-w.done
}

func (w *JobWorker) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.processNextJob()
			if w.backoff > 0 {
				ticker.Reset(w.backoff)
			} else {
				ticker.Reset(w.cfg.PollInterval)
			}
		}
	}
}

func (w *JobWorker) processNextJob() {
	ctx, cancel := context.WithTimeout(w.ctx, jobTimeout)
	defer cancel()

	if n, err := w.queue.Pending(ctx); err == nil {
		metrics.SetQueueDepth(n)
	}

	job, err := w.queue.AcquireNextJob(ctx)
	if err != nil {
		w.logger.Error("ingest_job_acquire_failed", slog.String("error", err.Error()))
		w.backoff = w.nextBackoff(w.backoff)
		return
	}
	if job == nil {
		return
	}

	ctx = logger.WithJobID(ctx, job.ID)
	w.logger.InfoContext(ctx, "ingest_job_started", slog.String("type", job.JobType))

	var processErr error
	switch job.JobType {
	case domain.JobTypeIngestMarkdown:
		processErr = w.processIngestMarkdown(ctx, job)
	default:
		processErr = fmt.Errorf("unknown job type: %s", job.JobType)
	}

	status := domain.JobStatusCompleted
	var errMsg *string
	if processErr != nil {
		status = domain.JobStatusFailed
		msg := processErr.Error()
		errMsg = &msg
		w.backoff = w.nextBackoff(w.backoff)
		w.logger.WarnContext(ctx, "ingest_worker_backing_off",
			slog.Duration("backoff", w.backoff),
			slog.String("error", msg),
		)
	} else {
		w.backoff = 0
		w.logger.InfoContext(ctx, "ingest_job_completed")
	}
	metrics.RecordJob(job.JobType, status)

	// A job interrupted by Stop is still recorded as failed.
	updateCtx, cancelUpdate := context.WithTimeout(context.WithoutCancel(ctx), statusUpdateTimeout)
	defer cancelUpdate()
	if err := w.queue.UpdateStatus(updateCtx, job.ID, status, errMsg); err != nil {
		w.logger.ErrorContext(ctx, "ingest_job_status_update_failed", slog.String("error", err.Error()))
	}
}

func (w *JobWorker) nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return initialBackoff
	}
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// MarkdownPath maps an uploaded file name such as "report.pdf" to its
// converted markdown file inside folder.
func MarkdownPath(folder, name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(folder, base+".md")
}

func (w *JobWorker) processIngestMarkdown(ctx context.Context, job *domain.IngestJob) error {
	name, ok := job.Payload["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("missing or invalid name")
	}

	path := MarkdownPath(w.cfg.MarkdownFolder, name)
	ctx = logger.WithDocumentName(ctx, filepath.Base(path))
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("markdown for %s not available: %w", name, err)
	}

	if _, err := w.data.AddDocument(ctx, path); err != nil {
		return err
	}

	if w.cfg.RebuildAfterIngest && w.rebuilder != nil {
		if err := w.rebuilder.Rebuild(ctx); err != nil {
			return fmt.Errorf("document stored but rebuild failed: %w", err)
		}
	}

	if w.notifier != nil {
		if err := w.notifier.NotifyConverted(ctx, job.ID); err != nil {
			// The document is already searchable; a failed callback does not fail the job.
			w.logger.WarnContext(ctx, "ingest_notify_failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

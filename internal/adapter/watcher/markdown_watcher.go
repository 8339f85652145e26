// Package watcher turns markdown files dropped into a folder into ingest jobs.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pdf-rag/internal/domain"
)

const defaultDebounce = 500 * time.Millisecond

// Enqueuer accepts new ingest jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *domain.IngestJob) error
}

// MarkdownWatcher enqueues one ingest job per .md file created or rewritten in
// a folder. Bursts of write events for the same file collapse into one job.
type MarkdownWatcher struct {
	folder   string
	queue    Enqueuer
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewMarkdownWatcher(folder string, queue Enqueuer, debounce time.Duration, logger *slog.Logger) *MarkdownWatcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &MarkdownWatcher{
		folder:   folder,
		queue:    queue,
		debounce: debounce,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
	}
}

// Start begins watching. The watcher stops when ctx is cancelled or Close is called.
func (m *MarkdownWatcher) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(m.folder); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", m.folder, err)
	}

	m.watcher = w
	m.done = make(chan struct{})
	go m.loop(ctx)

	m.logger.Info("markdown_watcher_started",
		slog.String("folder", m.folder),
		slog.Duration("debounce", m.debounce))
	return nil
}

// Close stops the watcher and drops events still waiting for their debounce.
func (m *MarkdownWatcher) Close() error {
	if m.watcher == nil {
		return nil
	}
	err := m.watcher.Close()
	<-m.done

	m.mu.Lock()
	for name, t := range m.pending {
		t.Stop()
		delete(m.pending, name)
	}
	m.mu.Unlock()
	return err
}

func (m *MarkdownWatcher) loop(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".md") {
				continue
			}
			m.schedule(ctx, filepath.Base(event.Name))
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("markdown_watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (m *MarkdownWatcher) schedule(ctx context.Context, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.pending[name]; ok {
		t.Reset(m.debounce)
		return
	}
	m.pending[name] = time.AfterFunc(m.debounce, func() {
		m.mu.Lock()
		delete(m.pending, name)
		m.mu.Unlock()
		m.enqueue(ctx, name)
	})
}

func (m *MarkdownWatcher) enqueue(ctx context.Context, name string) {
	if ctx.Err() != nil {
		return
	}
	job := domain.NewIngestJob(name)
	if err := m.queue.Enqueue(ctx, job); err != nil {
		m.logger.Error("markdown_watcher_enqueue_failed",
			slog.String("document", name),
			slog.String("error", err.Error()))
		return
	}
	m.logger.Info("markdown_watcher_enqueued",
		slog.String("document", name),
		slog.String("job_id", job.ID))
}

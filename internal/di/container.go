package di

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pdf-rag/internal/adapter/backend"
	"pdf-rag/internal/adapter/jobqueue"
	"pdf-rag/internal/adapter/llm"
	"pdf-rag/internal/adapter/repository"
	"pdf-rag/internal/adapter/vectorstore"
	"pdf-rag/internal/adapter/watcher"
	"pdf-rag/internal/domain"
	"pdf-rag/internal/infra"
	"pdf-rag/internal/infra/config"
	"pdf-rag/internal/infra/httpclient"
	"pdf-rag/internal/usecase"
	"pdf-rag/internal/usecase/retrieval"
	"pdf-rag/internal/worker"
)

const backendTimeout = 30 * time.Second

// StoreFactory opens a chunk store backend.
type StoreFactory func(ctx context.Context, d *Deps) (domain.ChunkStore, error)

// QueueFactory opens an ingest job queue backend.
type QueueFactory func(ctx context.Context, d *Deps) (domain.IngestJobQueue, error)

// DefaultStores lists the chunk store backends selectable through CHUNK_STORE.
func DefaultStores() *domain.Registry[StoreFactory] {
	r := domain.NewRegistry[StoreFactory]()
	r.Register(config.StorePgvector, func(ctx context.Context, d *Deps) (domain.ChunkStore, error) {
		pool, err := d.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		store := repository.NewPgvectorChunkStore(pool, d.Embedder, d.Config.Store.Collection, d.Logger)
		if err := store.EnsureCollection(ctx); err != nil {
			return nil, err
		}
		return store, nil
	})
	r.Register(config.StoreQdrant, func(ctx context.Context, d *Deps) (domain.ChunkStore, error) {
		return vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			URL:        d.Config.Store.VectorURL,
			APIKey:     d.Config.Store.APIKey,
			Collection: d.Config.Store.Collection,
		}, httpclient.NewPooledClient(d.Config.LLM.Timeout), d.Embedder, d.Logger), nil
	})
	r.Register(config.StoreMemory, func(ctx context.Context, d *Deps) (domain.ChunkStore, error) {
		return vectorstore.NewMemoryStore(d.Embedder), nil
	})
	return r
}

// DefaultQueues lists the job queue backends selectable through JOB_QUEUE.
func DefaultQueues() *domain.Registry[QueueFactory] {
	r := domain.NewRegistry[QueueFactory]()
	r.Register(config.QueuePostgres, func(ctx context.Context, d *Deps) (domain.IngestJobQueue, error) {
		pool, err := d.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		repo := repository.NewIngestJobRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	})
	r.Register(config.QueueRedis, func(ctx context.Context, d *Deps) (domain.IngestJobQueue, error) {
		q, err := jobqueue.NewRedisQueueWithURL(d.Config.Jobs.RedisURL, d.Config.Jobs.RedisPrefix)
		if err != nil {
			return nil, err
		}
		d.OnClose(func() { _ = q.Close() })
		return q, nil
	})
	return r
}

// Deps is what backend factories share while the container is assembled.
type Deps struct {
	Config   *config.Config
	Logger   *slog.Logger
	Embedder domain.Embedder

	pool    *pgxpool.Pool
	closers []func()
}

// Postgres opens the shared pool on first use.
func (d *Deps) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if d.pool != nil {
		return d.pool, nil
	}
	pool, err := infra.NewPostgresPool(ctx, d.Config.DB.DSN(), d.Config.DB.MaxConns)
	if err != nil {
		return nil, err
	}
	d.pool = pool
	d.OnClose(pool.Close)
	return pool, nil
}

// OnClose registers fn to run when the container closes.
func (d *Deps) OnClose(fn func()) {
	d.closers = append(d.closers, fn)
}

// Container holds every long-lived component. Build it once at startup,
// share it across requests and Close it at shutdown.
type Container struct {
	Config    *config.Config
	Logger    *slog.Logger
	Embedder  domain.Embedder
	Store     domain.ChunkStore
	Segmentor domain.Segmentor
	Data      usecase.DataPipeline
	RAG       *usecase.RAGService
	Queue     domain.IngestJobQueue
	Worker    *worker.JobWorker
	// Watcher is nil unless WATCH_MARKDOWN_FOLDER is set.
	Watcher *watcher.MarkdownWatcher

	closers []func()
}

// Registries lets callers add backends before the container is built.
type Registries struct {
	Stores     *domain.Registry[StoreFactory]
	Queues     *domain.Registry[QueueFactory]
	Segmentors *domain.Registry[domain.SegmentorFactory]
}

func DefaultRegistries() Registries {
	return Registries{
		Stores:     DefaultStores(),
		Queues:     DefaultQueues(),
		Segmentors: domain.DefaultSegmentors(),
	}
}

// NewContainer wires the application from cfg using the default registries.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	return NewContainerWithRegistries(ctx, cfg, logger, DefaultRegistries())
}

func NewContainerWithRegistries(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg Registries) (_ *Container, err error) {
	d := &Deps{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			runClosers(d.closers)
		}
	}()

	gateway := llm.NewGateway(httpclient.NewPooledClient(cfg.LLM.Timeout), cfg.LLM.RateLimitRPS, logger)

	embedder, err := gateway.NewEmbedder(cfg.Embedding.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	if cfg.Embedding.CacheSize > 0 {
		embedder = llm.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize, cfg.Embedding.CacheTTL)
	}
	d.Embedder = embedder

	models, err := gateway.NewChatModels(cfg.RAG.Models)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat models: %w", err)
	}

	prompt, err := newPrompt(cfg.RAG.PromptTemplateFile)
	if err != nil {
		return nil, err
	}

	newSegmentor, err := reg.Segmentors.Lookup(cfg.RAG.Segmentor)
	if err != nil {
		return nil, err
	}
	segmentor := newSegmentor()

	newStore, err := reg.Stores.Lookup(cfg.Store.Backend)
	if err != nil {
		return nil, err
	}
	store, err := newStore(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk store %s: %w", cfg.Store.Backend, err)
	}

	newQueue, err := reg.Queues.Lookup(cfg.Jobs.Queue)
	if err != nil {
		return nil, err
	}
	queue, err := newQueue(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("failed to open job queue %s: %w", cfg.Jobs.Queue, err)
	}

	data := usecase.NewDataPipeline(store, segmentor, logger)
	rag, err := usecase.NewRAGService(ctx, models, prompt,
		retrieval.NewLexicalBuilder(store, cfg.RAG.KeywordK, logger),
		retrieval.NewSemanticBuilder(store, cfg.RAG.SemanticK, logger),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build rag service: %w", err)
	}

	var notifier worker.CompletionNotifier
	if cfg.Jobs.BackendServerURL != "" {
		notifier = backend.NewHTTPNotifier(cfg.Jobs.BackendServerURL, httpclient.NewPooledClient(backendTimeout), logger)
	}
	jobWorker := worker.NewJobWorker(queue, data, rag, notifier, worker.Config{
		MarkdownFolder:     cfg.Jobs.MarkdownFolder,
		RebuildAfterIngest: cfg.RAG.RebuildAfterIngest,
		PollInterval:       cfg.Jobs.PollInterval,
	}, logger)

	var mdWatcher *watcher.MarkdownWatcher
	if cfg.Jobs.WatchMarkdownFolder {
		mdWatcher = watcher.NewMarkdownWatcher(cfg.Jobs.MarkdownFolder, queue, 0, logger)
	}

	logger.Info("container_ready",
		slog.String("chunk_store", cfg.Store.Backend),
		slog.String("job_queue", cfg.Jobs.Queue),
		slog.String("segmentor", segmentor.Name()),
		slog.String("embedder", embedder.Version()),
		slog.Any("models", rag.Models()),
	)

	return &Container{
		Config:    cfg,
		Logger:    logger,
		Embedder:  embedder,
		Store:     store,
		Segmentor: segmentor,
		Data:      data,
		RAG:       rag,
		Queue:     queue,
		Worker:    jobWorker,
		Watcher:   mdWatcher,
		closers:   d.closers,
	}, nil
}

func newPrompt(path string) (*usecase.PromptTemplate, error) {
	if path == "" {
		return usecase.NewPromptTemplate(usecase.DefaultPromptTemplate)
	}
	return usecase.LoadPromptTemplate(path)
}

// Close releases the database pool and queue connections.
func (c *Container) Close() {
	runClosers(c.closers)
	c.closers = nil
}

func runClosers(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

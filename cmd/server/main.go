package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	rag_http "pdf-rag/internal/adapter/rag_http"
	"pdf-rag/internal/di"
	"pdf-rag/internal/infra/config"
	"pdf-rag/internal/infra/logger"
	otelprovider "pdf-rag/internal/infra/otel"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server_exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// 1. Environment and config
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Telemetry, then the logger so it can bridge into the log provider
	shutdownOTel, err := otelprovider.InitProvider(ctx, otelprovider.Config{
		ServiceName:  cfg.OTel.ServiceName,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTel.Endpoint,
		Enabled:      cfg.OTel.Enabled,
		SampleRatio:  cfg.OTel.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to init otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			slog.Error("otel_shutdown_failed", slog.String("error", err.Error()))
		}
	}()

	log := logger.New(logger.Options{
		ServiceName: cfg.OTel.ServiceName,
		Level:       cfg.LogLevel,
		EnableOTel:  cfg.OTel.Enabled,
	})
	slog.SetDefault(log)

	// 3. Components
	container, err := di.NewContainer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer container.Close()

	// 4. Background ingest
	container.Worker.Start()
	defer container.Worker.Stop()

	if container.Watcher != nil {
		if err := container.Watcher.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = container.Watcher.Close() }()
	}

	// 5. HTTP
	e := newEcho(cfg, log)
	rag_http.NewHandler(container.RAG, container.Data, container.Queue, container.Store, log).Register(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	var handler http.Handler = e
	if cfg.HTTPH2C {
		handler = h2c.NewHandler(e, &http2.Server{})
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server_starting", slog.String("addr", srv.Addr), slog.Bool("h2c", cfg.HTTPH2C))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 6. Graceful shutdown
	select {
	case <-ctx.Done():
		log.Info("server_shutting_down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func newEcho(cfg *config.Config, log *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if cfg.OTel.Enabled {
		e.Use(otelecho.Middleware(cfg.OTel.ServiceName))
	}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/healthz" || p == "/readyz" || p == "/metrics"
		},
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			rctx := c.Request().Context()
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Int64("latency_ms", v.Latency.Milliseconds()),
			}
			if v.Error != nil {
				log.ErrorContext(rctx, "request_failed", append(attrs, slog.String("error", v.Error.Error()))...)
				return nil
			}
			log.InfoContext(rctx, "request_completed", attrs...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	return e
}

// Command ragctl manages documents and asks questions against the configured
// chunk store without going through the HTTP server.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pdf-rag/internal/di"
	"pdf-rag/internal/infra/config"
	"pdf-rag/internal/infra/logger"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(openContainer)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// openContainer builds the same components the server uses, logging to stderr.
func openContainer(ctx context.Context, verbose bool) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	log := logger.New(logger.Options{ServiceName: "ragctl", Level: level, Output: os.Stderr})
	slog.SetDefault(log)

	c, err := di.NewContainer(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &services{
		Data:  c.Data,
		RAG:   c.RAG,
		Queue: c.Queue,
		Close: c.Close,
	}, nil
}

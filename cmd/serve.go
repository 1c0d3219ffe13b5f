package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/havenmind/haven/internal/api"
	"github.com/havenmind/haven/internal/app"
	"github.com/havenmind/haven/internal/config"
)

// runServe initializes the application and runs the HTTP API server
// until SIGINT or SIGTERM.
func runServe() error {
	logger := initLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting haven", "version", Version)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	server := api.NewServer(a.Service, a.Sessions, a.DBPool, a.Registry, logger)
	if err := server.Run(ctx, cfg.ServerAddr); err != nil {
		return fmt.Errorf("running server: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/technoetl/bulkmedia/internal/config"
	"github.com/technoetl/bulkmedia/internal/history"
	"github.com/technoetl/bulkmedia/internal/ingest"
	"github.com/technoetl/bulkmedia/internal/logging"
	"github.com/technoetl/bulkmedia/internal/magento"
	"github.com/technoetl/bulkmedia/internal/obs"
	"github.com/technoetl/bulkmedia/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"magento_base_url", cfg.Magento.BaseURL,
		"max_concurrent_runs", cfg.Upload.MaxConcurrentRuns,
		"history_enabled", cfg.Database.HistoryEnabled(),
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	// Run history is optional. Without DATABASE_URL the service runs with
	// in-memory results only.
	var hist *history.Store
	if cfg.Database.HistoryEnabled() {
		poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			slog.Error("failed to parse database URL", "error", err)
			os.Exit(1)
		}
		poolConfig.MaxConns = int32(cfg.Database.MaxConns)

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			slog.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		hist = history.New(pool)
		if err := hist.Init(ctx); err != nil {
			slog.Error("failed to initialize run history schema", "error", err)
			os.Exit(1)
		}
		slog.Info("run history enabled")
	}

	sink := magento.NewClient(cfg.Magento.BaseURL, cfg.Magento.Token, cfg.Magento.Timeout)

	serviceCfg := ingest.ServiceConfig{
		Sink:              sink,
		MaxFileSize:       cfg.Upload.MaxFileSize,
		AttemptDelay:      cfg.Upload.AttemptDelay,
		ProductDelay:      cfg.Upload.ProductDelay,
		MaxConcurrentRuns: cfg.Upload.MaxConcurrentRuns,
		RunWaitTime:       cfg.Upload.MaxWaitTime,
		RunTimeout:        cfg.Upload.RunTimeout,
		Metrics:           obs.New(),
	}
	if hist != nil {
		serviceCfg.History = hist
	}

	service, err := ingest.NewService(serviceCfg)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(cfg, service, hist)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if active, _ := service.LimiterStatus(); active > 0 {
			slog.Warn("upload runs still active at shutdown", "active", active)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chainvest/chainvest/service/config"
	"github.com/chainvest/chainvest/service/db"
	"github.com/chainvest/chainvest/service/esplora"
	"github.com/chainvest/chainvest/service/ledger"
	"github.com/chainvest/chainvest/service/metrics"
	natspkg "github.com/chainvest/chainvest/service/nats"
	"github.com/chainvest/chainvest/service/server"
	"github.com/chainvest/chainvest/service/watcher"
)

func main() {
	// Load and validate configuration from environment.
	// This fails fast if any required config is missing or invalid.
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"address", cfg.BTCAddress,
		"network", cfg.Network,
		"confirmations", cfg.RequiredConfirmations,
		"poll_interval", cfg.PollInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Ledger store: Postgres when DATABASE_URL is set, local JSON file
	// otherwise.
	var store ledger.Store
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		pgStore, err := db.NewStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			logger.Error("failed to initialize database store", "error", err)
			os.Exit(1)
		}
		store = pgStore
		logger.Info("using Postgres ledger store")
	} else {
		fileStore, err := ledger.NewFileStore(cfg.LedgerPath, logger)
		if err != nil {
			logger.Error("failed to open ledger file", "error", err, "path", cfg.LedgerPath)
			os.Exit(1)
		}
		store = fileStore
		logger.Info("using file ledger store", "path", cfg.LedgerPath)
	}
	defer store.Close()

	// Esplora client for chain data.
	chain := esplora.NewClient(esplora.ClientConfig{
		BaseURL:        cfg.EsploraBaseURL(),
		RequestTimeout: cfg.RequestTimeout,
		MaxRetries:     2,
	}, m, logger)
	logger.Info("initialized esplora client", "url", cfg.EsploraBaseURL())

	// NATS publisher and SSE bridge are optional; without NATS the
	// service still polls and credits, it just cannot stream.
	var publisher natspkg.Publisher
	var ssePublisher *server.SSEPublisher
	if cfg.NATSURL != "" {
		jsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err, "nats_url", cfg.NATSURL)
			os.Exit(1)
		}
		publisher = jsPublisher
		defer publisher.Close()

		ssePublisher, err = server.NewSSEPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to initialize SSE publisher", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("NATS_URL not set, deposit streaming disabled")
	}

	// Start the reconciliation watcher.
	w := watcher.New(watcher.Config{
		Address:               cfg.BTCAddress,
		Network:               cfg.Network,
		RequiredConfirmations: cfg.RequiredConfirmations,
		PollInterval:          cfg.PollInterval,
	}, chain, store, publisher, m, logger)

	watcherErrors := make(chan error, 1)
	go func() {
		watcherErrors <- w.Run(ctx)
	}()

	httpServer := server.New(cfg.ServerAddr, cfg, store, ssePublisher, m, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case err := <-watcherErrors:
		if err != nil && err != context.Canceled {
			logger.Error("watcher error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Stop the watcher loop, then drain HTTP connections.
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

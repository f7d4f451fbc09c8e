package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/gatewatch/gatewatch/service/config"
	"github.com/gatewatch/gatewatch/service/db"
	"github.com/gatewatch/gatewatch/service/metrics"
	"github.com/gatewatch/gatewatch/service/nats"
	"github.com/gatewatch/gatewatch/service/poller"
	"github.com/gatewatch/gatewatch/service/registry"
	"github.com/gatewatch/gatewatch/service/server"
	"github.com/gatewatch/gatewatch/service/solana"
	"github.com/gatewatch/gatewatch/service/ws"
)

func main() {
	// Load and validate configuration from environment.
	// This fails fast if any required config is missing or invalid.
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"poll_interval", cfg.PollInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	store := db.NewStore(dbPool)
	m := metrics.NewMetrics(nil)

	// Ledger client, paced by a token bucket so detail lookups respect the
	// RPC endpoint's rate limit.
	limiter := rate.NewLimiter(rate.Limit(cfg.LedgerDetailRate), cfg.LedgerDetailBurst)
	rpcClient := solana.NewRPCClient(cfg.SolanaRPCURL)
	ledger := solana.NewClient(rpcClient, cfg.SolanaRPCURL, limiter, m, logger)
	logger.Info("initialized ledger RPC client", "url", cfg.SolanaRPCURL)

	// NATS JetStream publisher. Optional: the service degrades to HTTP plus
	// WebSocket distribution if NATS is unreachable.
	var publisher nats.Publisher
	js, err := nats.NewPublisher(cfg.NATSURL, m, logger)
	if err != nil {
		logger.Warn("NATS unavailable, continuing without JetStream publishing", "error", err)
	} else {
		publisher = js
		defer js.Close()
	}

	// Address registry: single owning goroutine for the watch set.
	reg := registry.NewRegistry(cfg.MaxWatchedAddrs, m, logger)
	registryCtx, stopRegistry := context.WithCancel(context.Background())
	registryDone := make(chan struct{})
	go func() {
		reg.Run(registryCtx)
		close(registryDone)
	}()

	// Subscription hub
	hub := ws.NewHub(cfg.HeartbeatInterval, cfg.HeartbeatGrace, m, logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()

	// Poller
	classifier := poller.NewClassifier(cfg.BundleThreshold, cfg.PriorityThreshold)
	p := poller.NewPoller(
		ledger, store, reg, hub, publisher, classifier,
		cfg.PollInterval, cfg.PollPageLimit, m, logger,
	)
	pollerCtx, stopPoller := context.WithCancel(context.Background())
	pollerDone := make(chan struct{})
	go func() {
		p.Run(pollerCtx)
		close(pollerDone)
	}()

	// HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, store, reg, hub, m, logger)
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
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	// Ordered shutdown: stop scheduling ticks and wait for any in-flight
	// tick, then close subscriptions, then drain HTTP.
	stopPoller()
	select {
	case <-pollerDone:
	case <-time.After(60 * time.Second):
		logger.Warn("timed out waiting for poller to stop")
	}

	stopHub()
	<-hubDone

	stopRegistry()
	<-registryDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server gracefully", "error", err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
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

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

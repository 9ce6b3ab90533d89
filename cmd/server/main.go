package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"portfolio_bridge/internal/aggregation"
	"portfolio_bridge/internal/broker"
	"portfolio_bridge/internal/broker/nordnet"
	"portfolio_bridge/internal/broker/robinhood"
	"portfolio_bridge/internal/broker/webull"
	"portfolio_bridge/internal/client"
	"portfolio_bridge/internal/config"
	"portfolio_bridge/internal/database"
	"portfolio_bridge/internal/handlers"
	"portfolio_bridge/internal/heartbeat"
	"portfolio_bridge/internal/logging"
	"portfolio_bridge/internal/models"
	"portfolio_bridge/internal/ratelimit"
	"portfolio_bridge/internal/repository"
	"portfolio_bridge/internal/scheduler"
	"portfolio_bridge/internal/session"
)

// syncHistoryRetention bounds how long provider fetch outcomes are kept.
const syncHistoryRetention = 90 * 24 * time.Hour

func main() {
	// Load configuration
	cfg := config.New()

	logger, err := logging.New(cfg.LogLevel, cfg.Environment())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// Initialize database
	db, err := database.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(); err != nil {
		return err
	}
	logger.Info("database migrations completed", zap.String("path", cfg.DBPath))

	// Session encryption
	secret, err := broker.LoadOrCreateSecret(cfg.KeyPath)
	if err != nil {
		return err
	}
	encryptor, err := broker.NewEncryptor(secret)
	if err != nil {
		return err
	}

	// Create repositories
	blobRepo := repository.NewBlobRepository(db)
	syncHistoryRepo := repository.NewSyncHistoryRepository(db)
	if n, err := syncHistoryRepo.DeleteOlderThan(time.Now().Add(-syncHistoryRetention)); err != nil {
		logger.Warn("pruning sync history", zap.Error(err))
	} else if n > 0 {
		logger.Info("pruned sync history", zap.Int64("rows", n))
	}

	// Provider adapters
	nordnetAdapter, err := nordnet.New(cfg.NordnetCountry, cfg.NordnetBaseURL)
	if err != nil {
		return err
	}
	registry := broker.NewRegistry(
		robinhood.New(cfg.RobinhoodBaseURL),
		webull.New(cfg.WebullBaseURL),
		nordnetAdapter,
	)

	// Sessions and the authenticated client
	store := session.NewStore(blobRepo, encryptor, logger)
	store.Load()

	limiter := ratelimit.New(ratelimit.Config{Limit: cfg.RateLimitRequests, Window: cfg.RateLimitWindow}, logger)
	apiClient := client.New(registry, store, limiter, client.Options{SessionLifetime: cfg.SessionLifetime}, logger)
	extractor := session.NewExtractor(store, registry, cfg.ExtractionTimeout, cfg.SessionLifetime, logger)

	// Aggregation
	engine := aggregation.NewEngine(
		apiClient,
		store,
		aggregation.NewHistoryStore(blobRepo, logger),
		syncHistoryRepo,
		aggregation.Options{SummaryTTL: cfg.SummaryTTL, WatchlistTTL: cfg.WatchlistTTL},
		logger,
	)

	// Session keep-alive
	monitor := heartbeat.New(apiClient, store, heartbeat.Callbacks{
		OnSessionExpired: func(p models.Provider, err error) {
			logger.Warn("session expired", zap.String("provider", string(p)), zap.Error(err))
			engine.InvalidateCache()
		},
		OnConnectionLost: func(p models.Provider, err error) {
			logger.Warn("provider connection lost", zap.String("provider", string(p)), zap.Error(err))
			engine.InvalidateCache()
		},
	}, logger)
	defer monitor.Close()

	heartbeatDefaults := heartbeat.Config{Interval: cfg.HeartbeatInterval, RetryAttempts: cfg.HeartbeatRetries}
	for _, p := range store.ActiveProviders() {
		monitor.Start(p, heartbeatDefaults)
	}

	// Background snapshots
	snapshots, err := scheduler.New(cfg.SnapshotSchedule, engine, logger)
	if err != nil {
		return err
	}
	snapshots.Start()

	deps := handlers.NewDependencies().
		WithLogger(logger).
		WithSyncHistoryRepo(syncHistoryRepo).
		WithRegistry(registry).
		WithSessions(store, extractor).
		WithClient(apiClient).
		WithHeartbeat(monitor, heartbeatDefaults).
		WithAggregation(engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create server
	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handlers.NewRouter(ctx, deps, handlers.RouterOptions{APIToken: cfg.APIToken}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // navigation blocks for up to the extraction timeout
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", "http://"+cfg.Address()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return err
	}

	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	snapshots.Stop(shutdownCtx)
	monitor.StopAll()
	store.Save()

	logger.Info("server stopped")
	return nil
}

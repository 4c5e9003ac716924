// Package main is the entrypoint for the chartsage API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sharadbhat/chartsage/internal/ai"
	"github.com/sharadbhat/chartsage/internal/api"
	"github.com/sharadbhat/chartsage/internal/api/handler"
	mw "github.com/sharadbhat/chartsage/internal/api/middleware"
	"github.com/sharadbhat/chartsage/internal/cache"
	"github.com/sharadbhat/chartsage/internal/config"
	"github.com/sharadbhat/chartsage/internal/fetch"
	"github.com/sharadbhat/chartsage/internal/queue"
	"github.com/sharadbhat/chartsage/internal/results"
	"github.com/sharadbhat/chartsage/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create AI provider and invoker
	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	invoker := ai.NewInvoker(aiProvider)
	slog.Info("AI provider initialized", "provider", aiProvider.Name())

	// 6. Create stores and processing pipeline
	pgStore := store.NewPostgresStore(pool)
	resultStore := results.NewPostgresStore(pool)
	fetcher := fetch.NewHTTPFetcher(cfg.Content)

	runner := &queue.Runner{}
	trigger := queue.NewHTTPTrigger(cfg.Queue.SelfURL, cfg.Queue.TriggerToken, runner)
	if cfg.Queue.SelfURL == "" {
		slog.Warn("QUEUE_SELF_URL not set, job chaining disabled")
	}

	processor := queue.NewProcessor(
		pgStore, redisCache, resultStore, fetcher, invoker, trigger,
		cfg.AI.AnalysisTimeout, cfg.Queue,
	)
	estimator := queue.NewEstimator(pgStore, cfg.Queue.DefaultPerImage)

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:         auth,
		RateLimit:    rateLimit,
		TriggerToken: cfg.Queue.TriggerToken,

		HealthHandler:  handler.NewHealthHandler(pgStore, redisCache),
		ImagesHandler:  handler.NewImagesHandler(pgStore, estimator, trigger),
		ProcessHandler: handler.NewProcessHandler(pgStore, processor, runner),

		GetJobHandler:      handler.NewGetJobHandler(pgStore),
		ListResults:        handler.NewListResultsHandler(resultStore),
		DeleteResult:       handler.NewDeleteResultHandler(resultStore),
		QueueStatusHandler: handler.NewQueueStatusHandler(pgStore, redisCache),
		CreateKeyHandler:   handler.NewCreateKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout: stop accepting, then flush detached
	// processing passes and trigger dispatches.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := runner.Wait(shutdownCtx); err != nil {
		slog.Warn("detached tasks still running at shutdown deadline", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

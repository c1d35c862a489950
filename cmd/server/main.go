// Package main is the entrypoint for the finetunehub API server.
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

	"github.com/kiranshivaraju/finetunehub/internal/api"
	"github.com/kiranshivaraju/finetunehub/internal/api/handler"
	mw "github.com/kiranshivaraju/finetunehub/internal/api/middleware"
	"github.com/kiranshivaraju/finetunehub/internal/api/response"
	"github.com/kiranshivaraju/finetunehub/internal/artifact"
	"github.com/kiranshivaraju/finetunehub/internal/cache"
	"github.com/kiranshivaraju/finetunehub/internal/config"
	"github.com/kiranshivaraju/finetunehub/internal/listener"
	"github.com/kiranshivaraju/finetunehub/internal/miner"
	"github.com/kiranshivaraju/finetunehub/internal/queue"
	"github.com/kiranshivaraju/finetunehub/internal/store"
	"github.com/kiranshivaraju/finetunehub/internal/token"
	"github.com/kiranshivaraju/finetunehub/internal/training"
)

const shutdownTimeout = 30 * time.Second

func main() {
	setLogger(slog.LevelInfo)

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func setLogger(level slog.Level) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("config loaded", "env", cfg.Server.Env, "queue_backend", cfg.Queue.Backend)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 2. Run migrations
	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 3. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 4. Artifact storage
	artifacts, err := artifact.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("create artifact store: %w", err)
	}
	slog.Info("artifact store initialized", "bucket", cfg.Storage.Bucket)

	// 5. Job queue
	jobQueue, err := queue.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create job queue: %w", err)
	}
	defer jobQueue.Close()
	slog.Info("job queue initialized", "backend", cfg.Queue.Backend, "queue", cfg.Queue.Name)

	// 6. Services
	pgStore := store.NewPostgresStore(pool)
	issuer := token.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	jobs := training.NewService(pgStore, artifacts, jobQueue, redisCache, cfg.Storage.URLTTL)
	miners := miner.NewService(pgStore)
	listeners := listener.NewManager(ctx, jobQueue, redisCache, nil)
	defer listeners.Stop()

	// 7. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(issuer),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),

		HealthHandler:        healthHandler(pgStore, redisCache),
		SubmitHandler:        handler.NewSubmitHandler(jobs, cfg.Server.MaxUploadBytes),
		LoginHandler:         handler.NewLoginHandler(miners, issuer, redisCache),
		RegisterMinerHandler: handler.NewRegisterMinerHandler(miners),

		StartListeningHandler: handler.NewStartListeningHandler(listeners),
		StartTrainingHandler:  handler.NewStartTrainingHandler(jobs),
		UpdateStatusHandler:   handler.NewUpdateStatusHandler(jobs),
		PendingJobsHandler:    handler.NewPendingJobsHandler(jobs),
		JobDetailsHandler:     handler.NewJobDetailsHandler(jobs),
		JobStatusHandler:      handler.NewJobStatusHandler(jobs),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	listeners.Stop()
	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		status, code := "ok", http.StatusOK
		if checks["database"] != "ok" || checks["cache"] != "ok" {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		response.Status(w, code, map[string]any{
			"status":   status,
			"services": checks,
		})
	}
}

// Package main is the entrypoint for the synthgen API server.
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

	"github.com/joho/godotenv"

	"github.com/synthgen-io/synthgen/internal/api"
	"github.com/synthgen-io/synthgen/internal/api/handler"
	mw "github.com/synthgen-io/synthgen/internal/api/middleware"
	"github.com/synthgen-io/synthgen/internal/api/response"
	"github.com/synthgen-io/synthgen/internal/auth"
	"github.com/synthgen-io/synthgen/internal/cache"
	"github.com/synthgen-io/synthgen/internal/config"
	"github.com/synthgen-io/synthgen/internal/engine"
	"github.com/synthgen-io/synthgen/internal/events"
	"github.com/synthgen-io/synthgen/internal/jobs"
	"github.com/synthgen-io/synthgen/internal/store"
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
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "engine_url", cfg.Engine.BaseURL, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATS.URL != "" {
		natsPub, err := events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer natsPub.Close()
		publisher = natsPub
		slog.Info("nats connected")
	}

	pgStore := store.NewPostgresStore(pool)
	engineClient := engine.NewHTTPClient(cfg.Engine)

	jobSvc := jobs.NewJobService(pgStore, redisCache, engineClient, publisher, cfg.Engine)
	genSvc := jobs.NewGenerationService(pgStore, redisCache, engineClient, publisher, cfg.Engine)
	authSvc := auth.NewService(pgStore, redisCache, cfg.Auth)

	// Pick up tasks left in flight by the previous process before serving.
	if err := jobs.Recover(ctx, pgStore, jobSvc, genSvc); err != nil {
		return fmt.Errorf("recovery sweep: %w", err)
	}

	authMW := mw.NewAuth(authSvc)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      authMW,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),

		RegisterHandler: handler.NewRegisterHandler(authSvc),
		LoginHandler:    handler.NewLoginHandler(authSvc),
		RefreshHandler:  handler.NewRefreshHandler(authSvc),
		LogoutHandler:   handler.NewLogoutHandler(authSvc),
		MeHandler:       handler.NewMeHandler(authSvc),

		UploadHandler:   handler.NewUploadHandler(jobSvc, cfg.Upload),
		ListJobsHandler: handler.NewListJobsHandler(jobSvc),
		GetJobHandler:   handler.NewGetJobHandler(jobSvc),
		TrainHandler:    handler.NewTrainHandler(jobSvc),

		GenerateHandler:        handler.NewGenerateHandler(genSvc),
		ListGenerationsHandler: handler.NewListGenerationsHandler(genSvc),
		GetGenerationHandler:   handler.NewGetGenerationHandler(genSvc),
	}

	router := api.NewRouter(deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
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

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}

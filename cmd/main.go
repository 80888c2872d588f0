// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server plus the
// background reconciliation worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/nkulkarni/eventgate/internal/clock"
	"github.com/nkulkarni/eventgate/internal/config"
	"github.com/nkulkarni/eventgate/internal/database"
	"github.com/nkulkarni/eventgate/internal/handler"
	"github.com/nkulkarni/eventgate/internal/repository"
	"github.com/nkulkarni/eventgate/internal/service"
	"github.com/nkulkarni/eventgate/internal/worker"
	"github.com/nkulkarni/eventgate/migrations"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	// ── 1. Connect to PostgreSQL and migrate ─────────────────────────────
	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := migrations.Apply(ctx, pool); err != nil {
		logger.Error("migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to postgres")

	// ── 2. Wire up layers ────────────────────────────────────────────────
	store := repository.NewStore(pool)
	svc := service.New(store, clock.NewSystem(),
		service.WithTicketValidity(cfg.TicketValidity),
		service.WithConflictRetries(cfg.ConflictRetries),
		service.WithLogger(logger),
	)
	h := handler.New(svc)

	// ── 3. Build the router ──────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger)          // structured access log
	r.Use(handler.CORS)

	r.Get("/health", handler.HealthCheck)
	r.Group(h.Routes)

	// ── 4. Optional background reconciliation worker ─────────────────────
	var bg *worker.Worker
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("redis", "error", err)
			os.Exit(1)
		}
		_ = rdb.Close()

		bg, err = worker.New(cfg.RedisAddr, cfg.ReconcileCron, svc, logger)
		if err != nil {
			logger.Error("worker", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := bg.Run(); err != nil {
				logger.Error("worker stopped", "error", err)
			}
		}()
		logger.Info("reconciliation worker started", "cron", cfg.ReconcileCron)
	}

	// ── 5. Start server with graceful shutdown ───────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if bg != nil {
		bg.Shutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// Package main is the entrypoint for the loader key self-service server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/selfservice/internal/api"
	"github.com/kiranshivaraju/selfservice/internal/api/handler"
	mw "github.com/kiranshivaraju/selfservice/internal/api/middleware"
	"github.com/kiranshivaraju/selfservice/internal/api/response"
	"github.com/kiranshivaraju/selfservice/internal/cache"
	"github.com/kiranshivaraju/selfservice/internal/config"
	"github.com/kiranshivaraju/selfservice/internal/keygen"
	"github.com/kiranshivaraju/selfservice/internal/panel"
	"github.com/kiranshivaraju/selfservice/internal/selfservice"
	"github.com/kiranshivaraju/selfservice/internal/store"
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
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "loader_prefix", cfg.Loader.NamePrefix)

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
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
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

	// 5. Create store and key service
	pgStore := store.NewPostgresStore(pool)
	hub := selfservice.NewHub()
	svc := selfservice.NewService(pgStore, redisCache, keygen.NewGenerator(cfg.Loader.BcryptCost), hub, selfservice.Options{
		NamePrefix: cfg.Loader.NamePrefix,
		ExpectEnv:  cfg.Loader.ExpectEnv,
		StatusTTL:  cfg.Server.StatusCacheTTL,
	})

	// 6. Build router with dependencies
	page := handler.NewPanel(svc, panel.NewHTMLRenderer())
	deps := api.Dependencies{
		RemoteUser: mw.NewRemoteUser(cfg.Server.RemoteUserHeader),
		LoaderAuth: mw.NewLoaderAuth(svc),
		RateLimit:  mw.NewRateLimit(redisCache, cfg.Server.RateLimit),

		HealthHandler:    healthHandler(pgStore, redisCache),
		PanelPage:        page.Show,
		PanelGenerate:    page.Action(panel.ActionGenerate),
		PanelRemove:      page.Action(panel.ActionRemove),
		KeyStatusHandler: handler.NewKeyStatusHandler(svc),
		WatchHandler:     handler.NewWatchHandler(hub),
		NewKeyHandler:    handler.NewNewKeyHandler(svc),
		DelKeyHandler:    handler.NewDelKeyHandler(svc),
		HeartbeatHandler: handler.NewHeartbeatHandler(svc),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays unset: /keystatus/watch holds its connection open.
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
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

	// Graceful shutdown with timeout
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

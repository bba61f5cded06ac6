package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/medibot/internal/api"
	"github.com/nikhilbhutani/medibot/internal/api/handlers"
	"github.com/nikhilbhutani/medibot/internal/app"
	"github.com/nikhilbhutani/medibot/internal/cache"
	"github.com/nikhilbhutani/medibot/internal/config"
	"github.com/nikhilbhutani/medibot/internal/guardrails"
	"github.com/nikhilbhutani/medibot/internal/rag"
	"github.com/nikhilbhutani/medibot/web"
)

func main() {
	logger := app.NewLogger(slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	svc, err := app.Open(ctx, cfg, logger)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	composer, err := svc.Composer()
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}

	var answerer rag.Answerer = composer
	health := map[string]handlers.Pinger{"database": svc.DB}

	// Redis is optional; without it answers are not cached.
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		c := cache.NewCache(rdb)
		if err := c.Ping(ctx); err != nil {
			slog.Warn("redis unavailable, running without answer cache", "error", err)
		} else {
			answerer = cache.NewCachedAnswerer(composer, c, cfg.RAG.AnswerCacheTTL, logger)
			health["redis"] = c
		}
	}

	answerer = guardrails.NewGuardedAnswerer(answerer, guardrails.Default(), guardrails.HistoryChain(), logger)

	router := api.NewRouter(api.Deps{
		Answerer:  answerer,
		Readiness: svc.Readiness,
		Health:    health,
		Templates: web.Templates(cfg.Server.TemplateDir),
		Static:    web.Static(cfg.Server.StaticDir),
		Logger:    logger,
	})
	defer router.Close()

	handler, err := router.Setup()
	if err != nil {
		slog.Error("failed to set up routes", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "index", cfg.Index.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mtr002/Crawl-Queue/internal/api"
	"github.com/mtr002/Crawl-Queue/internal/cache"
	"github.com/mtr002/Crawl-Queue/internal/config"
	"github.com/mtr002/Crawl-Queue/internal/db"
	"github.com/mtr002/Crawl-Queue/internal/fetch"
	"github.com/mtr002/Crawl-Queue/internal/jobs"
	"github.com/mtr002/Crawl-Queue/internal/logger"
	"github.com/mtr002/Crawl-Queue/internal/websocket"
	"github.com/mtr002/Crawl-Queue/internal/worker"
)

func main() {
	logger.Init("crawl-queue-server")

	cfg, err := config.Load()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()

	database, err := db.Connect(ctx, cfg.Postgres)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	if cfg.Postgres.RunMigrationsOnStart {
		if err := db.RunMigrations(database); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	store := db.NewStore(database)
	api.SetDBConnection(database)

	registry := fetch.NewRegistry(
		fetch.NewWebFetcher(),
		fetch.NewYoutubeFetcher(),
		fetch.NewBlueskyFetcher(),
	)

	engine := jobs.NewEngine(store, registry.Kinds(), cfg.Queue.MaxAttempts, cfg.Queue.StaleThreshold)

	var redisClient redis.UniversalClient
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		logger.Logger.Info().Str("addr", cfg.Redis.Addr).Msg("Redis result cache enabled")
	}
	resultCache := cache.New(store, redisClient, cfg.Cache)

	hub := websocket.NewHub()
	go hub.Run()

	pool := worker.NewPool(engine, registry, resultCache, worker.Options{
		WorkerCount:       cfg.Queue.WorkerCount,
		PollInterval:      cfg.Queue.PollInterval,
		FetchTimeout:      cfg.Queue.FetchTimeout,
		HeartbeatInterval: cfg.Queue.HeartbeatInterval,
		Notifier:          hub,
	})
	pool.Start()

	server := api.NewServer(engine, hub, cfg.Port)
	go func() {
		if err := server.Start(); err != nil {
			logger.Logger.Fatal().Err(err).Msg("API server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Logger.Info().Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error().Err(err).Msg("API server shutdown failed")
	}
	pool.Stop()

	logger.Logger.Info().Msg("Server stopped")
}

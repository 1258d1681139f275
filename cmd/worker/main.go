package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/mtr002/Crawl-Queue/internal/cache"
	"github.com/mtr002/Crawl-Queue/internal/config"
	"github.com/mtr002/Crawl-Queue/internal/db"
	"github.com/mtr002/Crawl-Queue/internal/fetch"
	"github.com/mtr002/Crawl-Queue/internal/jobs"
	"github.com/mtr002/Crawl-Queue/internal/logger"
	natsqueue "github.com/mtr002/Crawl-Queue/internal/nats"
	"github.com/mtr002/Crawl-Queue/internal/worker"
)

// The worker binary runs a standalone pool instance, optionally ingesting
// submissions over NATS. Any number of these may run next to the server
// process; the store's atomic claim keeps them from executing a job twice.
func main() {
	logger.Init("crawl-queue-worker")

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
	}
	resultCache := cache.New(store, redisClient, cfg.Cache)

	opts := worker.Options{
		WorkerCount:       cfg.Queue.WorkerCount,
		PollInterval:      cfg.Queue.PollInterval,
		FetchTimeout:      cfg.Queue.FetchTimeout,
		HeartbeatInterval: cfg.Queue.HeartbeatInterval,
	}

	var natsServer *natsqueue.Server
	if cfg.NATS.Enabled {
		client, err := natsqueue.NewClient(cfg.NATS.URL)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to connect NATS publisher")
		}
		defer client.Close()
		opts.Notifier = client

		natsServer, err = natsqueue.NewServer(cfg.NATS.URL, engine)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to create NATS consumer")
		}
		if err := natsServer.Subscribe(); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to subscribe to NATS")
		}
		defer natsServer.Close()
		logger.Logger.Info().Str("url", cfg.NATS.URL).Msg("NATS submission consumer started")
	}

	pool := worker.NewPool(engine, registry, resultCache, opts)
	pool.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Logger.Info().Msg("Shutting down gracefully...")
	pool.Stop()
	logger.Logger.Info().Msg("Worker stopped")
}

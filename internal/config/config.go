// Package config loads application configuration from environment variables
// using github.com/caarlos0/env. A .env file is honored when present.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the top-level application configuration.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	NATS     NATSConfig  `envPrefix:"NATS_"`

	Queue QueueConfig
	Cache CacheConfig
}

// DBConfig contains PostgreSQL configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"crawlqueue"`
	Password string `env:"PASSWORD" envDefault:"crawlqueue"`
	Name     string `env:"NAME"     envDefault:"crawlqueue"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"`
	// RunMigrationsOnStart controls whether migrations are applied during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// DSN returns the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// RedisConfig contains the optional result-cache hot layer configuration.
// Leaving Addr empty disables Redis; the SQL lookup remains authoritative.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:""`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
}

// NATSConfig contains the optional NATS submission/notification channel.
type NATSConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"false"`
	URL     string `env:"URL"     envDefault:"nats://localhost:4222"`
}

// QueueConfig holds the queue engine parameters. The engine has no built-in
// defaults for these; they always come from configuration.
type QueueConfig struct {
	WorkerCount    int           `env:"WORKER_COUNT"    envDefault:"3"`
	PollInterval   time.Duration `env:"POLL_INTERVAL"   envDefault:"1s"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS"    envDefault:"3"`
	StaleThreshold time.Duration `env:"STALE_THRESHOLD" envDefault:"10m"`
	FetchTimeout   time.Duration `env:"FETCH_TIMEOUT"   envDefault:"90s"`
	// HeartbeatInterval is how often a worker advances updated_at on the job
	// it is executing. Must be well below StaleThreshold.
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
}

// CacheConfig holds per-worker-kind result freshness windows. A zero window
// disables caching for that kind.
type CacheConfig struct {
	WebTTL     time.Duration `env:"CACHE_WEB_TTL"     envDefault:"1h"`
	YoutubeTTL time.Duration `env:"CACHE_YOUTUBE_TTL" envDefault:"12h"`
	BlueskyTTL time.Duration `env:"CACHE_BLUESKY_TTL" envDefault:"0"`
}

// TTLFor returns the freshness window for a worker kind.
func (c CacheConfig) TTLFor(worker string) time.Duration {
	switch worker {
	case "web":
		return c.WebTTL
	case "youtube":
		return c.YoutubeTTL
	case "bluesky":
		return c.BlueskyTTL
	default:
		return 0
	}
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1, got %d", c.Queue.MaxAttempts)
	}
	if c.Queue.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1, got %d", c.Queue.WorkerCount)
	}
	if c.Queue.StaleThreshold <= 0 {
		return fmt.Errorf("STALE_THRESHOLD must be positive, got %s", c.Queue.StaleThreshold)
	}
	if c.Queue.HeartbeatInterval >= c.Queue.StaleThreshold {
		return fmt.Errorf("HEARTBEAT_INTERVAL (%s) must be below STALE_THRESHOLD (%s)",
			c.Queue.HeartbeatInterval, c.Queue.StaleThreshold)
	}
	return nil
}

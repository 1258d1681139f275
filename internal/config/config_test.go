package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.True(t, cfg.Postgres.RunMigrationsOnStart)
	assert.Empty(t, cfg.Redis.Addr)
	assert.False(t, cfg.NATS.Enabled)

	assert.Equal(t, 3, cfg.Queue.WorkerCount)
	assert.Equal(t, time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Queue.StaleThreshold)
	assert.Equal(t, 90*time.Second, cfg.Queue.FetchTimeout)
	assert.Equal(t, 30*time.Second, cfg.Queue.HeartbeatInterval)

	assert.Equal(t, time.Hour, cfg.Cache.WebTTL)
	assert.Equal(t, 12*time.Hour, cfg.Cache.YoutubeTTL)
	assert.Equal(t, time.Duration(0), cfg.Cache.BlueskyTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("MAX_ATTEMPTS", "5")
	t.Setenv("CACHE_WEB_TTL", "30m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.Equal(t, 8, cfg.Queue.WorkerCount)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Cache.WebTTL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "zero max attempts", key: "MAX_ATTEMPTS", value: "0"},
		{name: "zero workers", key: "WORKER_COUNT", value: "0"},
		{name: "negative stale threshold", key: "STALE_THRESHOLD", value: "-1m"},
		{name: "heartbeat above stale threshold", key: "HEARTBEAT_INTERVAL", value: "1h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestDBConfig_DSN(t *testing.T) {
	dsn := DBConfig{
		Host: "localhost", Port: 5432,
		User: "crawlqueue", Password: "secret",
		Name: "crawlqueue", SSLMode: "disable",
	}.DSN()

	assert.Equal(t, "host=localhost port=5432 user=crawlqueue password=secret dbname=crawlqueue sslmode=disable", dsn)
}

func TestCacheConfig_TTLFor(t *testing.T) {
	cache := CacheConfig{WebTTL: time.Hour, YoutubeTTL: 12 * time.Hour}

	assert.Equal(t, time.Hour, cache.TTLFor("web"))
	assert.Equal(t, 12*time.Hour, cache.TTLFor("youtube"))
	assert.Equal(t, time.Duration(0), cache.TTLFor("bluesky"))
	assert.Equal(t, time.Duration(0), cache.TTLFor("unknown"))
}

package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mtr002/Crawl-Queue/internal/config"
	"github.com/mtr002/Crawl-Queue/internal/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Connect opens a PostgreSQL connection and verifies it, retrying pings with
// exponential backoff so the service survives a database that is still
// starting up.
func Connect(ctx context.Context, cfg config.DBConfig) (*sql.DB, error) {
	database, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	database.SetMaxOpenConns(25)
	database.SetMaxIdleConns(5)
	database.SetConnMaxLifetime(5 * time.Minute)

	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := database.PingContext(ctx); err != nil {
			logger.Logger.Warn().Err(err).Msg("Database not reachable yet, retrying")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return database, nil
}

// RunMigrations applies all pending embedded goose migrations.
func RunMigrations(database *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(database, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

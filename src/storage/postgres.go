package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"market-relay/src/logger"
	"market-relay/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresCache struct {
	Config *models.MStorageConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

// NewPostgresCache names the schema after the running executable so several
// relays can share one database.
func NewPostgresCache(cfg *models.MStorageConfig, log *logger.Logger) (*PostgresCache, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &PostgresCache{
		Config: cfg,
		Schema: name,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresCache) table() string {
	return fmt.Sprintf(`"%s"."cache_entries"`, d.Schema)
}

// -----------------------------------------------------------------------------

func (d *PostgresCache) Initialize(ctx context.Context) error {
	db, err := sql.Open("postgres", d.Config.DBConnectionString)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}
	d.DB = db

	if _, err := d.DB.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		);
	`, d.table())
	if _, err := d.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create cache_entries: %w", err)
	}

	d.Logger.Info("Postgres cache ready in schema %s", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := d.DB.QueryRowContext(ctx,
		fmt.Sprintf("SELECT value FROM %s WHERE key = $1 AND expires_at > NOW()", d.table()),
		key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup failed: %w", err)
	}
	return value, true, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`, d.table())
	if _, err := d.DB.ExecContext(ctx, query, key, value, time.Now().UTC().Add(ttl)); err != nil {
		return fmt.Errorf("cache store failed: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresCache) CleanupExpired(ctx context.Context) error {
	if _, err := d.DB.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE expires_at <= NOW()", d.table())); err != nil {
		d.Logger.Error("Cleanup cache_entries error: %v", err)
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresCache) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

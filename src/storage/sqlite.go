package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"market-relay/src/logger"
	"market-relay/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteCache struct {
	Config *models.MStorageConfig
	DB     *sql.DB
	Logger *logger.Logger
	now    func() time.Time
}

// -----------------------------------------------------------------------------

func NewSQLiteCache(cfg *models.MStorageConfig, log *logger.Logger) *SQLiteCache {
	return &SQLiteCache{
		Config: cfg,
		Logger: log,
		now:    time.Now,
	}
}

// -----------------------------------------------------------------------------

func (d *SQLiteCache) Initialize(ctx context.Context) error {
	db, err := sql.Open("sqlite", d.Config.DBPath)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}
	// one writer keeps modernc from returning SQLITE_BUSY under concurrent Set
	db.SetMaxOpenConns(1)
	d.DB = db

	// PRAGMA optimizations
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	query := `
		CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create cache_entries: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := d.DB.QueryRowContext(ctx,
		"SELECT value FROM cache_entries WHERE key = ? AND expires_at > ?",
		key, d.now().UnixMilli(),
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

func (d *SQLiteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, d.now().Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("cache store failed: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteCache) CleanupExpired(ctx context.Context) error {
	res, err := d.DB.ExecContext(ctx, "DELETE FROM cache_entries WHERE expires_at <= ?", d.now().UnixMilli())
	if err != nil {
		d.Logger.Error("Cleanup cache_entries error: %v", err)
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		d.Logger.Debug("Removed %d expired cache rows", n)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteCache) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

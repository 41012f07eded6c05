package storage

import (
	"fmt"

	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/models"
)

// NewCache returns the backend named by cfg.CacheBackend. The caller runs Initialize.
func NewCache(cfg *models.MStorageConfig, log *logger.Logger) (interfaces.ICache, error) {
	switch cfg.CacheBackend {
	case "", "memory":
		return NewMemoryCache(log), nil
	case "redis":
		return NewRedisCache(cfg, log)
	case "sqlite":
		return NewSQLiteCache(cfg, log), nil
	case "postgres":
		return NewPostgresCache(cfg, log)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

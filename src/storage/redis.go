package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market-relay/src/logger"
	"market-relay/src/models"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "relay:ref:"

// RedisCache stores reference responses in Redis with native expiry.
type RedisCache struct {
	Config *models.MStorageConfig
	Client *redis.Client
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewRedisCache(cfg *models.MStorageConfig, log *logger.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opt.Password = cfg.RedisPassword
	}

	return &RedisCache{
		Config: cfg,
		Client: redis.NewClient(opt),
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (r *RedisCache) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	r.Logger.Info("Connected to redis at %s", r.Client.Options().Addr)
	return nil
}

// -----------------------------------------------------------------------------

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.Client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis GET failed: %w", err)
	}
	return data, true, nil
}

// -----------------------------------------------------------------------------

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.Client.Set(ctx, redisKeyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// CleanupExpired is a no-op: redis expires keys itself.
func (r *RedisCache) CleanupExpired(ctx context.Context) error {
	return nil
}

// -----------------------------------------------------------------------------

func (r *RedisCache) Close() error {
	return r.Client.Close()
}

package storage

import (
	"context"
	"sync"
	"time"

	"market-relay/src/logger"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is the default cache backend: a map with per entry expiry.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
	Logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func NewMemoryCache(log *logger.Logger) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		Logger:  log,
	}
}

// -----------------------------------------------------------------------------

func (c *MemoryCache) Initialize(ctx context.Context) error {
	return nil
}

// -----------------------------------------------------------------------------

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		// lazy eviction
		c.mu.Lock()
		if cur, still := c.entries[key]; still && !c.now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// -----------------------------------------------------------------------------

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, len(value))
	copy(buf, value)

	c.mu.Lock()
	c.entries[key] = memoryEntry{value: buf, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// -----------------------------------------------------------------------------

func (c *MemoryCache) CleanupExpired(ctx context.Context) error {
	now := c.now()
	removed := 0

	c.mu.Lock()
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 && c.Logger != nil {
		c.Logger.Debug("Evicted %d expired cache entries", removed)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// -----------------------------------------------------------------------------

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}

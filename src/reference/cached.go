package reference

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/metrics"
	"market-relay/src/models"

	"github.com/goccy/go-json"
)

// CachedSource serves lookups from an ICache and falls through to the
// wrapped source on a miss. Cache failures never fail the request.
type CachedSource struct {
	source  interfaces.IReferenceData
	cache   interfaces.ICache
	ttl     time.Duration
	Logger  *logger.Logger
	metrics *metrics.Metrics
}

// -----------------------------------------------------------------------------

func NewCachedSource(source interfaces.IReferenceData, cache interfaces.ICache, ttl time.Duration, log *logger.Logger, m *metrics.Metrics) *CachedSource {
	return &CachedSource{source: source, cache: cache, ttl: ttl, Logger: log, metrics: m}
}

// -----------------------------------------------------------------------------

// cacheKey renders endpoint?params with the params sorted by name.
func cacheKey(endpoint string, params url.Values) string {
	return endpoint + "?" + params.Encode()
}

// -----------------------------------------------------------------------------

func (c *CachedSource) ListTickers(ctx context.Context, q models.MTickerQuery) ([]models.MTicker, error) {
	key := cacheKey("tickers", url.Values{
		"market": {string(q.Market)},
		"search": {q.Search},
		"limit":  {strconv.Itoa(clampLimit(q.Limit))},
	})
	return lookup(ctx, c, key, func() ([]models.MTicker, error) {
		return c.source.ListTickers(ctx, q)
	})
}

// -----------------------------------------------------------------------------

func (c *CachedSource) ListOptionsContracts(ctx context.Context, q models.MContractsQuery) ([]models.MOptionsContract, error) {
	key := cacheKey("options/contracts", url.Values{
		"underlying": {q.Underlying},
		"exp_from":   {q.ExpFrom},
		"exp_to":     {q.ExpTo},
		"limit":      {strconv.Itoa(clampLimit(q.Limit))},
	})
	return lookup(ctx, c, key, func() ([]models.MOptionsContract, error) {
		return c.source.ListOptionsContracts(ctx, q)
	})
}

// -----------------------------------------------------------------------------

func lookup[T any](ctx context.Context, c *CachedSource, key string, fetch func() ([]T, error)) ([]T, error) {
	raw, found, err := c.cache.Get(ctx, key)
	if err != nil {
		c.Logger.Warning("Cache read for %s failed: %v", key, err)
	}
	if found {
		var rows []T
		if err := json.Unmarshal(raw, &rows); err == nil {
			c.metrics.RecordCacheLookup(true)
			return rows, nil
		}
		c.Logger.Warning("Discarding undecodable cache entry %s", key)
	}
	c.metrics.RecordCacheLookup(false)

	rows, err := fetch()
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(rows); err == nil {
		if err := c.cache.Set(ctx, key, encoded, c.ttl); err != nil {
			c.Logger.Warning("Cache write for %s failed: %v", key, err)
		}
	}
	return rows, nil
}

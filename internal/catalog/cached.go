package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-marketplace/pkg/mylogger"
	"go.uber.org/zap"
)

// CachedCatalog keeps products in Redis in front of another catalog. Redis
// failures degrade to reading through; they are never returned.
type CachedCatalog struct {
	next        Catalog
	redisClient redis.UniversalClient
	cacheTTL    time.Duration
	logger      *zap.Logger
}

func NewCachedCatalog(next Catalog, redisClient redis.UniversalClient, cacheTTL time.Duration, logger *zap.Logger) *CachedCatalog {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	return &CachedCatalog{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

func productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

func (c *CachedCatalog) Product(ctx context.Context, id int64) (*Product, error) {
	key := productKey(id)

	val, err := c.redisClient.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var product Product
		if err := json.Unmarshal(val, &product); err == nil {
			return &product, nil
		}
		mylogger.Warn(ctx, c.logger, "Dropping malformed cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		mylogger.Warn(ctx, c.logger, "Product cache unavailable", zap.String("key", key), zap.Error(err))
	}

	product, err := c.next.Product(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(product); err == nil {
		if err := c.redisClient.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
			mylogger.Warn(ctx, c.logger, "Failed to cache product", zap.String("key", key), zap.Error(err))
		}
	}

	return product, nil
}

// Invalidate drops the cached entry of a product whose price or status
// changed.
func (c *CachedCatalog) Invalidate(ctx context.Context, id int64) error {
	return c.redisClient.Del(ctx, productKey(id)).Err()
}

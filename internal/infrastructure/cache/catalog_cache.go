// Package cache provides Redis-backed read-through caches.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"venuepos/internal/core/id"
	"venuepos/internal/domain/catalog"
	"venuepos/pkg/logger"
)

// RedisConfig holds connection settings for the cache backend.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient connects a go-redis client and verifies the connection.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return client, nil
}

// CatalogCache is a read-through product cache in front of another
// catalog.Catalog. Cache failures degrade to the source: an unreachable
// Redis slows lookups down but never fails them.
type CatalogCache struct {
	source catalog.Catalog
	client *redis.Client
	ttl    time.Duration
}

// NewCatalogCache wraps source with a Redis cache. The caller retains
// ownership of the client.
func NewCatalogCache(source catalog.Catalog, client *redis.Client, ttl time.Duration) *CatalogCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CatalogCache{
		source: source,
		client: client,
		ttl:    ttl,
	}
}

func (c *CatalogCache) key(venueID, productID id.ID) string {
	return fmt.Sprintf("catalog:product:%s:%s", venueID, productID)
}

// Lookup returns the cached product snapshot, falling through to the
// source on miss or on any cache error.
func (c *CatalogCache) Lookup(ctx context.Context, venueID, productID id.ID) (*catalog.Product, error) {
	cacheKey := c.key(venueID, productID)

	data, err := c.client.Get(ctx, cacheKey).Bytes()
	if err == nil {
		var p catalog.Product
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		// Corrupted entry: drop it and fall through.
		_ = c.client.Del(ctx, cacheKey)
	} else if err != redis.Nil {
		logger.Warn(ctx, "catalog cache read failed, falling back to source",
			"key", cacheKey, "error", err)
	}

	p, err := c.source.Lookup(ctx, venueID, productID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := c.client.Set(ctx, cacheKey, data, c.ttl).Err(); err != nil {
			logger.Warn(ctx, "catalog cache write failed", "key", cacheKey, "error", err)
		}
	}

	return p, nil
}

// Invalidate drops one product from the cache, for use after catalog
// updates.
func (c *CatalogCache) Invalidate(ctx context.Context, venueID, productID id.ID) error {
	if err := c.client.Del(ctx, c.key(venueID, productID)).Err(); err != nil {
		return fmt.Errorf("invalidate product cache: %w", err)
	}
	return nil
}

// Ensure interface compliance.
var _ catalog.Catalog = (*CatalogCache)(nil)

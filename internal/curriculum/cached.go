package curriculum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheKey = "pathfinder:catalog:v1"

// CachedCatalog is a read-through cache in front of another Catalog. The
// whole catalog is stored as one JSON value under a single key. Cache failures
// are logged and the backing catalog is used instead.
type CachedCatalog struct {
	next   Catalog
	client redis.Cmdable
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedCatalog wraps next with a Redis cache entry that expires after ttl.
func NewCachedCatalog(next Catalog, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) (*CachedCatalog, error) {
	if next == nil {
		return nil, fmt.Errorf("backing catalog is nil")
	}
	if client == nil {
		return nil, fmt.Errorf("cache client is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCatalog{
		next:   next,
		client: client,
		key:    defaultCacheKey,
		ttl:    ttl,
		logger: logger.With("component", "catalog_cache"),
	}, nil
}

// ListConcepts implements Catalog.
func (c *CachedCatalog) ListConcepts(ctx context.Context) ([]Concept, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	switch {
	case err == nil:
		var concepts []Concept
		if err := json.Unmarshal(data, &concepts); err == nil {
			return concepts, nil
		}
		c.logger.Warn("discarding corrupt catalog cache entry", "key", c.key)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("catalog cache read failed", "error", err)
	}

	concepts, err := c.next.ListConcepts(ctx)
	if err != nil {
		return nil, err
	}

	data, err = json.Marshal(concepts)
	if err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("catalog cache write failed", "error", err)
	}
	return concepts, nil
}

// Invalidate drops the cached catalog so the next read goes to the backing
// catalog.
func (c *CachedCatalog) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("invalidate catalog cache: %w", err)
	}
	return nil
}

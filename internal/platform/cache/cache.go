// Package cache connects to the Redis-compatible server (Redis or Dragonfly)
// that holds the pathfinder's read-through copy of the concept catalog. The
// catalog is the only thing cached; mastery records always go to the store,
// so losing the cache costs latency and never correctness.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientName identifies pathfinder connections in CLIENT LIST.
const ClientName = "pai-pathfinder"

// Catalog reads are single-key GETs.
const (
	dialTimeout = 5 * time.Second
	ioTimeout   = 2 * time.Second
)

// Cache owns the client shared by the cached catalog and the readiness check.
type Cache struct {
	Client *redis.Client
}

// ParseURL turns LEARN_CACHE_URL into client options with the pathfinder's
// timeouts and client name.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	opts.ClientName = ClientName
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = ioTimeout
	opts.WriteTimeout = ioTimeout
	return opts, nil
}

// New connects and pings. Startup fails when the cache is enabled but
// unreachable.
func New(ctx context.Context, url string) (*Cache, error) {
	opts, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping cache %s: %w", opts.Addr, err)
	}
	return &Cache{Client: client}, nil
}

func (c *Cache) Close() error {
	return c.Client.Close()
}

// HealthCheck backs the "cache" readiness check.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

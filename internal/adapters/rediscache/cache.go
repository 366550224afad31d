// Package rediscache caches containment lookups in Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// keyPrefix namespaces every cache key.
const keyPrefix = "boundary"

// scanCount is the SCAN page size used when invalidating a level.
const scanCount = 500

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Cache implements output.BoundaryCache.
type Cache struct {
	rdb *redis.Client
}

// New creates a cache. The connection is established lazily.
func New(opts Options) *Cache {
	return &Cache{rdb: redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})}
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the connection pool.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// cacheKey is boundary:{level}:{lat},{lng} with the coordinate as rounded by
// the resolver.
func cacheKey(level domain.BoundaryLevel, at domain.Coordinate) string {
	return fmt.Sprintf("%s:%s:%s,%s", keyPrefix, level,
		strconv.FormatFloat(at.Lat, 'f', -1, 64),
		strconv.FormatFloat(at.Lng, 'f', -1, 64))
}

func levelPattern(level domain.BoundaryLevel) string {
	return fmt.Sprintf("%s:%s:*", keyPrefix, level)
}

// Get implements output.BoundaryCache.
func (c *Cache) Get(ctx context.Context, level domain.BoundaryLevel, at domain.Coordinate) (*domain.BoundaryMatch, bool, error) {
	data, err := c.rdb.Get(ctx, cacheKey(level, at)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var m domain.BoundaryMatch
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("decoding cached match: %w", err)
	}
	return &m, true, nil
}

// Set implements output.BoundaryCache.
func (c *Cache) Set(ctx context.Context, level domain.BoundaryLevel, at domain.Coordinate, match domain.BoundaryMatch, ttl time.Duration) error {
	data, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("encoding match: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(level, at), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// InvalidateLevel implements output.BoundaryCache.
func (c *Cache) InvalidateLevel(ctx context.Context, level domain.BoundaryLevel) error {
	iter := c.rdb.Scan(ctx, 0, levelPattern(level), scanCount).Iterator()

	keys := make([]string, 0, scanCount)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == scanCount {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache invalidate %s: %w", level, err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan %s: %w", level, err)
	}
	if len(keys) > 0 {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache invalidate %s: %w", level, err)
		}
	}
	return nil
}

package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/pkg/errors"
)

// Sentinel errors for cache operations.
var (
	ErrCacheMiss          = errors.New(errors.ErrCodeNotFound, "cache key not found")
	ErrCacheUnavailable   = errors.New(errors.ErrCodeCacheError, "cache unavailable")
	ErrSerializationError = errors.New(errors.ErrCodeSerialization, "cache serialization failed")
)

// nullValue is stored for keys whose loader returned no data, so repeated
// lookups of missing valuations do not hammer the database.
const nullValue = "__null__"

// Cache is a JSON value cache keyed by string.  Values passed to Get must be
// pointers.  All operations honour context cancellation.
type Cache interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	// GetOrSet returns the cached value or invokes loader to populate it.
	// Concurrent callers for the same key share a single loader invocation.
	GetOrSet(ctx context.Context, key string, value any, ttl time.Duration, loader func(ctx context.Context) (any, error)) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// CacheOption configures a cache instance.
type CacheOption func(*redisCache)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) CacheOption {
	return func(c *redisCache) { c.prefix = prefix }
}

// WithDefaultTTL sets the TTL used when callers pass ttl <= 0.
func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *redisCache) { c.defaultTTL = ttl }
}

// WithNullCacheTTL sets how long "no data" results are remembered.
func WithNullCacheTTL(ttl time.Duration) CacheOption {
	return func(c *redisCache) { c.nullTTL = ttl }
}

type redisCache struct {
	rdb        redis.UniversalClient
	logger     logging.Logger
	prefix     string
	defaultTTL time.Duration
	nullTTL    time.Duration
	group      singleflight.Group
}

// NewCache builds a Cache on top of an established client.
func NewCache(client *Client, log logging.Logger, opts ...CacheOption) Cache {
	c := &redisCache{
		rdb:        client.Underlying(),
		logger:     log,
		prefix:     "vinsight:",
		defaultTTL: 15 * time.Minute,
		nullTTL:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *redisCache) fullKey(key string) string {
	return c.prefix + key
}

// jitterTTL spreads expirations by up to ±10% so bulk-loaded keys do not
// expire in the same instant.
func jitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	jitter := time.Duration(rand.Int63n(int64(ttl)/5+1)) - ttl/10
	return ttl + jitter
}

func (c *redisCache) effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return jitterTTL(ttl)
}

func (c *redisCache) Get(ctx context.Context, key string, value any) error {
	raw, err := c.rdb.Get(ctx, c.fullKey(key)).Result()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		c.logger.Warn("Cache get failed", logging.String("key", key), logging.Err(err))
		return ErrCacheUnavailable
	}
	if raw == nullValue {
		return ErrCacheMiss
	}
	if err := json.Unmarshal([]byte(raw), value); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode cached value")
	}
	return nil
}

func (c *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode cache value")
	}
	if err := c.rdb.Set(ctx, c.fullKey(key), data, c.effectiveTTL(ttl)).Err(); err != nil {
		c.logger.Warn("Cache set failed", logging.String("key", key), logging.Err(err))
		return ErrCacheUnavailable
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.fullKey(k)
	}
	if err := c.rdb.Del(ctx, full...).Err(); err != nil {
		return ErrCacheUnavailable
	}
	return nil
}

func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.fullKey(key)).Result()
	if err != nil {
		return false, ErrCacheUnavailable
	}
	return n > 0, nil
}

func (c *redisCache) GetOrSet(ctx context.Context, key string, value any, ttl time.Duration, loader func(ctx context.Context) (any, error)) error {
	if err := c.Get(ctx, key, value); err == nil {
		return nil
	} else if err != ErrCacheMiss && err != ErrCacheUnavailable {
		return err
	}

	raw, err, _ := c.group.Do(c.fullKey(key), func() (any, error) {
		loaded, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if loaded == nil {
			// Remember the absence briefly.
			if err := c.rdb.Set(ctx, c.fullKey(key), nullValue, jitterTTL(c.nullTTL)).Err(); err != nil {
				c.logger.Warn("Null cache set failed", logging.String("key", key), logging.Err(err))
			}
			return nil, ErrCacheMiss
		}
		data, err := json.Marshal(loaded)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode cache value")
		}
		if err := c.rdb.Set(ctx, c.fullKey(key), data, c.effectiveTTL(ttl)).Err(); err != nil {
			c.logger.Warn("Cache set failed", logging.String("key", key), logging.Err(err))
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), value)
}

func (c *redisCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	pattern := c.fullKey(prefix) + "*"
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 500 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return ErrCacheUnavailable
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return ErrCacheUnavailable
	}
	if len(keys) > 0 {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			return ErrCacheUnavailable
		}
	}
	return nil
}

func (c *redisCache) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, c.fullKey(key)).Result()
	if err != nil {
		return 0, ErrCacheUnavailable
	}
	return n, nil
}

func (c *redisCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Expire(ctx, c.fullKey(key), ttl).Err(); err != nil {
		return ErrCacheUnavailable
	}
	return nil
}

func (c *redisCache) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return ErrCacheUnavailable
	}
	return nil
}

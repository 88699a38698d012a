package identity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores JSON-encodable values with a TTL.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisCache keeps entries in Redis so every server instance shares them.
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(val, dest)
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// MemoryCache is the in-process fallback used when Redis is unavailable.
// Expired entries are evicted in the background until Close.
type MemoryCache struct {
	items *ttlcache.Cache[string, []byte]
	once  sync.Once
}

func NewMemoryCache() *MemoryCache {
	items := ttlcache.New[string, []byte](
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go items.Start()
	return &MemoryCache{items: items}
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	item := c.items.Get(key)
	if item == nil {
		return ErrCacheMiss
	}
	return json.Unmarshal(item.Value(), dest)
}

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.items.Set(key, data, ttl)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.items.Delete(key)
	return nil
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	return c.items.Len()
}

// Close stops background eviction.
func (c *MemoryCache) Close() {
	c.once.Do(c.items.Stop)
}

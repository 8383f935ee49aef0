package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
	"github.com/redis/go-redis/v9"
)

// redisNamespace prefixes every key so a shared Redis instance can host
// other applications alongside Kestrel.
const redisNamespace = "kestrel:"

// RedisCache is the distributed cache for multi-instance deployments, also
// serving as the L2 behind the in-memory cache in two-phase mode. TTL
// enforcement is delegated to Redis itself.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection before
// returning; a cache that cannot reach its backend fails construction
// rather than every later request.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) scopedKey(tenantID, key string) string {
	return redisNamespace + tenantID + ":" + key
}

// Get returns the stored value, or (nil, nil) on a miss.
func (c *RedisCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	val, err := c.client.Get(ctx, c.scopedKey(tenantID, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value with the given TTL.
func (c *RedisCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	return c.client.Set(ctx, c.scopedKey(tenantID, key), value, ttl).Err()
}

// Delete removes one key.
func (c *RedisCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	return c.client.Del(ctx, c.scopedKey(tenantID, key)).Err()
}

// GetResponse fetches a cached validation response from the "resp:"
// keyspace, or (nil, nil) on a miss.
func (c *RedisCache) GetResponse(ctx context.Context, tenantID string, key string) (*domain.ValidationResponse, error) {
	data, err := c.Get(ctx, tenantID, "resp:"+key)
	if err != nil || data == nil {
		return nil, err
	}

	var resp domain.ValidationResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetResponse caches a validation response.
func (c *RedisCache) SetResponse(ctx context.Context, tenantID string, key string, resp *domain.ValidationResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.Set(ctx, tenantID, "resp:"+key, data, ttl)
}

// Clear removes every key under the tenant's prefix. SCAN with batched DEL
// keeps the operation incremental on large keyspaces.
func (c *RedisCache) Clear(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	iter := c.client.Scan(ctx, 0, c.scopedKey(tenantID, "*"), 100).Iterator()

	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.client.Del(ctx, batch...).Err()
	}
	return nil
}

// Ping probes the backend.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client's connections.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

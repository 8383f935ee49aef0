package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

// New builds the cache named by the configuration: "memory" for the
// in-process LRU, "redis" for the distributed cache, with EnableTwoPhase
// layering the LRU in front of Redis.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %q", cfg.Type)
	}
}

// TwoPhaseCache layers a local LRU (L1) over Redis (L2). Reads prefer L1
// and repopulate it from L2 on a local miss; writes land in both, with L1
// held to a shorter TTL so instances converge on what Redis holds.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache builds the layered cache. LocalTTL bounds how stale the
// L1 may be relative to L2; zero selects 5 minutes.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("two-phase cache L2: %w", err)
	}

	l1TTL := cfg.LocalTTL
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}

	return &TwoPhaseCache{
		local:  NewLRUCache(cfg.LocalMaxSize),
		remote: remote,
		l1TTL:  l1TTL,
	}, nil
}

// capTTL keeps the L1 entry from outliving the L2 entry.
func (c *TwoPhaseCache) capTTL(ttl time.Duration) time.Duration {
	if ttl < c.l1TTL {
		return ttl
	}
	return c.l1TTL
}

// Get reads L1 first, falling back to L2 and repopulating L1 on a hit.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, tenantID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, tenantID, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes to both layers.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, tenantID, key, value, c.capTTL(ttl)); err != nil {
		return err
	}
	return c.remote.Set(ctx, tenantID, key, value, ttl)
}

// Delete removes the key from both layers.
func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.local.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, tenantID, key)
}

// GetResponse reads a cached validation response, L1 first.
func (c *TwoPhaseCache) GetResponse(ctx context.Context, tenantID string, key string) (*domain.ValidationResponse, error) {
	resp, err := c.local.GetResponse(ctx, tenantID, key)
	if err != nil || resp != nil {
		return resp, err
	}

	resp, err = c.remote.GetResponse(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if resp != nil {
		_ = c.local.SetResponse(ctx, tenantID, key, resp, c.l1TTL)
	}
	return resp, nil
}

// SetResponse caches a validation response in both layers.
func (c *TwoPhaseCache) SetResponse(ctx context.Context, tenantID string, key string, resp *domain.ValidationResponse, ttl time.Duration) error {
	if err := c.local.SetResponse(ctx, tenantID, key, resp, c.capTTL(ttl)); err != nil {
		return err
	}
	return c.remote.SetResponse(ctx, tenantID, key, resp, ttl)
}

// Clear drops the tenant's entries from both layers.
func (c *TwoPhaseCache) Clear(ctx context.Context, tenantID string) error {
	if err := c.local.Clear(ctx, tenantID); err != nil {
		return err
	}
	return c.remote.Clear(ctx, tenantID)
}

// Ping probes both layers.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping: %w", err)
	}
	return nil
}

// Close releases both layers.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats reports the L1 layer's occupancy.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}

package domain

import (
	"context"
	"time"
)

// Cache stores computed validation responses keyed by the deterministic
// cache key (sorted frameworks + document fingerprint + mode). Every method
// takes a tenantID; implementations must keep tenants' entries disjoint and
// must never return an entry past its TTL. A miss is (nil, nil), not an
// error.
type Cache interface {
	// Get returns a raw value, or (nil, nil) on a miss.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a raw value with an expiry.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes one entry.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetResponse returns a cached validation response, or (nil, nil).
	GetResponse(ctx context.Context, tenantID string, key string) (*ValidationResponse, error)

	// SetResponse caches a validation response under its cache key.
	SetResponse(ctx context.Context, tenantID string, key string, resp *ValidationResponse, ttl time.Duration) error

	// Clear drops every entry belonging to one tenant.
	Clear(ctx context.Context, tenantID string) error

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects and tunes the cache implementation.
type CacheConfig struct {
	// Type is "memory" (in-process LRU) or "redis".
	Type string

	// In-memory LRU bounds; also the L1 in two-phase mode.
	LocalMaxSize int
	LocalTTL     time.Duration

	// ResponseTTL is the default lifetime of cached validation responses
	// when a request does not supply one.
	ResponseTTL time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase layers the local LRU in front of Redis.
	EnableTwoPhase bool
}

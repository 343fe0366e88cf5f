package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/compenso/internal/domain"
)

// New picks the snapshot cache for a deployment: "memory" for a single
// process, "redis" when replicas share snapshots. With EnableTwoPhase a
// process-local LRU sits in front of Redis.
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
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

var (
	_ domain.Cache = (*LRUCache)(nil)
	_ domain.Cache = (*RedisCache)(nil)
	_ domain.Cache = (*TwoPhaseCache)(nil)
)

// TwoPhaseCache serves snapshots from process memory and falls back to Redis.
// An edit made on another replica only clears the shared copy, so a local
// copy may lag by up to localTTL.
type TwoPhaseCache struct {
	local    *LRUCache
	shared   *RedisCache
	localTTL time.Duration
}

// NewTwoPhaseCache connects to Redis and builds the local LRU.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	shared, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	localTTL := cfg.LocalTTL
	if localTTL == 0 {
		localTTL = 5 * time.Minute
	}

	return &TwoPhaseCache{
		local:    NewLRUCache(cfg.LocalMaxSize),
		shared:   shared,
		localTTL: localTTL,
	}, nil
}

// Get reads the local copy, then Redis. A Redis hit is copied locally.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, tenantID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.shared.Get(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, tenantID, key, val, c.localTTL)
	}
	return val, nil
}

// Set writes both copies. The local copy never outlives localTTL.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, tenantID, key, value, min(ttl, c.localTTL)); err != nil {
		return err
	}
	return c.shared.Set(ctx, tenantID, key, value, ttl)
}

// Delete clears both copies.
func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.local.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	return c.shared.Delete(ctx, tenantID, key)
}

// GetDoctorConfig returns the snapshot of a doctor, or nil.
func (c *TwoPhaseCache) GetDoctorConfig(ctx context.Context, tenantID string, doctorID string) (*domain.DoctorConfig, error) {
	return getDoctorConfig(ctx, c, tenantID, doctorID)
}

// SetDoctorConfig caches a doctor snapshot in both places.
func (c *TwoPhaseCache) SetDoctorConfig(ctx context.Context, tenantID string, cfg *domain.DoctorConfig, ttl time.Duration) error {
	return setDoctorConfig(ctx, c, tenantID, cfg, ttl)
}

// Ping checks Redis; the local cache is always reachable.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.shared.Ping(ctx); err != nil {
		return fmt.Errorf("shared cache ping failed: %w", err)
	}
	return nil
}

// Close empties the local copy and closes the Redis client.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.shared.Close()
}

// Stats reports the local LRU occupancy.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}

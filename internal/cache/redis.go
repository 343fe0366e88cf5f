package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "compenso:"

// RedisCache shares snapshots between replicas. Keys are
// "compenso:<tenant>:doctor:<id>".
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and fails fast when it is unreachable.
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
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisCache{client: client}, nil
}

// Get returns the stored bytes, or nil when the key is absent.
func (c *RedisCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	full, err := redisKey(tenantID, key)
	if err != nil {
		return nil, err
	}

	val, err := c.client.Get(ctx, full).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return val, nil
}

// Set stores bytes with an expiry.
func (c *RedisCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	full, err := redisKey(tenantID, key)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, full, value, ttl).Err()
}

// Delete removes a key.
func (c *RedisCache) Delete(ctx context.Context, tenantID string, key string) error {
	full, err := redisKey(tenantID, key)
	if err != nil {
		return err
	}
	return c.client.Del(ctx, full).Err()
}

// GetDoctorConfig returns the shared snapshot of a doctor, or nil.
func (c *RedisCache) GetDoctorConfig(ctx context.Context, tenantID string, doctorID string) (*domain.DoctorConfig, error) {
	return getDoctorConfig(ctx, c, tenantID, doctorID)
}

// SetDoctorConfig shares a doctor snapshot with the other replicas.
func (c *RedisCache) SetDoctorConfig(ctx context.Context, tenantID string, cfg *domain.DoctorConfig, ttl time.Duration) error {
	return setDoctorConfig(ctx, c, tenantID, cfg, ttl)
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func redisKey(tenantID, key string) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("tenantID is required")
	}
	return redisKeyPrefix + scopedKey(tenantID, key), nil
}

package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU + Redis.
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetDoctorConfig retrieves a cached configuration snapshot.
	// Returns nil, nil on a miss.
	GetDoctorConfig(ctx context.Context, tenantID string, doctorID string) (*DoctorConfig, error)

	// SetDoctorConfig caches a configuration snapshot.
	SetDoctorConfig(ctx context.Context, tenantID string, cfg *DoctorConfig, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `yaml:"type" env:"COMPENSO_CACHE" env-default:"memory"`

	// TTL of cached doctor configurations
	ConfigTTL time.Duration `yaml:"config_ttl" env:"COMPENSO_CACHE_CONFIG_TTL" env-default:"10m"`

	// Local LRU cache settings
	LocalMaxSize int           `yaml:"local_max_size" env:"COMPENSO_CACHE_LOCAL_MAX_SIZE" env-default:"10000"`
	LocalTTL     time.Duration `yaml:"local_ttl" env:"COMPENSO_CACHE_LOCAL_TTL" env-default:"5m"`

	// Redis settings
	RedisAddr     string `yaml:"redis_addr" env:"COMPENSO_REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `yaml:"redis_password" env:"COMPENSO_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"COMPENSO_REDIS_DB"`

	// Two-phase settings
	EnableTwoPhase bool `yaml:"two_phase" env:"COMPENSO_CACHE_TWO_PHASE"` // If true, check local first, then Redis
}

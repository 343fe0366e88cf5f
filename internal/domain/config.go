package domain

import "time"

// Config holds the complete compenso configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"event_bus"`
	Worker     WorkerConfig     `yaml:"worker"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Sentry  SentryConfig  `yaml:"sentry"`

	// SeedFile is an optional YAML file with catalog and doctor configurations
	// applied at startup.
	SeedFile string `yaml:"seed_file" env:"COMPENSO_SEED_FILE"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host" env:"COMPENSO_HOST" env-default:"0.0.0.0"`
	Port           int           `yaml:"port" env:"COMPENSO_PORT" env-default:"8080"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"COMPENSO_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"COMPENSO_WRITE_TIMEOUT" env-default:"30s"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"COMPENSO_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
}

// WorkerConfig holds async batch worker settings.
type WorkerConfig struct {
	Enabled   bool     `yaml:"enabled" env:"COMPENSO_WORKER"`
	TenantIDs []string `yaml:"tenant_ids" env:"COMPENSO_WORKER_TENANTS" env-separator:","`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"COMPENSO_LOG_LEVEL" env-default:"info"`   // debug, info, warn, error
	Format string `yaml:"format" env:"COMPENSO_LOG_FORMAT" env-default:"json"` // json, text
}

// SentryConfig holds error reporting settings. An empty DSN disables reporting.
type SentryConfig struct {
	DSN         string `yaml:"dsn" env:"SENTRY_DSN"`
	Environment string `yaml:"environment" env:"SENTRY_ENVIRONMENT" env-default:"production"`
	Release     string `yaml:"release" env:"SENTRY_RELEASE"`
}

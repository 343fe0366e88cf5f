// Package domain defines the core types and collaborator interfaces for compenso.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID (the clinic) for strict multi-tenancy isolation.
type Repository interface {
	// Doctor configuration operations
	SaveDoctorConfig(ctx context.Context, tenantID string, cfg *DoctorConfig) error
	GetDoctorConfig(ctx context.Context, tenantID string, doctorID string) (*DoctorConfig, error)
	ListDoctorConfigs(ctx context.Context, tenantID string) ([]*DoctorConfig, error)
	DeleteDoctorConfig(ctx context.Context, tenantID string, doctorID string) error

	// Reference product catalog
	SaveCatalogProduct(ctx context.Context, tenantID string, product CatalogProduct) error
	ListCatalog(ctx context.Context, tenantID string) ([]CatalogProduct, error)

	// Calculation audit records
	SaveCalculations(ctx context.Context, tenantID string, calcs []*Calculation) error
	GetCalculation(ctx context.Context, tenantID string, calcID string) (*Calculation, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite", "postgres" or "mysql"
	Driver string `yaml:"driver" env:"COMPENSO_DB_DRIVER" env-default:"sqlite"`

	// SQLite specific
	SQLitePath string `yaml:"sqlite_path" env:"COMPENSO_SQLITE_PATH" env-default:"./compenso.db"`

	// Server databases (PostgreSQL, MySQL)
	Host     string `yaml:"host" env:"COMPENSO_DB_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"COMPENSO_DB_PORT"`
	User     string `yaml:"user" env:"COMPENSO_DB_USER"`
	Password string `yaml:"password" env:"COMPENSO_DB_PASSWORD"`
	Name     string `yaml:"name" env:"COMPENSO_DB_NAME" env-default:"compenso"`
	SSLMode  string `yaml:"ssl_mode" env:"COMPENSO_DB_SSLMODE"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"max_open_conns" env:"COMPENSO_DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"COMPENSO_DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"COMPENSO_DB_CONN_MAX_LIFETIME"`
}

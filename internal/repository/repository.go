// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/compenso/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with SQLite, PostgreSQL and MySQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

var _ domain.Repository = (*SQLRepository)(nil)

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	case "mysql":
		db, err = openMySQL(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas(r.driver) {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveDoctorConfig stores a doctor's configuration, replacing any previous one.
func (r *SQLRepository) SaveDoctorConfig(ctx context.Context, tenantID string, cfg *domain.DoctorConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if cfg == nil || cfg.DoctorID == "" {
		return fmt.Errorf("%w: doctorID is required", domain.ErrInvalidInput)
	}

	baseRule, err := json.Marshal(cfg.BaseRule)
	if err != nil {
		return fmt.Errorf("failed to encode base rule: %w", err)
	}
	exceptions, err := json.Marshal(nonNilExceptions(cfg.Exceptions))
	if err != nil {
		return fmt.Errorf("failed to encode exceptions: %w", err)
	}
	costs, err := json.Marshal(nonNilCosts(cfg.ProductCosts))
	if err != nil {
		return fmt.Errorf("failed to encode product costs: %w", err)
	}

	now := time.Now().UTC()

	query := r.upsert(
		`INSERT INTO doctor_configs (
			tenant_id, doctor_id, base_rule, exceptions, product_costs, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		[]string{"tenant_id", "doctor_id"},
		[]string{"base_rule", "exceptions", "product_costs", "updated_at"},
	)

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		tenantID, cfg.DoctorID, string(baseRule), string(exceptions), string(costs), now, now,
	)
	if err != nil {
		return err
	}

	cfg.TenantID = tenantID
	cfg.UpdatedAt = now
	return nil
}

// GetDoctorConfig retrieves a doctor's configuration with tenant isolation.
func (r *SQLRepository) GetDoctorConfig(ctx context.Context, tenantID string, doctorID string) (*domain.DoctorConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, doctor_id, base_rule, exceptions, product_costs, updated_at
		FROM doctor_configs
		WHERE tenant_id = ? AND doctor_id = ?
	`

	cfg, err := scanDoctorConfig(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, doctorID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "doctor", ID: doctorID}
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListDoctorConfigs retrieves every doctor configuration of a tenant.
func (r *SQLRepository) ListDoctorConfigs(ctx context.Context, tenantID string) ([]*domain.DoctorConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, doctor_id, base_rule, exceptions, product_costs, updated_at
		FROM doctor_configs
		WHERE tenant_id = ?
		ORDER BY doctor_id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make([]*domain.DoctorConfig, 0)
	for rows.Next() {
		cfg, err := scanDoctorConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	return configs, rows.Err()
}

// DeleteDoctorConfig removes a doctor together with its exceptions and costs.
func (r *SQLRepository) DeleteDoctorConfig(ctx context.Context, tenantID string, doctorID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `DELETE FROM doctor_configs WHERE tenant_id = ? AND doctor_id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, doctorID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return &domain.NotFoundError{Entity: "doctor", ID: doctorID}
	}

	return nil
}

// SaveCatalogProduct adds or updates a reference catalog entry.
func (r *SQLRepository) SaveCatalogProduct(ctx context.Context, tenantID string, product domain.CatalogProduct) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if product.Name == "" {
		return fmt.Errorf("%w: product name is required", domain.ErrInvalidInput)
	}

	query := r.upsert(
		`INSERT INTO product_catalog (tenant_id, name, unit, updated_at) VALUES (?, ?, ?, ?)`,
		[]string{"tenant_id", "name"},
		[]string{"unit", "updated_at"},
	)

	_, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, product.Name, product.Unit, time.Now().UTC())
	return err
}

// ListCatalog retrieves the reference catalog of a tenant ordered by name.
func (r *SQLRepository) ListCatalog(ctx context.Context, tenantID string) ([]domain.CatalogProduct, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT name, unit
		FROM product_catalog
		WHERE tenant_id = ?
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.CatalogProduct, 0)
	for rows.Next() {
		var p domain.CatalogProduct
		if err := rows.Scan(&p.Name, &p.Unit); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

// SaveCalculations stores the audit records of a computed batch in one
// transaction. Either every record is stored or none is.
func (r *SQLRepository) SaveCalculations(ctx context.Context, tenantID string, calcs []*domain.Calculation) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := r.rebind(`
		INSERT INTO calculations (
			id, tenant_id, doctor_id, line, result, net_compensation, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, calc := range calcs {
		line, err := json.Marshal(calc.Line)
		if err != nil {
			return fmt.Errorf("failed to encode invoice line: %w", err)
		}
		result, err := json.Marshal(calc.Result)
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query,
			calc.ID, tenantID, calc.DoctorID, string(line), string(result),
			calc.Result.NetCompensation, calc.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert calculation %s: %w", calc.ID, err)
		}
	}

	return tx.Commit()
}

// GetCalculation retrieves a calculation record with tenant isolation.
func (r *SQLRepository) GetCalculation(ctx context.Context, tenantID string, calcID string) (*domain.Calculation, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, doctor_id, line, result, created_at
		FROM calculations
		WHERE tenant_id = ? AND id = ?
	`

	var calc domain.Calculation
	var line, result string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, calcID).Scan(
		&calc.ID, &calc.TenantID, &calc.DoctorID, &line, &result, &calc.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "calculation", ID: calcID}
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(line), &calc.Line); err != nil {
		return nil, fmt.Errorf("failed to parse invoice line of %s: %w", calcID, err)
	}
	if err := json.Unmarshal([]byte(result), &calc.Result); err != nil {
		return nil, fmt.Errorf("failed to parse result of %s: %w", calcID, err)
	}

	return &calc, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoctorConfig(row rowScanner) (*domain.DoctorConfig, error) {
	var cfg domain.DoctorConfig
	var baseRule, exceptions, costs string

	if err := row.Scan(&cfg.TenantID, &cfg.DoctorID, &baseRule, &exceptions, &costs, &cfg.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(baseRule), &cfg.BaseRule); err != nil {
		return nil, fmt.Errorf("failed to parse base rule for %s: %w", cfg.DoctorID, err)
	}
	if err := json.Unmarshal([]byte(exceptions), &cfg.Exceptions); err != nil {
		return nil, fmt.Errorf("failed to parse exceptions for %s: %w", cfg.DoctorID, err)
	}
	if err := json.Unmarshal([]byte(costs), &cfg.ProductCosts); err != nil {
		return nil, fmt.Errorf("failed to parse product costs for %s: %w", cfg.DoctorID, err)
	}

	cfg.Exceptions = nonNilExceptions(cfg.Exceptions)
	cfg.ProductCosts = nonNilCosts(cfg.ProductCosts)
	return &cfg, nil
}

func nonNilExceptions(list []domain.Exception) []domain.Exception {
	if list == nil {
		return []domain.Exception{}
	}
	return list
}

func nonNilCosts(list []domain.ProductCost) []domain.ProductCost {
	if list == nil {
		return []domain.ProductCost{}
	}
	return list
}

// upsert appends the dialect's conflict clause to an INSERT statement.
func (r *SQLRepository) upsert(insert string, keys, columns []string) string {
	var clause string
	if r.driver == "mysql" {
		clause = " ON DUPLICATE KEY UPDATE "
		for i, col := range columns {
			if i > 0 {
				clause += ", "
			}
			clause += col + " = VALUES(" + col + ")"
		}
		return insert + clause
	}

	clause = " ON CONFLICT("
	for i, key := range keys {
		if i > 0 {
			clause += ", "
		}
		clause += key
	}
	clause += ") DO UPDATE SET "
	for i, col := range columns {
		if i > 0 {
			clause += ", "
		}
		clause += col + " = excluded." + col
	}
	return insert + clause
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, strconv.Itoa(n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

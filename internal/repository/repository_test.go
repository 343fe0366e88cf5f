package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLite(t *testing.T) *SQLRepository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "compenso-test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleConfig(doctorID string) *domain.DoctorConfig {
	return &domain.DoctorConfig{
		DoctorID: doctorID,
		BaseRule: domain.Rule{Base: domain.BaseNet, DeductProductCost: true, Formula: domain.Percentage{Value: 50}},
		Exceptions: []domain.Exception{
			{ID: 1, Treatment: "Peeling", Product: "SerumX", Rule: domain.Rule{Base: domain.BaseNet, DeductProductCost: true, Formula: domain.Percentage{Value: 60}}},
			{ID: 2, Treatment: "Laser", Rule: domain.Rule{Base: domain.BaseGross, Formula: domain.Tiered{Threshold: 50, Percent: 30}}},
			{ID: 3, Treatment: "Consult", Rule: domain.Rule{Base: domain.BaseNet, Formula: domain.Fixed{Amount: 20, Percent: 10}}},
		},
		ProductCosts: []domain.ProductCost{
			{ID: 1, Name: "SerumX", Cost: 10, Unit: "ml"},
			{ID: 2, Name: "Patch", Cost: 0, Unit: "pc", ExcludeFromDeduction: true},
		},
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()
	tenantID := "clinic-001"

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})

	t.Run("SaveAndGetDoctorConfig", func(t *testing.T) {
		cfg := sampleConfig("doc-001")
		require.NoError(t, repo.SaveDoctorConfig(ctx, tenantID, cfg))
		assert.False(t, cfg.UpdatedAt.IsZero())

		got, err := repo.GetDoctorConfig(ctx, tenantID, "doc-001")
		require.NoError(t, err)
		assert.Equal(t, tenantID, got.TenantID)
		assert.True(t, got.BaseRule.Equal(cfg.BaseRule))
		assert.Equal(t, cfg.Exceptions, got.Exceptions)
		assert.Equal(t, cfg.ProductCosts, got.ProductCosts)
	})

	t.Run("SaveReplacesPreviousConfig", func(t *testing.T) {
		cfg := sampleConfig("doc-001")
		cfg.Exceptions = nil
		require.NoError(t, repo.SaveDoctorConfig(ctx, tenantID, cfg))

		got, err := repo.GetDoctorConfig(ctx, tenantID, "doc-001")
		require.NoError(t, err)
		assert.NotNil(t, got.Exceptions)
		assert.Empty(t, got.Exceptions)
	})

	t.Run("ListDoctorConfigs", func(t *testing.T) {
		require.NoError(t, repo.SaveDoctorConfig(ctx, tenantID, sampleConfig("doc-000")))

		configs, err := repo.ListDoctorConfigs(ctx, tenantID)
		require.NoError(t, err)
		require.Len(t, configs, 2)
		assert.Equal(t, "doc-000", configs[0].DoctorID)
		assert.Equal(t, "doc-001", configs[1].DoctorID)
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetDoctorConfig(ctx, "clinic-002", "doc-001")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		configs, err := repo.ListDoctorConfigs(ctx, "clinic-002")
		require.NoError(t, err)
		assert.Empty(t, configs)
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		assert.ErrorIs(t, repo.SaveDoctorConfig(ctx, "", sampleConfig("doc-x")), domain.ErrInvalidInput)

		_, err := repo.GetDoctorConfig(ctx, "", "doc-001")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = repo.ListCatalog(ctx, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("DeleteDoctorConfig", func(t *testing.T) {
		require.NoError(t, repo.DeleteDoctorConfig(ctx, tenantID, "doc-000"))

		_, err := repo.GetDoctorConfig(ctx, tenantID, "doc-000")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		assert.ErrorIs(t, repo.DeleteDoctorConfig(ctx, tenantID, "doc-000"), domain.ErrNotFound)
	})

	t.Run("Catalog", func(t *testing.T) {
		require.NoError(t, repo.SaveCatalogProduct(ctx, tenantID, domain.CatalogProduct{Name: "Vial", Unit: "pc"}))
		require.NoError(t, repo.SaveCatalogProduct(ctx, tenantID, domain.CatalogProduct{Name: "SerumX", Unit: "fl"}))
		require.NoError(t, repo.SaveCatalogProduct(ctx, tenantID, domain.CatalogProduct{Name: "SerumX", Unit: "ml"}))

		products, err := repo.ListCatalog(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, []domain.CatalogProduct{
			{Name: "SerumX", Unit: "ml"},
			{Name: "Vial", Unit: "pc"},
		}, products)

		err = repo.SaveCatalogProduct(ctx, tenantID, domain.CatalogProduct{Unit: "pc"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("SaveAndGetCalculation", func(t *testing.T) {
		calc := &domain.Calculation{
			ID:       "calc-001",
			DoctorID: "doc-001",
			Line:     domain.InvoiceLine{InvoiceAmount: 122, VATIncluded: true, Treatment: "Peeling", Product: "SerumX", Quantity: 2},
			Result: domain.CalculationResult{
				GrossAmount:      122,
				NetAmount:        100,
				BaseCompensation: 60,
				DeductedCost:     20,
				NetCompensation:  40,
				RuleSource:       domain.SourceProductException,
				ExceptionID:      1,
				AppliedRule:      domain.Rule{Base: domain.BaseNet, DeductProductCost: true, Formula: domain.Percentage{Value: 60}},
				Formula:          "60% of €100.00",
			},
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, repo.SaveCalculations(ctx, tenantID, []*domain.Calculation{calc}))

		got, err := repo.GetCalculation(ctx, tenantID, "calc-001")
		require.NoError(t, err)
		assert.Equal(t, calc.Line, got.Line)
		assert.Equal(t, calc.Result, got.Result)
		assert.Equal(t, tenantID, got.TenantID)

		_, err = repo.GetCalculation(ctx, "clinic-002", "calc-001")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("BatchIsAllOrNothing", func(t *testing.T) {
		first := &domain.Calculation{ID: "calc-101", DoctorID: "doc-001", CreatedAt: time.Now().UTC()}
		clash := &domain.Calculation{ID: "calc-001", DoctorID: "doc-001", CreatedAt: time.Now().UTC()}

		err := repo.SaveCalculations(ctx, tenantID, []*domain.Calculation{first, clash})
		require.Error(t, err)

		_, err = repo.GetCalculation(ctx, tenantID, "calc-101")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, repo.rebind(tt.input))
	}
}

func TestUpsert(t *testing.T) {
	insert := "INSERT INTO t (a, b, c) VALUES (?, ?, ?)"

	sqlite := &SQLRepository{driver: "sqlite"}
	assert.Equal(t,
		insert+" ON CONFLICT(a, b) DO UPDATE SET c = excluded.c",
		sqlite.upsert(insert, []string{"a", "b"}, []string{"c"}))

	mysql := &SQLRepository{driver: "mysql"}
	assert.Equal(t,
		insert+" ON DUPLICATE KEY UPDATE c = VALUES(c)",
		mysql.upsert(insert, []string{"a", "b"}, []string{"c"}))
}

func TestAllSchemas(t *testing.T) {
	assert.Len(t, AllSchemas("sqlite"), 3)
	for _, stmt := range AllSchemas("mysql") {
		assert.NotContains(t, stmt, "CREATE INDEX")
	}
}

// Package seed applies a YAML file of catalog products and doctor
// configurations at startup.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/opensource-finance/compenso/internal/rules"
)

// File is the root of a seed document.
//
//	tenants:
//	  - id: clinic-roma
//	    catalog:
//	      - {name: SerumX, unit: ml}
//	    doctors:
//	      - id: dr-rossi
//	        baseRule: {kind: percentage, value: 40}
//	        exceptions:
//	          - treatment: Peeling
//	            product: SerumX
//	            rule: {kind: percentage, value: 60, deductProductCost: true}
//	        productCosts:
//	          - {name: SerumX, cost: 10, unit: ml}
type File struct {
	Tenants []Tenant `yaml:"tenants"`
}

// Tenant groups the seed data of one clinic.
type Tenant struct {
	ID      string                  `yaml:"id"`
	Catalog []domain.CatalogProduct `yaml:"catalog"`
	Doctors []Doctor                `yaml:"doctors"`
}

// Doctor is the seed form of a doctor configuration.
type Doctor struct {
	ID           string            `yaml:"id"`
	BaseRule     domain.RuleSpec   `yaml:"baseRule"`
	Exceptions   []Exception       `yaml:"exceptions"`
	ProductCosts []ProductCostSeed `yaml:"productCosts"`
}

// Exception is the seed form of an exception.
type Exception struct {
	Treatment string          `yaml:"treatment"`
	Product   string          `yaml:"product"`
	Rule      domain.RuleSpec `yaml:"rule"`
}

// ProductCostSeed is the seed form of a product cost.
type ProductCostSeed struct {
	Name                 string  `yaml:"name"`
	Cost                 float64 `yaml:"cost"`
	Unit                 string  `yaml:"unit"`
	ExcludeFromDeduction bool    `yaml:"excludeFromDeduction"`
}

// Target is the set of operations a seed is applied through.
type Target interface {
	SetCatalogProduct(ctx context.Context, tenantID string, product domain.CatalogProduct) error
	SetBaseRule(ctx context.Context, tenantID, doctorID string, rule domain.Rule) ([]domain.Warning, error)
	ImportExceptions(ctx context.Context, tenantID, doctorID string, list []domain.Exception) ([]domain.Warning, error)
	GetConfig(ctx context.Context, tenantID, doctorID string) (*domain.DoctorConfig, error)
	AddProductCost(ctx context.Context, tenantID, doctorID string, in domain.ProductCostInput) (domain.ProductCost, []domain.Warning, error)
	UpdateProductCost(ctx context.Context, tenantID, doctorID string, id int, patch domain.ProductCostPatch) (domain.ProductCost, []domain.Warning, error)
}

// Load reads and parses a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a seed document. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &f, nil
}

// Apply writes the seed through target. It is idempotent: exceptions are
// replaced and product costs are upserted by name.
func (f *File) Apply(ctx context.Context, target Target) error {
	for _, tenant := range f.Tenants {
		if tenant.ID == "" {
			return fmt.Errorf("%w: seed tenant id is required", domain.ErrInvalidInput)
		}

		for _, product := range tenant.Catalog {
			if err := target.SetCatalogProduct(ctx, tenant.ID, product); err != nil {
				return fmt.Errorf("tenant %s catalog %q: %w", tenant.ID, product.Name, err)
			}
		}

		for _, doc := range tenant.Doctors {
			if err := applyDoctor(ctx, target, tenant.ID, doc); err != nil {
				return fmt.Errorf("tenant %s doctor %s: %w", tenant.ID, doc.ID, err)
			}
		}

		slog.Info("seed applied",
			"tenant_id", tenant.ID,
			"catalog", len(tenant.Catalog),
			"doctors", len(tenant.Doctors),
		)
	}
	return nil
}

// ApplyFile loads path and applies it. A missing file is not an error.
func ApplyFile(ctx context.Context, path string, target Target) error {
	f, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("seed file not found", "path", path)
		return nil
	}
	if err != nil {
		return err
	}
	return f.Apply(ctx, target)
}

func applyDoctor(ctx context.Context, target Target, tenantID string, doc Doctor) error {
	base, err := doc.BaseRule.Rule()
	if err != nil {
		return fmt.Errorf("base rule: %w", err)
	}
	if _, err := target.SetBaseRule(ctx, tenantID, doc.ID, base); err != nil {
		return err
	}

	list := make([]domain.Exception, len(doc.Exceptions))
	for i, exc := range doc.Exceptions {
		rule, err := exc.Rule.Rule()
		if err == nil {
			err = rules.Validate(rule)
		}
		if err != nil {
			return fmt.Errorf("exception %d (%s): %w", i+1, domain.NewExceptionKey(exc.Treatment, exc.Product), err)
		}
		list[i] = domain.Exception{Treatment: exc.Treatment, Product: exc.Product, Rule: rule}
	}
	if _, err := target.ImportExceptions(ctx, tenantID, doc.ID, list); err != nil {
		return err
	}

	if len(doc.ProductCosts) == 0 {
		return nil
	}

	cfg, err := target.GetConfig(ctx, tenantID, doc.ID)
	if err != nil {
		return err
	}
	existing := make(map[string]int, len(cfg.ProductCosts))
	for _, pc := range cfg.ProductCosts {
		existing[pc.Name] = pc.ID
	}

	for _, pc := range doc.ProductCosts {
		name := strings.TrimSpace(pc.Name)
		if id, ok := existing[name]; ok {
			_, _, err = target.UpdateProductCost(ctx, tenantID, doc.ID, id, domain.ProductCostPatch{
				Cost:                 &pc.Cost,
				Unit:                 &pc.Unit,
				ExcludeFromDeduction: &pc.ExcludeFromDeduction,
			})
		} else {
			_, _, err = target.AddProductCost(ctx, tenantID, doc.ID, domain.ProductCostInput{
				Name:                 name,
				Cost:                 pc.Cost,
				Unit:                 pc.Unit,
				ExcludeFromDeduction: pc.ExcludeFromDeduction,
			})
		}
		if err != nil {
			return fmt.Errorf("product cost %q: %w", name, err)
		}
	}

	return nil
}

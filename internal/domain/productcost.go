package domain

import "strings"

// ProductCost is a deductible per-unit cost for a product.
type ProductCost struct {
	ID                   int     `json:"id"`
	Name                 string  `json:"name"`
	Cost                 float64 `json:"cost"`
	Unit                 string  `json:"unit"`
	ExcludeFromDeduction bool    `json:"excludeFromDeduction"`
}

// Normalize trims the name, clamps the cost to zero and forces
// ExcludeFromDeduction for zero-cost products.
func (p ProductCost) Normalize() ProductCost {
	p.Name = strings.TrimSpace(p.Name)
	p.Unit = strings.TrimSpace(p.Unit)
	if p.Cost < 0 {
		p.Cost = 0
	}
	if p.Cost == 0 {
		p.ExcludeFromDeduction = true
	}
	return p
}

// Deductible reports whether the cost takes part in deduction.
func (p ProductCost) Deductible() bool {
	return p.Cost > 0 && !p.ExcludeFromDeduction
}

// ProductCostInput carries the fields needed to create a product cost.
type ProductCostInput struct {
	Name                 string  `json:"name"`
	Cost                 float64 `json:"cost"`
	Unit                 string  `json:"unit"`
	ExcludeFromDeduction bool    `json:"excludeFromDeduction"`
}

// ProductCostPatch is a partial product cost update.
type ProductCostPatch struct {
	Name                 *string  `json:"name,omitempty"`
	Cost                 *float64 `json:"cost,omitempty"`
	Unit                 *string  `json:"unit,omitempty"`
	ExcludeFromDeduction *bool    `json:"excludeFromDeduction,omitempty"`
}

// CatalogProduct is an entry of the clinic's reference product catalog.
type CatalogProduct struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// Catalog maps known product names to their unit.
type Catalog map[string]string

// NewCatalog builds a Catalog from a list of products.
func NewCatalog(products []CatalogProduct) Catalog {
	c := make(Catalog, len(products))
	for _, p := range products {
		c[strings.TrimSpace(p.Name)] = p.Unit
	}
	return c
}

// CostRow is one (name, cost) pair from an externally supplied cost sheet.
type CostRow struct {
	Name string  `json:"name"`
	Cost float64 `json:"cost"`
}

// CostModification is an existing product whose cost changes on import.
type CostModification struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	OldCost float64 `json:"oldCost"`
	NewCost float64 `json:"newCost"`
}

// NewProductCost is a catalog product that an import adds to the cost list.
type NewProductCost struct {
	Name string  `json:"name"`
	Cost float64 `json:"cost"`
	Unit string  `json:"unit"`
}

// CostImportPreview classifies the rows of a cost sheet. Every row lands in at
// most one bucket; rows matching an existing cost exactly are dropped.
type CostImportPreview struct {
	Modifications []CostModification `json:"modifications"`
	NewProducts   []NewProductCost   `json:"newProducts"`
	Invalid       []CostRow          `json:"invalid"`
}

// CostImportSummary reports what ConfirmImport applied.
type CostImportSummary struct {
	Modified int `json:"modified"`
	Added    int `json:"added"`
}

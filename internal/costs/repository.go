// Package costs manages the deductible product costs of one doctor.
package costs

import (
	"fmt"
	"math"
	"strings"

	"github.com/opensource-finance/compenso/internal/domain"
)

// Repository is an in-memory edit session over a doctor's product costs,
// unique by product name. Every stored entry is normalized: cost is never
// negative and zero-cost entries are always excluded from deduction.
type Repository struct {
	items  []domain.ProductCost
	nextID int
}

// New creates a repository seeded with existing product costs.
func New(existing []domain.ProductCost) *Repository {
	r := &Repository{
		items:  make([]domain.ProductCost, len(existing)),
		nextID: 1,
	}
	for i, pc := range existing {
		r.items[i] = pc.Normalize()
		if pc.ID >= r.nextID {
			r.nextID = pc.ID + 1
		}
	}
	return r
}

// List returns a copy of the product costs in insertion order.
func (r *Repository) List() []domain.ProductCost {
	out := make([]domain.ProductCost, len(r.items))
	copy(out, r.items)
	return out
}

// Export returns the state to persist.
func (r *Repository) Export() []domain.ProductCost {
	return r.List()
}

// Get returns the product cost with the given id.
func (r *Repository) Get(id int) (domain.ProductCost, error) {
	i := r.indexOf(id)
	if i < 0 {
		return domain.ProductCost{}, &domain.NotFoundError{Entity: "product cost", ID: id}
	}
	return r.items[i], nil
}

// FindByName returns the product cost for a product name.
func (r *Repository) FindByName(name string) (domain.ProductCost, bool) {
	i := r.indexOfName(strings.TrimSpace(name))
	if i < 0 {
		return domain.ProductCost{}, false
	}
	return r.items[i], true
}

// Add creates a product cost.
func (r *Repository) Add(in domain.ProductCostInput) (domain.ProductCost, error) {
	pc := domain.ProductCost{
		Name:                 in.Name,
		Cost:                 in.Cost,
		Unit:                 in.Unit,
		ExcludeFromDeduction: in.ExcludeFromDeduction,
	}.Normalize()

	if err := checkEntry(pc); err != nil {
		return domain.ProductCost{}, err
	}
	if r.indexOfName(pc.Name) >= 0 {
		return domain.ProductCost{}, &domain.DuplicateProductCostError{Name: pc.Name}
	}

	pc.ID = r.nextID
	r.nextID++
	r.items = append(r.items, pc)
	return pc, nil
}

// Update applies a patch to a product cost and re-normalizes it.
func (r *Repository) Update(id int, patch domain.ProductCostPatch) (domain.ProductCost, error) {
	i := r.indexOf(id)
	if i < 0 {
		return domain.ProductCost{}, &domain.NotFoundError{Entity: "product cost", ID: id}
	}

	pc := r.items[i]
	if patch.Name != nil {
		pc.Name = *patch.Name
	}
	if patch.Cost != nil {
		pc.Cost = *patch.Cost
	}
	if patch.Unit != nil {
		pc.Unit = *patch.Unit
	}
	if patch.ExcludeFromDeduction != nil {
		pc.ExcludeFromDeduction = *patch.ExcludeFromDeduction
	}
	pc = pc.Normalize()

	if err := checkEntry(pc); err != nil {
		return domain.ProductCost{}, err
	}
	if j := r.indexOfName(pc.Name); j >= 0 && j != i {
		return domain.ProductCost{}, &domain.DuplicateProductCostError{Name: pc.Name}
	}

	r.items[i] = pc
	return pc, nil
}

// Remove deletes a product cost by id.
func (r *Repository) Remove(id int) error {
	i := r.indexOf(id)
	if i < 0 {
		return &domain.NotFoundError{Entity: "product cost", ID: id}
	}
	r.items = append(r.items[:i:i], r.items[i+1:]...)
	return nil
}

// RemoveByName deletes the product cost for a product name.
func (r *Repository) RemoveByName(name string) error {
	name = strings.TrimSpace(name)
	i := r.indexOfName(name)
	if i < 0 {
		return &domain.NotFoundError{Entity: "product cost", ID: name}
	}
	r.items = append(r.items[:i:i], r.items[i+1:]...)
	return nil
}

// PrepareImport classifies the rows of an external cost sheet against the
// current list and the reference catalog. A row for an existing product with a
// different cost is a modification; a row for a catalog product not yet priced
// is new; anything else unknown is invalid. Rows that match an existing cost
// are dropped. When a sheet names a product twice the last row wins.
func (r *Repository) PrepareImport(rows []domain.CostRow, catalog domain.Catalog) domain.CostImportPreview {
	preview := domain.CostImportPreview{
		Modifications: []domain.CostModification{},
		NewProducts:   []domain.NewProductCost{},
		Invalid:       []domain.CostRow{},
	}

	for _, row := range dedupeRows(rows) {
		if row.Name == "" || math.IsNaN(row.Cost) || math.IsInf(row.Cost, 0) {
			preview.Invalid = append(preview.Invalid, row)
			continue
		}
		cost := math.Max(row.Cost, 0)

		if i := r.indexOfName(row.Name); i >= 0 {
			existing := r.items[i]
			if existing.Cost != cost {
				preview.Modifications = append(preview.Modifications, domain.CostModification{
					ID:      existing.ID,
					Name:    existing.Name,
					OldCost: existing.Cost,
					NewCost: cost,
				})
			}
			continue
		}

		if unit, ok := catalog[row.Name]; ok {
			preview.NewProducts = append(preview.NewProducts, domain.NewProductCost{
				Name: row.Name,
				Cost: cost,
				Unit: unit,
			})
			continue
		}

		preview.Invalid = append(preview.Invalid, row)
	}

	return preview
}

// ConfirmImport applies a prepared import: cost modifications first, then new
// products. Invalid rows are left for the caller. Nothing is applied when any
// step fails.
func (r *Repository) ConfirmImport(preview domain.CostImportPreview) (domain.CostImportSummary, error) {
	session := &Repository{items: r.List(), nextID: r.nextID}
	var summary domain.CostImportSummary

	for _, mod := range preview.Modifications {
		cost := mod.NewCost
		if _, err := session.Update(mod.ID, domain.ProductCostPatch{Cost: &cost}); err != nil {
			return domain.CostImportSummary{}, fmt.Errorf("modify %s: %w", mod.Name, err)
		}
		summary.Modified++
	}

	for _, np := range preview.NewProducts {
		if _, err := session.Add(domain.ProductCostInput{Name: np.Name, Cost: np.Cost, Unit: np.Unit}); err != nil {
			return domain.CostImportSummary{}, fmt.Errorf("add %s: %w", np.Name, err)
		}
		summary.Added++
	}

	r.items = session.items
	r.nextID = session.nextID
	return summary, nil
}

func checkEntry(pc domain.ProductCost) error {
	if pc.Name == "" {
		return fmt.Errorf("%w: product name is required", domain.ErrInvalidInput)
	}
	if math.IsNaN(pc.Cost) || math.IsInf(pc.Cost, 0) {
		return fmt.Errorf("%w: cost for %s is not a number", domain.ErrInvalidInput, pc.Name)
	}
	return nil
}

// dedupeRows trims names and collapses repeated names to their last value,
// keeping the position of the first occurrence.
func dedupeRows(rows []domain.CostRow) []domain.CostRow {
	out := make([]domain.CostRow, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		row.Name = strings.TrimSpace(row.Name)
		if i, ok := index[row.Name]; ok && row.Name != "" {
			out[i] = row
			continue
		}
		index[row.Name] = len(out)
		out = append(out, row)
	}
	return out
}

func (r *Repository) indexOf(id int) int {
	for i, pc := range r.items {
		if pc.ID == id {
			return i
		}
	}
	return -1
}

func (r *Repository) indexOfName(name string) int {
	for i, pc := range r.items {
		if pc.Name == name {
			return i
		}
	}
	return -1
}

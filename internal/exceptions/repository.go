// Package exceptions manages the per-treatment rule overrides of one doctor.
package exceptions

import (
	"fmt"

	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/opensource-finance/compenso/internal/rules"
)

// Repository is an in-memory edit session over a doctor's exceptions.
// It is built from a snapshot, mutated, and exported back. It is not safe for
// concurrent use; callers serialize edits to the same doctor.
type Repository struct {
	items  []domain.Exception
	nextID int
}

// New creates a repository seeded with existing exceptions.
// The id counter starts after the highest existing id.
func New(existing []domain.Exception) *Repository {
	r := &Repository{
		items:  cloneAll(existing),
		nextID: 1,
	}
	for _, exc := range r.items {
		if exc.ID >= r.nextID {
			r.nextID = exc.ID + 1
		}
	}
	return r
}

// List returns a copy of the exceptions in insertion order.
func (r *Repository) List() []domain.Exception {
	return cloneAll(r.items)
}

// Export returns the state to persist.
func (r *Repository) Export() []domain.Exception {
	return r.List()
}

// Get returns the exception with the given id.
func (r *Repository) Get(id int) (domain.Exception, error) {
	i := r.indexOf(id)
	if i < 0 {
		return domain.Exception{}, &domain.NotFoundError{Entity: "exception", ID: id}
	}
	return r.items[i], nil
}

// Add creates an exception. It fails with a DuplicateExceptionError when the
// (treatment, product) pair is already used, and with domain.ErrInvalidRule
// when the rule is out of bounds.
func (r *Repository) Add(in domain.ExceptionInput) (domain.Exception, error) {
	key := domain.NewExceptionKey(in.Treatment, in.Product)
	if key.Treatment == "" {
		return domain.Exception{}, fmt.Errorf("%w: treatment is required", domain.ErrInvalidInput)
	}
	if err := rules.Validate(in.Rule); err != nil {
		return domain.Exception{}, err
	}
	if r.findKey(key) >= 0 {
		return domain.Exception{}, &domain.DuplicateExceptionError{Key: key}
	}

	exc := domain.Exception{
		ID:        r.nextID,
		Treatment: key.Treatment,
		Product:   key.Product,
		Rule:      in.Rule,
	}
	r.nextID++
	r.items = append(r.items, exc)
	return exc, nil
}

// Update applies a patch to an exception. The rule patch is merged field by
// field into the current rule and the result is validated before anything is
// stored.
func (r *Repository) Update(id int, patch domain.ExceptionPatch) (domain.Exception, error) {
	i := r.indexOf(id)
	if i < 0 {
		return domain.Exception{}, &domain.NotFoundError{Entity: "exception", ID: id}
	}

	updated := r.items[i]
	if patch.Treatment != nil {
		updated.Treatment = *patch.Treatment
	}
	if patch.Product != nil {
		updated.Product = *patch.Product
	}

	key := updated.Key()
	if key.Treatment == "" {
		return domain.Exception{}, fmt.Errorf("%w: treatment is required", domain.ErrInvalidInput)
	}
	updated.Treatment, updated.Product = key.Treatment, key.Product

	if j := r.findKey(key); j >= 0 && j != i {
		return domain.Exception{}, &domain.DuplicateExceptionError{Key: key}
	}

	if patch.Rule != nil {
		rule, err := patch.Rule.ApplyTo(updated.Rule)
		if err != nil {
			return domain.Exception{}, err
		}
		updated.Rule = rule
	}
	if err := rules.Validate(updated.Rule); err != nil {
		return domain.Exception{}, err
	}

	r.items[i] = updated
	return updated, nil
}

// Remove deletes an exception by id.
func (r *Repository) Remove(id int) error {
	i := r.indexOf(id)
	if i < 0 {
		return &domain.NotFoundError{Entity: "exception", ID: id}
	}
	r.items = append(r.items[:i:i], r.items[i+1:]...)
	return nil
}

// FindApplicable returns the exception that governs a treatment and product,
// or false when the base rule applies.
func (r *Repository) FindApplicable(treatment, product string) (domain.Exception, bool) {
	return FindApplicable(r.items, treatment, product)
}

// FindApplicable resolves the exception for a treatment and optional product:
// the exact (treatment, product) pair first, then the treatment's generic
// exception. The calculator uses the same lookup.
func FindApplicable(list []domain.Exception, treatment, product string) (domain.Exception, bool) {
	key := domain.NewExceptionKey(treatment, product)

	if key.Product != "" {
		for _, exc := range list {
			if exc.Key() == key {
				return exc, true
			}
		}
	}

	generic := domain.ExceptionKey{Treatment: key.Treatment}
	for _, exc := range list {
		if exc.Key() == generic {
			return exc, true
		}
	}

	return domain.Exception{}, false
}

// Merge folds incoming exceptions into the repository. Collisions are handled
// by strategy; an empty strategy means domain.MergeError. Incoming exceptions
// without a collision are appended with fresh ids. Nothing is applied when the
// merge fails.
func (r *Repository) Merge(incoming []domain.Exception, strategy domain.MergeStrategy) (domain.MergeReport, error) {
	if strategy == "" {
		strategy = domain.MergeError
	}
	switch strategy {
	case domain.MergeError, domain.MergeReplace, domain.MergeSkip:
	default:
		return domain.MergeReport{}, fmt.Errorf("%w: unknown merge strategy %q", domain.ErrInvalidInput, strategy)
	}

	items := cloneAll(r.items)
	nextID := r.nextID
	var report domain.MergeReport

	for _, exc := range incoming {
		key := exc.Key()
		if key.Treatment == "" {
			return domain.MergeReport{}, fmt.Errorf("%w: treatment is required", domain.ErrInvalidInput)
		}
		if exc.Rule.Formula == nil {
			return domain.MergeReport{}, fmt.Errorf("%w: exception for %s has no rule", domain.ErrInvalidRule, key)
		}

		j := indexOfKey(items, key)
		if j < 0 {
			items = append(items, domain.Exception{
				ID:        nextID,
				Treatment: key.Treatment,
				Product:   key.Product,
				Rule:      exc.Rule,
			})
			nextID++
			report.Added++
			continue
		}

		switch strategy {
		case domain.MergeReplace:
			items[j].Rule = exc.Rule
			report.Replaced++
		case domain.MergeSkip:
			report.Skipped++
		default:
			return domain.MergeReport{}, &domain.MergeConflictError{Key: key}
		}
	}

	r.items = items
	r.nextID = nextID
	return report, nil
}

// Import replaces the whole list. It fails without touching the current state
// when the list contains two exceptions for the same key. Ids are renumbered
// from 1 in list order. Every exception must carry a rule; out-of-bounds
// rules are stored as given and reported by the coherence check.
func (r *Repository) Import(list []domain.Exception) error {
	seen := make(map[domain.ExceptionKey]bool, len(list))
	for _, exc := range list {
		key := exc.Key()
		if key.Treatment == "" {
			return fmt.Errorf("%w: treatment is required", domain.ErrInvalidInput)
		}
		if exc.Rule.Formula == nil {
			return fmt.Errorf("%w: exception for %s has no rule", domain.ErrInvalidRule, key)
		}
		if seen[key] {
			return &domain.DuplicateExceptionError{Key: key}
		}
		seen[key] = true
	}

	items := make([]domain.Exception, len(list))
	for i, exc := range list {
		key := exc.Key()
		items[i] = domain.Exception{
			ID:        i + 1,
			Treatment: key.Treatment,
			Product:   key.Product,
			Rule:      exc.Rule,
		}
	}

	r.items = items
	r.nextID = len(items) + 1
	return nil
}

func (r *Repository) indexOf(id int) int {
	for i, exc := range r.items {
		if exc.ID == id {
			return i
		}
	}
	return -1
}

func (r *Repository) findKey(key domain.ExceptionKey) int {
	return indexOfKey(r.items, key)
}

func indexOfKey(list []domain.Exception, key domain.ExceptionKey) int {
	for i, exc := range list {
		if exc.Key() == key {
			return i
		}
	}
	return -1
}

func cloneAll(list []domain.Exception) []domain.Exception {
	out := make([]domain.Exception, len(list))
	copy(out, list)
	return out
}

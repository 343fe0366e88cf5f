package domain

import "strings"

// Exception overrides the base rule for a treatment, optionally narrowed to a
// single product. An empty Product means the exception covers all products.
type Exception struct {
	ID        int    `json:"id"`
	Treatment string `json:"treatment"`
	Product   string `json:"product,omitempty"`
	Rule      Rule   `json:"rule"`
}

// Key returns the uniqueness key of the exception.
func (e Exception) Key() ExceptionKey {
	return NewExceptionKey(e.Treatment, e.Product)
}

// IsGeneric reports whether the exception applies to every product.
func (e Exception) IsGeneric() bool {
	return e.Product == ""
}

// ExceptionKey is the (treatment, product) pair an exception is unique on.
type ExceptionKey struct {
	Treatment string
	Product   string
}

// NewExceptionKey builds a key from trimmed treatment and product names.
func NewExceptionKey(treatment, product string) ExceptionKey {
	return ExceptionKey{
		Treatment: strings.TrimSpace(treatment),
		Product:   strings.TrimSpace(product),
	}
}

// String renders the key for messages, e.g. "Peeling / SerumX" or "Laser (all products)".
func (k ExceptionKey) String() string {
	if k.Product == "" {
		return k.Treatment + " (all products)"
	}
	return k.Treatment + " / " + k.Product
}

// ExceptionInput carries the fields needed to create an exception.
type ExceptionInput struct {
	Treatment string `json:"treatment"`
	Product   string `json:"product,omitempty"`
	Rule      Rule   `json:"rule"`
}

// ExceptionPatch is a partial exception update. A non-nil Product pointing to
// "" turns the exception into a generic one.
type ExceptionPatch struct {
	Treatment *string    `json:"treatment,omitempty"`
	Product   *string    `json:"product,omitempty"`
	Rule      *RulePatch `json:"rule,omitempty"`
}

// MergeStrategy decides what happens when an incoming exception collides with
// an existing one during a merge.
type MergeStrategy string

const (
	// MergeError aborts the merge on the first collision. It is the default.
	MergeError MergeStrategy = "error"

	// MergeReplace overwrites the existing rule with the incoming one.
	MergeReplace MergeStrategy = "replace"

	// MergeSkip keeps the existing exception and drops the incoming one.
	MergeSkip MergeStrategy = "skip"
)

// MergeReport summarizes a merge.
type MergeReport struct {
	Added    int `json:"added"`
	Replaced int `json:"replaced"`
	Skipped  int `json:"skipped"`
}

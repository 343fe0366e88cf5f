package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidRule   = errors.New("invalid rule")
	ErrDuplicate     = errors.New("duplicate entry")
	ErrMergeConflict = errors.New("merge conflict")
)

// DuplicateExceptionError reports a second exception for the same
// (treatment, product) pair.
type DuplicateExceptionError struct {
	Key ExceptionKey
}

func (e *DuplicateExceptionError) Error() string {
	return fmt.Sprintf("exception already exists for %s", e.Key)
}

func (e *DuplicateExceptionError) Is(target error) bool {
	return target == ErrDuplicate
}

// DuplicateProductCostError reports a second cost entry for the same product.
type DuplicateProductCostError struct {
	Name string
}

func (e *DuplicateProductCostError) Error() string {
	return fmt.Sprintf("product cost already exists for %q", e.Name)
}

func (e *DuplicateProductCostError) Is(target error) bool {
	return target == ErrDuplicate
}

// NotFoundError reports an operation on an id that does not exist.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// MergeConflictError reports an incoming exception colliding with an existing
// one under the error merge strategy.
type MergeConflictError struct {
	Key ExceptionKey
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict on %s", e.Key)
}

func (e *MergeConflictError) Is(target error) bool {
	return target == ErrMergeConflict || target == ErrDuplicate
}

package service

import (
	"context"

	"github.com/opensource-finance/compenso/internal/domain"
)

// AddException creates an exception for the doctor.
func (s *Service) AddException(ctx context.Context, tenantID, doctorID string, in domain.ExceptionInput) (domain.Exception, []domain.Warning, error) {
	var created domain.Exception
	warnings, err := s.edit(ctx, tenantID, doctorID, "add-exception", false, func(sess *session) error {
		exc, err := sess.exceptions.Add(in)
		created = exc
		return err
	})
	return created, warnings, err
}

// UpdateException patches an existing exception.
func (s *Service) UpdateException(ctx context.Context, tenantID, doctorID string, id int, patch domain.ExceptionPatch) (domain.Exception, []domain.Warning, error) {
	var updated domain.Exception
	warnings, err := s.edit(ctx, tenantID, doctorID, "update-exception", false, func(sess *session) error {
		exc, err := sess.exceptions.Update(id, patch)
		updated = exc
		return err
	})
	return updated, warnings, err
}

// RemoveException deletes an exception by id.
func (s *Service) RemoveException(ctx context.Context, tenantID, doctorID string, id int) ([]domain.Warning, error) {
	return s.edit(ctx, tenantID, doctorID, "remove-exception", false, func(sess *session) error {
		return sess.exceptions.Remove(id)
	})
}

// MergeExceptions merges incoming exceptions into the doctor's list.
// Nothing is saved when the merge fails.
func (s *Service) MergeExceptions(ctx context.Context, tenantID, doctorID string, incoming []domain.Exception, strategy domain.MergeStrategy) (domain.MergeReport, []domain.Warning, error) {
	var report domain.MergeReport
	warnings, err := s.edit(ctx, tenantID, doctorID, "merge-exceptions", false, func(sess *session) error {
		r, err := sess.exceptions.Merge(incoming, strategy)
		report = r
		return err
	})
	return report, warnings, err
}

// ImportExceptions replaces the doctor's exceptions wholesale.
func (s *Service) ImportExceptions(ctx context.Context, tenantID, doctorID string, list []domain.Exception) ([]domain.Warning, error) {
	return s.edit(ctx, tenantID, doctorID, "import-exceptions", false, func(sess *session) error {
		return sess.exceptions.Import(list)
	})
}

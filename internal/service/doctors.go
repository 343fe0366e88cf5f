package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/opensource-finance/compenso/internal/rules"
)

// SetBaseRule replaces the doctor's base rule, creating the doctor when it
// does not exist yet. Invalid rules are rejected.
func (s *Service) SetBaseRule(ctx context.Context, tenantID, doctorID string, rule domain.Rule) ([]domain.Warning, error) {
	if err := rules.Validate(rule); err != nil {
		return nil, err
	}
	return s.edit(ctx, tenantID, doctorID, "set-base-rule", true, func(sess *session) error {
		sess.config.BaseRule = rule
		return nil
	})
}

// GetConfig returns the doctor's stored configuration.
func (s *Service) GetConfig(ctx context.Context, tenantID, doctorID string) (*domain.DoctorConfig, error) {
	return s.config(ctx, tenantID, doctorID)
}

// ListDoctors returns every configured doctor of the clinic.
func (s *Service) ListDoctors(ctx context.Context, tenantID string) ([]*domain.DoctorConfig, error) {
	return s.repo.ListDoctorConfigs(ctx, tenantID)
}

// DeleteDoctor removes the doctor together with its exceptions and costs.
func (s *Service) DeleteDoctor(ctx context.Context, tenantID, doctorID string) error {
	if err := checkIDs(tenantID, doctorID); err != nil {
		return err
	}

	unlock := s.lock(tenantID, doctorID)
	defer unlock()

	if err := s.repo.DeleteDoctorConfig(ctx, tenantID, doctorID); err != nil {
		return err
	}

	s.changed(ctx, tenantID, domain.ConfigChangedEvent{
		DoctorID:  doctorID,
		Operation: "delete-doctor",
		Deleted:   true,
	})

	slog.Info("doctor deleted", "tenant_id", tenantID, "doctor_id", doctorID)
	return nil
}

// Validate returns the coherence warnings of the doctor's current rule set.
func (s *Service) Validate(ctx context.Context, tenantID, doctorID string) ([]domain.Warning, error) {
	cfg, err := s.config(ctx, tenantID, doctorID)
	if err != nil {
		return nil, err
	}
	return rules.ValidateCoherence(cfg.BaseRule, cfg.Exceptions, cfg.ProductCosts), nil
}

// SetCatalogProduct adds or updates a product of the clinic's reference catalog.
func (s *Service) SetCatalogProduct(ctx context.Context, tenantID string, product domain.CatalogProduct) error {
	product.Name = strings.TrimSpace(product.Name)
	product.Unit = strings.TrimSpace(product.Unit)
	if product.Name == "" {
		return fmt.Errorf("%w: product name is required", domain.ErrInvalidInput)
	}
	return s.repo.SaveCatalogProduct(ctx, tenantID, product)
}

// ListCatalog returns the clinic's reference catalog.
func (s *Service) ListCatalog(ctx context.Context, tenantID string) ([]domain.CatalogProduct, error) {
	return s.repo.ListCatalog(ctx, tenantID)
}

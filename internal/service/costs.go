package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/compenso/internal/costs"
	"github.com/opensource-finance/compenso/internal/domain"
)

// AddProductCost creates a product cost for the doctor.
func (s *Service) AddProductCost(ctx context.Context, tenantID, doctorID string, in domain.ProductCostInput) (domain.ProductCost, []domain.Warning, error) {
	var created domain.ProductCost
	warnings, err := s.edit(ctx, tenantID, doctorID, "add-product-cost", false, func(sess *session) error {
		pc, err := sess.costs.Add(in)
		created = pc
		return err
	})
	return created, warnings, err
}

// UpdateProductCost patches an existing product cost.
func (s *Service) UpdateProductCost(ctx context.Context, tenantID, doctorID string, id int, patch domain.ProductCostPatch) (domain.ProductCost, []domain.Warning, error) {
	var updated domain.ProductCost
	warnings, err := s.edit(ctx, tenantID, doctorID, "update-product-cost", false, func(sess *session) error {
		pc, err := sess.costs.Update(id, patch)
		updated = pc
		return err
	})
	return updated, warnings, err
}

// RemoveProductCost deletes a product cost by id.
func (s *Service) RemoveProductCost(ctx context.Context, tenantID, doctorID string, id int) ([]domain.Warning, error) {
	return s.edit(ctx, tenantID, doctorID, "remove-product-cost", false, func(sess *session) error {
		return sess.costs.Remove(id)
	})
}

// RemoveProductCostByName deletes a product cost by product name.
func (s *Service) RemoveProductCostByName(ctx context.Context, tenantID, doctorID string, name string) ([]domain.Warning, error) {
	return s.edit(ctx, tenantID, doctorID, "remove-product-cost", false, func(sess *session) error {
		return sess.costs.RemoveByName(name)
	})
}

// PrepareCostImport classifies a cost sheet against the doctor's costs and
// the clinic catalog. Nothing is changed.
func (s *Service) PrepareCostImport(ctx context.Context, tenantID, doctorID string, rows []domain.CostRow) (domain.CostImportPreview, error) {
	ctx, span := tracer.Start(ctx, "service.prepare-cost-import", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("doctor.id", doctorID),
		attribute.Int("rows", len(rows)),
	))
	defer span.End()

	var (
		cfg     *domain.DoctorConfig
		catalog []domain.CatalogProduct
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cfg, err = s.config(gctx, tenantID, doctorID)
		return err
	})
	g.Go(func() error {
		var err error
		catalog, err = s.repo.ListCatalog(gctx, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return domain.CostImportPreview{}, err
	}

	preview := costs.New(cfg.ProductCosts).PrepareImport(rows, domain.NewCatalog(catalog))
	span.SetAttributes(
		attribute.Int("modifications", len(preview.Modifications)),
		attribute.Int("new_products", len(preview.NewProducts)),
		attribute.Int("invalid", len(preview.Invalid)),
	)
	return preview, nil
}

// ConfirmCostImport applies a previously prepared preview.
func (s *Service) ConfirmCostImport(ctx context.Context, tenantID, doctorID string, preview domain.CostImportPreview) (domain.CostImportSummary, []domain.Warning, error) {
	var summary domain.CostImportSummary
	warnings, err := s.edit(ctx, tenantID, doctorID, "confirm-cost-import", false, func(sess *session) error {
		sum, err := sess.costs.ConfirmImport(preview)
		summary = sum
		return err
	})
	return summary, warnings, err
}

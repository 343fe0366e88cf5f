package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/compenso/internal/compensation"
	"github.com/opensource-finance/compenso/internal/domain"
)

// Calculate computes one invoice line against the doctor's stored rule set
// and records the breakdown.
func (s *Service) Calculate(ctx context.Context, tenantID, doctorID string, line domain.InvoiceLine) (*domain.Calculation, error) {
	calcs, err := s.CalculateBatch(ctx, tenantID, doctorID, []domain.InvoiceLine{line})
	if err != nil {
		return nil, err
	}
	return calcs[0], nil
}

// CalculateBatch computes every line against the same configuration snapshot.
// Nothing is recorded unless every line succeeds.
func (s *Service) CalculateBatch(ctx context.Context, tenantID, doctorID string, lines []domain.InvoiceLine) ([]*domain.Calculation, error) {
	ctx, span := tracer.Start(ctx, "service.calculate", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("doctor.id", doctorID),
		attribute.Int("lines", len(lines)),
	))
	defer span.End()

	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", domain.ErrInvalidInput)
	}

	cfg, err := s.config(ctx, tenantID, doctorID)
	if err != nil {
		return nil, err
	}

	inputs := make([]domain.CalculationInput, len(lines))
	for i, line := range lines {
		inputs[i] = line.Input(cfg)
	}

	results, err := s.calc.CalculateBatch(inputs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := time.Now().UTC()
	calcs := make([]*domain.Calculation, len(results))
	for i, res := range results {
		calc := &domain.Calculation{
			ID:        uuid.New().String(),
			TenantID:  tenantID,
			DoctorID:  doctorID,
			Line:      lines[i],
			Result:    res,
			CreatedAt: now,
		}
		calcs[i] = calc
	}

	if err := s.repo.SaveCalculations(ctx, tenantID, calcs); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to save calculations: %w", err)
	}

	return calcs, nil
}

// AnalyzeScenarios runs what-if variations of a line against the doctor's
// rule set. Scenario results are not recorded.
func (s *Service) AnalyzeScenarios(ctx context.Context, tenantID, doctorID string, line domain.InvoiceLine, variations []compensation.Variation) ([]domain.ScenarioResult, error) {
	ctx, span := tracer.Start(ctx, "service.analyze-scenarios", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("doctor.id", doctorID),
		attribute.Int("variations", len(variations)),
	))
	defer span.End()

	cfg, err := s.config(ctx, tenantID, doctorID)
	if err != nil {
		return nil, err
	}

	return s.calc.AnalyzeScenarios(line.Input(cfg), variations)
}

// GetCalculation returns a recorded calculation.
func (s *Service) GetCalculation(ctx context.Context, tenantID, calcID string) (*domain.Calculation, error) {
	if calcID == "" {
		return nil, fmt.Errorf("%w: calculation id is required", domain.ErrInvalidInput)
	}
	return s.repo.GetCalculation(ctx, tenantID, calcID)
}

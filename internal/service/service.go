// Package service orchestrates edit sessions over stored doctor configurations
// and runs calculations against them.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/compenso/internal/bus"
	"github.com/opensource-finance/compenso/internal/cache"
	"github.com/opensource-finance/compenso/internal/compensation"
	"github.com/opensource-finance/compenso/internal/costs"
	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/opensource-finance/compenso/internal/exceptions"
	"github.com/opensource-finance/compenso/internal/rules"
)

var tracer = otel.Tracer("compenso-service")

// Service is the application layer shared by the HTTP API, the batch worker
// and the seeder. It is safe for concurrent use; edits to the same doctor are
// serialized in-process, and across processes the last write wins.
type Service struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	calc      *compensation.Calculator
	configTTL time.Duration

	locks sync.Map // tenant/doctor -> *sync.Mutex
}

// New creates a service. cache and bus may be nil.
func New(repo domain.Repository, c domain.Cache, b domain.EventBus, configTTL time.Duration) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}

	calc, err := compensation.NewCalculator()
	if err != nil {
		return nil, fmt.Errorf("failed to create calculator: %w", err)
	}

	if configTTL <= 0 {
		configTTL = 10 * time.Minute
	}

	return &Service{
		repo:      repo,
		cache:     c,
		bus:       b,
		calc:      calc,
		configTTL: configTTL,
	}, nil
}

// Calculator returns the stateless calculator used by the service.
func (s *Service) Calculator() *compensation.Calculator {
	return s.calc
}

// session is the mutable state of one edit.
type session struct {
	config     *domain.DoctorConfig
	exceptions *exceptions.Repository
	costs      *costs.Repository
}

// edit loads the doctor's snapshot, applies fn to fresh repositories, and
// persists the result. On success the cache entry is dropped, a change event
// is published and the refreshed coherence warnings are returned. When create
// is set, a missing doctor starts from an empty configuration.
func (s *Service) edit(ctx context.Context, tenantID, doctorID, op string, create bool, fn func(*session) error) ([]domain.Warning, error) {
	ctx, span := tracer.Start(ctx, "service."+op, trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("doctor.id", doctorID),
	))
	defer span.End()

	if err := checkIDs(tenantID, doctorID); err != nil {
		return nil, err
	}

	unlock := s.lock(tenantID, doctorID)
	defer unlock()

	cfg, err := s.repo.GetDoctorConfig(ctx, tenantID, doctorID)
	switch {
	case err == nil:
	case create && errors.Is(err, domain.ErrNotFound):
		cfg = &domain.DoctorConfig{DoctorID: doctorID, TenantID: tenantID}
	default:
		return nil, err
	}

	sess := &session{
		config:     cfg,
		exceptions: exceptions.New(cfg.Exceptions),
		costs:      costs.New(cfg.ProductCosts),
	}
	if err := fn(sess); err != nil {
		span.RecordError(err)
		return nil, err
	}

	cfg.Exceptions = sess.exceptions.Export()
	cfg.ProductCosts = sess.costs.Export()

	if cfg.BaseRule.Formula == nil {
		return nil, fmt.Errorf("%w: doctor %s has no base rule", domain.ErrInvalidInput, doctorID)
	}
	for _, exc := range cfg.Exceptions {
		if exc.Rule.Formula == nil {
			return nil, fmt.Errorf("%w: exception %d for %s has no rule", domain.ErrInvalidRule, exc.ID, exc.Key())
		}
	}

	if err := s.repo.SaveDoctorConfig(ctx, tenantID, cfg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return nil, fmt.Errorf("failed to save doctor config: %w", err)
	}

	warnings := rules.ValidateCoherence(cfg.BaseRule, cfg.Exceptions, cfg.ProductCosts)
	s.changed(ctx, tenantID, domain.ConfigChangedEvent{
		DoctorID:  doctorID,
		Operation: op,
		Warnings:  len(warnings),
	})

	span.SetAttributes(attribute.Int("warnings", len(warnings)))
	slog.Debug("doctor config saved",
		"tenant_id", tenantID,
		"doctor_id", doctorID,
		"operation", op,
		"warnings", len(warnings),
	)

	return warnings, nil
}

// config returns the doctor's configuration, reading through the cache.
// A miss is filled under the doctor lock so an edit cannot interleave between
// the repository read and the cache write.
func (s *Service) config(ctx context.Context, tenantID, doctorID string) (*domain.DoctorConfig, error) {
	if err := checkIDs(tenantID, doctorID); err != nil {
		return nil, err
	}

	if cfg := s.cached(ctx, tenantID, doctorID); cfg != nil {
		return cfg, nil
	}

	unlock := s.lock(tenantID, doctorID)
	defer unlock()

	if cfg := s.cached(ctx, tenantID, doctorID); cfg != nil {
		return cfg, nil
	}

	cfg, err := s.repo.GetDoctorConfig(ctx, tenantID, doctorID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetDoctorConfig(ctx, tenantID, cfg, s.configTTL); err != nil {
			slog.Warn("cache write failed", "tenant_id", tenantID, "doctor_id", doctorID, "error", err)
		}
	}

	return cfg, nil
}

func (s *Service) cached(ctx context.Context, tenantID, doctorID string) *domain.DoctorConfig {
	if s.cache == nil {
		return nil
	}
	cfg, err := s.cache.GetDoctorConfig(ctx, tenantID, doctorID)
	if err != nil {
		slog.Warn("cache read failed", "tenant_id", tenantID, "doctor_id", doctorID, "error", err)
		return nil
	}
	return cfg
}

// changed invalidates the cached snapshot and announces the change.
// Failures are logged; the edit itself is already durable.
func (s *Service) changed(ctx context.Context, tenantID string, event domain.ConfigChangedEvent) {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, tenantID, cache.ConfigKey(event.DoctorID)); err != nil {
			slog.Warn("cache invalidation failed",
				"tenant_id", tenantID,
				"doctor_id", event.DoctorID,
				"error", err,
			)
		}
	}

	if s.bus != nil {
		if err := bus.PublishJSON(ctx, s.bus, tenantID, domain.TopicConfigChanged, event); err != nil {
			slog.Warn("failed to publish config change",
				"tenant_id", tenantID,
				"doctor_id", event.DoctorID,
				"error", err,
			)
		}
	}
}

func (s *Service) lock(tenantID, doctorID string) func() {
	v, _ := s.locks.LoadOrStore(tenantID+"/"+doctorID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func checkIDs(tenantID, doctorID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(doctorID) == "" {
		return fmt.Errorf("%w: doctorID is required", domain.ErrInvalidInput)
	}
	return nil
}

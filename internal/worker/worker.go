// Package worker computes compensation for invoice batches arriving on the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/compenso/internal/bus"
	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/opensource-finance/compenso/internal/errtrack"
)

// Calculator is the part of the service the worker needs.
type Calculator interface {
	CalculateBatch(ctx context.Context, tenantID, doctorID string, lines []domain.InvoiceLine) ([]*domain.Calculation, error)
}

// Worker processes invoice batches asynchronously from the EventBus.
type Worker struct {
	bus  domain.EventBus
	calc Calculator

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of clinics to process; empty means every clinic.
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(b domain.EventBus, calc Calculator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    b,
		calc:   calc,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.subscribe(domain.AllTenants)
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicLinesReady, func(ctx context.Context, msg *domain.Message) error {
		return w.processBatch(ctx, msg.TenantID, msg)
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicLinesReady,
	)
	return nil
}

// processBatch computes a batch and publishes the outcome.
func (w *Worker) processBatch(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var batch domain.LinesReadyMessage
	if err := json.Unmarshal(msg.Payload, &batch); err != nil {
		slog.Error("failed to parse lines message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if batch.BatchID == "" {
		batch.BatchID = msg.ID
	}

	slog.Debug("processing batch",
		"batch_id", batch.BatchID,
		"tenant_id", tenantID,
		"doctor_id", batch.DoctorID,
		"lines", len(batch.Lines),
	)

	out := domain.BatchComputedMessage{
		BatchID:  batch.BatchID,
		DoctorID: batch.DoctorID,
	}

	calcs, err := w.calc.CalculateBatch(ctx, tenantID, batch.DoctorID, batch.Lines)
	if err != nil {
		out.Error = err.Error()
		slog.Error("batch calculation failed",
			"batch_id", batch.BatchID,
			"tenant_id", tenantID,
			"doctor_id", batch.DoctorID,
			"error", err,
		)
		errtrack.CaptureError(ctx, err, map[string]string{
			"tenant_id": tenantID,
			"doctor_id": batch.DoctorID,
			"batch_id":  batch.BatchID,
		})
		if perr := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicCompensationFailed, out); perr != nil {
			slog.Error("failed to publish batch failure",
				"batch_id", batch.BatchID,
				"error", perr,
			)
		}
		return err
	}

	for _, c := range calcs {
		out.CalculationIDs = append(out.CalculationIDs, c.ID)
		out.TotalGross += c.Result.GrossAmount
		out.TotalNetPayable += c.Result.NetCompensation
	}

	if err := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicCompensationComputed, out); err != nil {
		slog.Error("failed to publish batch result",
			"batch_id", batch.BatchID,
			"error", err,
		)
	}

	slog.Info("batch processed",
		"batch_id", batch.BatchID,
		"tenant_id", tenantID,
		"doctor_id", batch.DoctorID,
		"lines", len(calcs),
		"total_net_payable", out.TotalNetPayable,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

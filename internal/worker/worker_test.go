package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/compenso/internal/bus"
	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/opensource-finance/compenso/internal/repository"
	"github.com/opensource-finance/compenso/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenantID = "clinic-001"

func newService(t *testing.T) *service.Service {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker-test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	svc, err := service.New(repo, nil, nil, time.Minute)
	require.NoError(t, err)

	_, err = svc.SetBaseRule(context.Background(), tenantID, "doc-001", domain.Rule{
		Base:    domain.BaseNet,
		Formula: domain.Percentage{Value: 40},
	})
	require.NoError(t, err)
	return svc
}

func listen(t *testing.T, b domain.EventBus, topic string) <-chan domain.BatchComputedMessage {
	t.Helper()

	out := make(chan domain.BatchComputedMessage, 1)
	_, err := b.Subscribe(context.Background(), tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
		var m domain.BatchComputedMessage
		if err := json.Unmarshal(msg.Payload, &m); err != nil {
			return err
		}
		out <- m
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	svc := newService(t)

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, svc)
		require.NoError(t, w.Start(Config{TenantIDs: []string{tenantID}}))
		assert.Equal(t, 1, w.GetStats().SubscriptionCount)

		require.NoError(t, w.Stop())
		assert.Equal(t, 0, w.GetStats().SubscriptionCount)
	})

	t.Run("ProcessBatch", func(t *testing.T) {
		w := NewWorker(eventBus, svc)
		require.NoError(t, w.Start(Config{TenantIDs: []string{tenantID}}))
		defer w.Stop()

		computed := listen(t, eventBus, domain.TopicCompensationComputed)

		require.NoError(t, bus.PublishJSON(context.Background(), eventBus, tenantID, domain.TopicLinesReady, domain.LinesReadyMessage{
			BatchID:  "batch-001",
			DoctorID: "doc-001",
			Lines: []domain.InvoiceLine{
				{InvoiceAmount: 100, Treatment: "Consult"},
				{InvoiceAmount: 122, VATIncluded: true, Treatment: "Consult"},
			},
		}))

		select {
		case m := <-computed:
			assert.Equal(t, "batch-001", m.BatchID)
			assert.Len(t, m.CalculationIDs, 2)
			assert.InDelta(t, 222.0, m.TotalGross, 1e-9)
			assert.InDelta(t, 80.0, m.TotalNetPayable, 1e-9)
			assert.Empty(t, m.Error)

			calc, err := svc.GetCalculation(context.Background(), tenantID, m.CalculationIDs[0])
			require.NoError(t, err)
			assert.Equal(t, "doc-001", calc.DoctorID)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for computed batch")
		}
	})

	t.Run("AllClinics", func(t *testing.T) {
		w := NewWorker(eventBus, svc)
		require.NoError(t, w.Start(Config{}))
		defer w.Stop()

		computed := listen(t, eventBus, domain.TopicCompensationComputed)

		require.NoError(t, bus.PublishJSON(context.Background(), eventBus, tenantID, domain.TopicLinesReady, domain.LinesReadyMessage{
			BatchID:  "batch-003",
			DoctorID: "doc-001",
			Lines:    []domain.InvoiceLine{{InvoiceAmount: 50, Treatment: "Consult"}},
		}))

		select {
		case m := <-computed:
			assert.Equal(t, "batch-003", m.BatchID)
			assert.InDelta(t, 20.0, m.TotalNetPayable, 1e-9)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for computed batch")
		}
	})

	t.Run("UnknownDoctorFails", func(t *testing.T) {
		w := NewWorker(eventBus, svc)
		require.NoError(t, w.Start(Config{TenantIDs: []string{tenantID}}))
		defer w.Stop()

		failed := listen(t, eventBus, domain.TopicCompensationFailed)

		require.NoError(t, bus.PublishJSON(context.Background(), eventBus, tenantID, domain.TopicLinesReady, domain.LinesReadyMessage{
			BatchID:  "batch-002",
			DoctorID: "nobody",
			Lines:    []domain.InvoiceLine{{InvoiceAmount: 100, Treatment: "Consult"}},
		}))

		select {
		case m := <-failed:
			assert.Equal(t, "batch-002", m.BatchID)
			assert.Contains(t, m.Error, "not found")
			assert.Empty(t, m.CalculationIDs)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for failed batch")
		}
	})
}

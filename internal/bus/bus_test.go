package bus

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second
const tick = 5 * time.Millisecond

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "clinic-001"

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		received := make(chan *domain.Message, 1)

		_, err := bus.Subscribe(ctx, tenantID, domain.TopicConfigChanged, func(ctx context.Context, msg *domain.Message) error {
			received <- msg
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, tenantID, domain.TopicConfigChanged, []byte("hello")))

		select {
		case msg := <-received:
			assert.Equal(t, "hello", string(msg.Payload))
			assert.Equal(t, tenantID, msg.TenantID)
			assert.Equal(t, domain.TopicConfigChanged, msg.Topic)
			assert.NotEmpty(t, msg.ID)
		case <-time.After(waitFor):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("PublishJSON", func(t *testing.T) {
		received := make(chan domain.ConfigChangedEvent, 1)

		_, err := bus.Subscribe(ctx, tenantID, "json.topic", func(ctx context.Context, msg *domain.Message) error {
			var event domain.ConfigChangedEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				return err
			}
			received <- event
			return nil
		})
		require.NoError(t, err)

		sent := domain.ConfigChangedEvent{DoctorID: "doc-001", Operation: "add-exception", Warnings: 2}
		require.NoError(t, PublishJSON(ctx, bus, tenantID, "json.topic", sent))

		select {
		case event := <-received:
			assert.Equal(t, sent, event)
		case <-time.After(waitFor):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		var received1, received2 atomic.Int32

		_, _ = bus.Subscribe(ctx, "clinic-001", "isolation.topic", func(ctx context.Context, msg *domain.Message) error {
			received1.Add(1)
			return nil
		})
		_, _ = bus.Subscribe(ctx, "clinic-002", "isolation.topic", func(ctx context.Context, msg *domain.Message) error {
			received2.Add(1)
			return nil
		})

		require.NoError(t, bus.Publish(ctx, "clinic-001", "isolation.topic", []byte("msg1")))

		assert.Eventually(t, func() bool { return received1.Load() == 1 }, waitFor, tick)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(0), received2.Load())
	})

	t.Run("AllTenants", func(t *testing.T) {
		received := make(chan string, 2)
		_, err := bus.Subscribe(ctx, domain.AllTenants, "fanout.topic", func(ctx context.Context, msg *domain.Message) error {
			received <- msg.TenantID
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, "clinic-001", "fanout.topic", []byte("a")))
		require.NoError(t, bus.Publish(ctx, "clinic-002", "fanout.topic", []byte("b")))

		var tenants []string
		for range 2 {
			select {
			case id := <-received:
				tenants = append(tenants, id)
			case <-time.After(waitFor):
				t.Fatal("timeout waiting for message")
			}
		}
		assert.ElementsMatch(t, []string{"clinic-001", "clinic-002"}, tenants)

		assert.Error(t, bus.Publish(ctx, domain.AllTenants, "fanout.topic", []byte("c")))
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		assert.Error(t, bus.Publish(ctx, "", "topic", []byte("data")))

		_, err := bus.Subscribe(ctx, "", "topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		assert.Error(t, err)
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32

		sub, err := bus.Subscribe(ctx, tenantID, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		require.NoError(t, err)

		_ = bus.Publish(ctx, tenantID, "unsub.topic", []byte("msg1"))
		assert.Eventually(t, func() bool { return count.Load() == 1 }, waitFor, tick)

		require.NoError(t, sub.Unsubscribe())

		_ = bus.Publish(ctx, tenantID, "unsub.topic", []byte("msg2"))
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(1), count.Load())

		bus.mu.RLock()
		_, stillRegistered := bus.subscriptions[bus.makeKey(tenantID, "unsub.topic")]
		bus.mu.RUnlock()
		assert.False(t, stillRegistered)
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var count1, count2 atomic.Int32

		_, _ = bus.Subscribe(ctx, tenantID, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			count1.Add(1)
			return nil
		})
		_, _ = bus.Subscribe(ctx, tenantID, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			count2.Add(1)
			return nil
		})

		_ = bus.Publish(ctx, tenantID, "multi.topic", []byte("broadcast"))

		assert.Eventually(t, func() bool {
			return count1.Load() == 1 && count2.Load() == 1
		}, waitFor, tick)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, bus.Ping(ctx))
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, err := bus.Subscribe(ctx, tenantID, domain.TopicLinesReady, func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TopicLinesReady, sub.Topic())
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)
	ctx := context.Background()

	_, _ = bus.Subscribe(ctx, "clinic-001", "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.Error(t, bus.Publish(ctx, "clinic-001", "close.topic", []byte("data")))
	assert.Error(t, bus.Ping(ctx))
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		require.NoError(t, err)
		defer bus.Close()

		assert.IsType(t, &ChannelBus{}, bus)
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := New(domain.EventBusConfig{Type: "kafka"})
		assert.Error(t, err)
	})
}

func TestNATSSubject(t *testing.T) {
	assert.Equal(t, "compenso.clinic-1.lines.ready", subject("clinic-1", domain.TopicLinesReady))
	assert.Equal(t, "compenso.clinic-1.custom", subject("clinic-1", "custom"))
	assert.Equal(t, "compenso.*.lines.ready", subject(domain.AllTenants, domain.TopicLinesReady))
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()
	var received atomic.Int32
	const messageCount = 100

	_, err := bus.Subscribe(ctx, "clinic-load", "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < messageCount; i++ {
		require.NoError(t, bus.Publish(ctx, "clinic-load", "load.topic", []byte("msg")))
	}

	assert.Eventually(t, func() bool { return received.Load() == messageCount }, 5*time.Second, tick)
}

package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels or NATS.
// All methods require tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// AllTenants subscribes to a topic for every tenant. Handlers read the
// publishing tenant from Message.TenantID. It cannot be published to.
const AllTenants = "*"

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `yaml:"type" env:"COMPENSO_BUS" env-default:"channel"`

	// Channel settings
	ChannelBufferSize int `yaml:"channel_buffer_size" env:"COMPENSO_BUS_BUFFER" env-default:"1000"`

	// NATS settings
	NATSUrl           string `yaml:"nats_url" env:"COMPENSO_NATS_URL"`
	NATSToken         string `yaml:"nats_token" env:"COMPENSO_NATS_TOKEN"`
	NATSMaxReconnects int    `yaml:"nats_max_reconnects" env:"COMPENSO_NATS_MAX_RECONNECTS" env-default:"10"`
	NATSReconnectWait int    `yaml:"nats_reconnect_wait" env:"COMPENSO_NATS_RECONNECT_WAIT" env-default:"5"` // seconds
}

// Topic names.
const (
	// TopicConfigChanged carries a ConfigChangedEvent after every saved edit.
	TopicConfigChanged = "compenso.config.changed"

	// TopicLinesReady carries a LinesReadyMessage from the invoice import pipeline.
	TopicLinesReady = "compenso.lines.ready"

	// TopicCompensationComputed carries a BatchComputedMessage.
	TopicCompensationComputed = "compenso.compensation.computed"

	// TopicCompensationFailed carries a BatchComputedMessage with an error.
	TopicCompensationFailed = "compenso.compensation.failed"
)

// LinesReadyMessage is a batch of clean invoice lines for one doctor.
type LinesReadyMessage struct {
	BatchID  string        `json:"batchId"`
	DoctorID string        `json:"doctorId"`
	Lines    []InvoiceLine `json:"lines"`
}

// BatchComputedMessage reports the outcome of a LinesReadyMessage.
type BatchComputedMessage struct {
	BatchID         string   `json:"batchId"`
	DoctorID        string   `json:"doctorId"`
	CalculationIDs  []string `json:"calculationIds,omitempty"`
	TotalGross      float64  `json:"totalGross"`
	TotalNetPayable float64  `json:"totalNetPayable"`
	Error           string   `json:"error,omitempty"`
}

package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// Messages are scoped by merchant id.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, scope string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, scope string, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, scope string, topic string, payload []byte) ([]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Scope     string            `json:"scope"`
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
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Topic names published and consumed by the scoring pipeline.
const (
	TopicTransactionReceived = "kestrel.transaction.received"
	TopicRiskDecision        = "kestrel.risk.decision"
	TopicAlertCreated        = "kestrel.alert.created"
	TopicAlertReviewed       = "kestrel.alert.reviewed"
	TopicConfigUpdated       = "kestrel.config.updated"
)

// DecisionEvent is the payload of TopicRiskDecision.
type DecisionEvent struct {
	TransactionID  string    `json:"transactionId"`
	MerchantID     string    `json:"merchantId"`
	PayerID        string    `json:"payerId"`
	RiskScore      int       `json:"riskScore"`
	RiskLevel      RiskLevel `json:"riskLevel"`
	ShouldBlock    bool      `json:"shouldBlock"`
	RulesTriggered []string  `json:"rulesTriggered"`
	AlertID        string    `json:"alertId,omitempty"`
}

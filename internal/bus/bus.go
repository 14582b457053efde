package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	// ErrScopeRequired is returned when publishing or subscribing without a scope.
	ErrScopeRequired = errors.New("bus: scope is required")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bus: closed")
)

// ReplyToKey is the message metadata key naming the reply topic of a
// ChannelBus request.
const ReplyToKey = "reply_to"

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// PublishJSON encodes v and publishes it on topic.
func PublishJSON(ctx context.Context, b domain.EventBus, scope, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bus: encode %s: %w", topic, err)
	}
	return b.Publish(ctx, scope, topic, payload)
}

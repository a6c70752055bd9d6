package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/catchallhq/dental-crm/pkg/logging"
)

// Publisher delivers event payloads to a named channel. Delivery and display
// are the consumer's responsibility; publishers only owe a well-formed payload
// after a successful state change.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// RedisPublisher publishes JSON payloads over Redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
	logger *logging.Logger
}

// NewRedisPublisher creates a publisher on the given Redis client.
func NewRedisPublisher(client *redis.Client, logger *logging.Logger) *RedisPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisPublisher{client: client, logger: logger}
}

// Publish marshals the payload and publishes it. A nil client is a no-op so
// deployments without Redis lose only the live panel, not the request.
func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload any) error {
	if p == nil || p.client == nil {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s payload: %w", channel, err)
	}
	if err := p.client.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("events: publish %s: %w", channel, err)
	}
	p.logger.Debug("event published", "channel", channel)
	return nil
}

// NopPublisher discards every event. Used in tests and when Redis is absent.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

package cti

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/catchallhq/dental-crm/internal/events"
	"github.com/catchallhq/dental-crm/pkg/logging"
)

func allTopics() []string {
	return []string{
		events.ChannelPatientStatusChanged,
		events.ChannelCTICallIncoming,
		events.ChannelCTICallEnded,
		events.ChannelRecallDispatchSent,
		events.ChannelAnalysisCompleted,
	}
}

// Bridge subscribes to the Redis event channels and re-broadcasts each
// message to the WebSocket hub. Running it next to every API instance means
// a dashboard sees events no matter which instance produced them.
type Bridge struct {
	client *redis.Client
	hub    *Hub
	logger *logging.Logger
}

// NewBridge creates a bridge between Redis pub/sub and the hub.
func NewBridge(client *redis.Client, hub *Hub, logger *logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.Default()
	}
	return &Bridge{client: client, hub: hub, logger: logger}
}

// Run consumes the event channels until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, allTopics()...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.logger.Info("cti bridge subscribed", "channels", len(allTopics()))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.dispatch(msg)
		}
	}
}

func (b *Bridge) dispatch(msg *redis.Message) {
	if !json.Valid([]byte(msg.Payload)) {
		b.logger.Warn("dropping non-JSON event payload", "channel", msg.Channel)
		return
	}
	b.hub.Broadcast(msg.Channel, Event{
		Type:      msg.Channel,
		Topic:     msg.Channel,
		Timestamp: time.Now().UTC(),
		Data:      json.RawMessage(msg.Payload),
	})
}

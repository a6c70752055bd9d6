package cti

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catchallhq/dental-crm/internal/events"
)

func TestBridgeRelaysPublishedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hub := NewHub(nil)
	dashboard := newHubClient(events.ChannelCTICallIncoming)
	hub.Register(dashboard)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bridge := NewBridge(client, hub, nil)
	go func() { _ = bridge.Run(ctx) }()

	// Give the subscription a moment to attach before publishing.
	require.Eventually(t, func() bool {
		return publishIncoming(client, `{"event_id":"evt-1","phone":"010-1234-5678"}`) > 0
	}, 2*time.Second, 10*time.Millisecond)

	ev := receiveEvent(t, dashboard)
	assert.Equal(t, events.ChannelCTICallIncoming, ev.Topic)

	var payload events.CTICallIncomingV1
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "010-1234-5678", payload.Phone)
}

func TestBridgeDropsMalformedPayloads(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hub := NewHub(nil)
	dashboard := newHubClient(events.ChannelCTICallIncoming)
	hub.Register(dashboard)

	bridge := NewBridge(client, hub, nil)
	bridge.dispatch(&redis.Message{
		Channel: events.ChannelCTICallIncoming,
		Payload: "not json",
	})

	assert.Empty(t, dashboard.Send)
}

func publishIncoming(client *redis.Client, payload string) int64 {
	n, err := client.Publish(context.Background(), events.ChannelCTICallIncoming, payload).Result()
	if err != nil {
		return 0
	}
	return n
}

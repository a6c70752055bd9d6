package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisherPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sub := client.Subscribe(context.Background(), ChannelPatientStatusChanged)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	pub := NewRedisPublisher(client, nil)
	payload := PatientStatusChangedV1{
		EventID:    "evt-1",
		PatientID:  "p-1",
		Name:       "김영희",
		FromStatus: "consulting",
		ToStatus:   "reserved",
		ChangedAt:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(context.Background(), ChannelPatientStatusChanged, payload))

	msg, err := sub.ReceiveMessage(context.Background())
	require.NoError(t, err)

	var got PatientStatusChangedV1
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, payload.EventID, got.EventID)
	assert.Equal(t, "reserved", got.ToStatus)
	assert.Equal(t, "김영희", got.Name)
}

func TestRedisPublisherNilClientIsNoop(t *testing.T) {
	pub := NewRedisPublisher(nil, nil)
	assert.NoError(t, pub.Publish(context.Background(), ChannelCTICallIncoming, CTICallIncomingV1{}))
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), "any", struct{}{}))
}

package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishJSON(t *testing.T) {
	bus := NewEventBus()

	var received []string
	bus.Subscribe(EventTaskCreated, func(event *Event) error {
		received = append(received, string(event.Payload))
		assert.False(t, event.CreatedAt.IsZero())
		return nil
	})

	require.NoError(t, bus.PublishJSON(EventTaskCreated, map[string]string{"id": "t1"}))
	require.Len(t, received, 1)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(received[0]), &payload))
	assert.Equal(t, "t1", payload["id"])
}

func TestEventBus_UnrelatedTypeNotDelivered(t *testing.T) {
	bus := NewEventBus()

	var calls int
	bus.Subscribe(EventTaskDeleted, func(event *Event) error {
		calls++
		return nil
	})

	require.NoError(t, bus.PublishJSON(EventTaskCreated, nil))
	assert.Zero(t, calls)
}

func TestEventBus_NilBusIsSafe(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventSyncCompleted, nil))
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewEventBus()

	var first, second bool
	bus.Subscribe(EventSyncCompleted, func(event *Event) error {
		first = true
		return nil
	})
	bus.Subscribe(EventSyncCompleted, func(event *Event) error {
		second = true
		return nil
	})

	require.NoError(t, bus.PublishJSON(EventSyncCompleted, struct{}{}))
	assert.True(t, first)
	assert.True(t, second)
}

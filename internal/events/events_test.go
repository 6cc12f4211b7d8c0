package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishJSON(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	bus.Subscribe(EventBookingCreated, func(e *Event) error {
		received = e
		return nil
	})

	payload := BookingEventPayload{
		BookingID: 7,
		ExpKey:    "exp1",
		Username:  "alice",
		Status:    "active",
		StartTime: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC),
	}
	require.NoError(t, bus.PublishJSON(EventBookingCreated, payload))

	require.NotNil(t, received)
	assert.NotEmpty(t, received.ID)
	assert.False(t, received.CreatedAt.IsZero())

	var got BookingEventPayload
	require.NoError(t, json.Unmarshal(received.Payload, &got))
	assert.Equal(t, int64(7), got.BookingID)
	assert.Equal(t, "alice", got.Username)
}

func TestEventBus_OnlyMatchingTypeDelivered(t *testing.T) {
	bus := NewEventBus()

	calls := 0
	bus.Subscribe(EventBookingCancelled, func(e *Event) error {
		calls++
		return nil
	})

	require.NoError(t, bus.PublishJSON(EventBookingCreated, BookingEventPayload{BookingID: 1}))
	assert.Zero(t, calls)

	require.NoError(t, bus.PublishJSON(EventBookingCancelled, BookingEventPayload{BookingID: 1}))
	assert.Equal(t, 1, calls)
}

func TestEventBus_NilBusIsNoop(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventBookingCreated, BookingEventPayload{}))
}

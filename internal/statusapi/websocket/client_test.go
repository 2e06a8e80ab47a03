package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/task-queue-go/internal/events"
)

func TestHandleMessage_SubscribeNarrowsToRequestedTypes(t *testing.T) {
	c := &Client{subscriptions: make(map[events.EventType]bool)}

	c.handleMessage([]byte(`{"action":"subscribe","event_types":["task.completed","alert.raised"]}`))

	assert.True(t, c.IsSubscribed(events.EventTaskCompleted))
	assert.True(t, c.IsSubscribed(events.EventAlertRaised))
	assert.False(t, c.IsSubscribed(events.EventTaskStarted))
}

func TestHandleMessage_Unsubscribe_RemovesType(t *testing.T) {
	c := &Client{subscriptions: make(map[events.EventType]bool)}
	c.SubscribeAll()
	require.True(t, c.IsSubscribed(events.EventTaskCompleted))

	c.handleMessage([]byte(`{"action":"unsubscribe","event_types":["task.completed"]}`))

	assert.False(t, c.IsSubscribed(events.EventTaskCompleted))
	assert.True(t, c.IsSubscribed(events.EventTaskStarted))
}

func TestHandleMessage_MalformedJSON_IsIgnored(t *testing.T) {
	c := &Client{subscriptions: make(map[events.EventType]bool)}
	c.SubscribeAll()

	c.handleMessage([]byte(`not json`))

	assert.True(t, c.IsSubscribed(events.EventTaskCompleted), "malformed message must not disturb existing subscriptions")
}

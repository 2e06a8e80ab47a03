package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maumercado/task-queue-go/internal/events"
)

func TestClientMessage_MatchesServerWireShape(t *testing.T) {
	msg := clientMessage{Action: "subscribe", EventTypes: eventTypeStrings([]events.EventType{events.EventTaskCompleted})}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "subscribe", decoded["action"])
	require.Equal(t, []interface{}{string(events.EventTaskCompleted)}, decoded["event_types"])
}

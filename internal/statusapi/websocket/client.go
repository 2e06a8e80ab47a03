package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/maumercado/task-queue-go/internal/events"
	"github.com/maumercado/task-queue-go/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 256
)

// Client represents one connected websocket reader of the event stream.
type Client struct {
	ID            string
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[events.EventType]bool
	subMu         sync.RWMutex
}

// NewClient wraps an upgraded connection as a hub client.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:            uuid.New().String()[:8],
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		subscriptions: make(map[events.EventType]bool),
	}
}

// Subscribe narrows the client to a single event type.
func (c *Client) Subscribe(eventType events.EventType) {
	c.subMu.Lock()
	c.subscriptions[eventType] = true
	c.subMu.Unlock()
}

// Unsubscribe drops a previously narrowed event type.
func (c *Client) Unsubscribe(eventType events.EventType) {
	c.subMu.Lock()
	delete(c.subscriptions, eventType)
	c.subMu.Unlock()
}

// SubscribeAll resets the client to the default: every known event type.
func (c *Client) SubscribeAll() {
	c.subMu.Lock()
	c.subscriptions[events.EventTaskSubmitted] = true
	c.subscriptions[events.EventTaskStarted] = true
	c.subscriptions[events.EventTaskCompleted] = true
	c.subscriptions[events.EventTaskFailed] = true
	c.subscriptions[events.EventTaskRetrying] = true
	c.subscriptions[events.EventWorkerJoined] = true
	c.subscriptions[events.EventWorkerLeft] = true
	c.subscriptions[events.EventWorkerPaused] = true
	c.subscriptions[events.EventWorkerResumed] = true
	c.subscriptions[events.EventQueueDepth] = true
	c.subscriptions[events.EventSystemMetrics] = true
	c.subscriptions[events.EventAlertRaised] = true
	c.subMu.Unlock()
}

// IsSubscribed reports whether the client wants this event type. An empty
// subscription set means "everything".
func (c *Client) IsSubscribed(eventType events.EventType) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if len(c.subscriptions) == 0 {
		return true
	}

	return c.subscriptions[eventType]
}

// ReadPump drains the connection, keeping the read deadline alive via pongs,
// until the client disconnects.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error().Err(err).Str("client_id", c.ID).Msg("status websocket read error")
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump delivers queued events to the connection and pings to keep it
// alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ClientMessage is a subscription command a reader may send over the
// connection.
type ClientMessage struct {
	Action     string   `json:"action"`
	EventTypes []string `json:"event_types,omitempty"`
}

func (c *Client) handleMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Debug().Err(err).Str("client_id", c.ID).Msg("ignoring malformed status client message")
		return
	}

	switch msg.Action {
	case "subscribe":
		for _, et := range msg.EventTypes {
			c.Subscribe(events.EventType(et))
		}
	case "unsubscribe":
		for _, et := range msg.EventTypes {
			c.Unsubscribe(events.EventType(et))
		}
	case "subscribe_all":
		c.SubscribeAll()
	default:
		logger.Debug().Str("client_id", c.ID).Str("action", msg.Action).Msg("unknown status client message action")
	}
}

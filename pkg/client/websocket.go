package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maumercado/task-queue-go/internal/events"
)

// WebSocketClient streams THE CORE's live task/worker/alert events over the
// status API's /events endpoint.
type WebSocketClient struct {
	conn      *websocket.Conn
	baseURL   string
	events    chan *events.Event
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	connected bool
	apiKey    string
}

func newWebSocketClient(baseURL, apiKey string) *WebSocketClient {
	return &WebSocketClient{
		baseURL: baseURL,
		events:  make(chan *events.Event, 100),
		done:    make(chan struct{}),
		apiKey:  apiKey,
	}
}

// Connect dials the status API's websocket endpoint.
func (ws *WebSocketClient) Connect(ctx context.Context) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.connected {
		return nil
	}

	u, err := url.Parse(ws.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/events"

	headers := make(map[string][]string)
	if ws.apiKey != "" {
		headers["Authorization"] = []string{"Bearer " + ws.apiKey}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	ws.conn = conn
	ws.connected = true
	ws.done = make(chan struct{})

	go ws.readLoop()

	return nil
}

func (ws *WebSocketClient) readLoop() {
	defer func() {
		ws.mu.Lock()
		ws.connected = false
		ws.mu.Unlock()
		close(ws.events)
	}()

	for {
		select {
		case <-ws.done:
			return
		default:
			_, message, err := ws.conn.ReadMessage()
			if err != nil {
				return
			}

			var event events.Event
			if err := json.Unmarshal(message, &event); err != nil {
				continue
			}

			select {
			case ws.events <- &event:
			case <-ws.done:
				return
			default:
				select {
				case <-ws.events:
				default:
				}
				ws.events <- &event
			}
		}
	}
}

// Events returns a channel of events received from the server.
func (ws *WebSocketClient) Events() <-chan *events.Event {
	return ws.events
}

// Close disconnects the websocket.
func (ws *WebSocketClient) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		close(ws.done)
		ws.mu.Lock()
		defer ws.mu.Unlock()
		if ws.conn != nil {
			err = ws.conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			_ = ws.conn.Close()
		}
	})
	return err
}

// IsConnected reports whether the websocket is currently connected.
func (ws *WebSocketClient) IsConnected() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.connected
}

// clientMessage mirrors the status websocket handler's ClientMessage wire
// shape, so Subscribe/Unsubscribe's "event_types" field actually matches
// what the server-side handleMessage unmarshals into.
type clientMessage struct {
	Action     string   `json:"action"`
	EventTypes []string `json:"event_types,omitempty"`
}

// Subscribe narrows this connection to the given event types on the server.
func (ws *WebSocketClient) Subscribe(eventTypes ...events.EventType) error {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	if !ws.connected || ws.conn == nil {
		return fmt.Errorf("not connected")
	}

	return ws.conn.WriteJSON(clientMessage{Action: "subscribe", EventTypes: eventTypeStrings(eventTypes)})
}

// Unsubscribe requests the server stop sending a set of event types.
func (ws *WebSocketClient) Unsubscribe(eventTypes ...events.EventType) error {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	if !ws.connected || ws.conn == nil {
		return fmt.Errorf("not connected")
	}

	return ws.conn.WriteJSON(clientMessage{Action: "unsubscribe", EventTypes: eventTypeStrings(eventTypes)})
}

func eventTypeStrings(eventTypes []events.EventType) []string {
	out := make([]string, len(eventTypes))
	for i, et := range eventTypes {
		out[i] = string(et)
	}
	return out
}

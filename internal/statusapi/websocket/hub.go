// Package websocket fans events.Event values out to connected browser/CLI
// clients over a websocket connection. Adapted from the teacher's
// internal/api/websocket package: the hub itself is unchanged, generalized
// from a Redis-only publisher.SubscribeAll to the events.Publisher
// interface's Subscribe(ctx) with no event-type filter, which both
// implementations already treat as "send me everything".
package websocket

import (
	"context"
	"sync"

	"github.com/maumercado/task-queue-go/internal/events"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/metrics"
)

// Hub manages websocket clients and broadcasts events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *events.Event
	register   chan *Client
	unregister chan *Client
	publisher  events.Publisher
	mu         sync.RWMutex
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewHub creates a new websocket hub fed by publisher.
func NewHub(publisher events.Publisher) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *events.Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publisher:  publisher,
		stopCh:     make(chan struct{}),
	}
}

// Run subscribes to every event and starts the hub's dispatch loop. It
// blocks until ctx is canceled or Stop is called.
func (h *Hub) Run(ctx context.Context) {
	eventCh, err := h.publisher.Subscribe(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to subscribe to events")
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case event, ok := <-eventCh:
				if !ok {
					return
				}
				h.broadcast <- event
			}
		}
	}()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ctx.Done():
				h.closeAllClients()
				return
			case <-h.stopCh:
				h.closeAllClients()
				return
			case client := <-h.register:
				h.mu.Lock()
				h.clients[client] = true
				h.mu.Unlock()
				metrics.SetWebSocketConnections(float64(h.ClientCount()))
				logger.Debug().Str("client_id", client.ID).Msg("status client registered")

			case client := <-h.unregister:
				h.mu.Lock()
				if _, ok := h.clients[client]; ok {
					delete(h.clients, client)
					close(client.send)
				}
				h.mu.Unlock()
				metrics.SetWebSocketConnections(float64(h.ClientCount()))
				logger.Debug().Str("client_id", client.ID).Msg("status client unregistered")

			case event := <-h.broadcast:
				h.broadcastEvent(event)
			}
		}
	}()

	logger.Info().Msg("status websocket hub started")
}

// Stop shuts down the hub's goroutines and disconnects every client.
func (h *Hub) Stop() {
	close(h.stopCh)
	h.wg.Wait()
	logger.Info().Msg("status websocket hub stopped")
}

// Register registers a client with the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcastEvent(event *events.Event) {
	data, err := event.ToJSON()
	if err != nil {
		logger.Error().Err(err).Msg("failed to serialize event for broadcast")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.IsSubscribed(event.Type) {
			continue
		}

		select {
		case client.send <- data:
			metrics.RecordWebSocketMessage(string(event.Type))
		default:
			go func(c *Client) {
				h.unregister <- c
			}(client)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

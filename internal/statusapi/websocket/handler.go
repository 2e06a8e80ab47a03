package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/maumercado/task-queue-go/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades /events requests to websocket connections.
type Handler struct {
	hub *Hub
}

// NewHandler builds a websocket upgrade handler for hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeWS upgrades the request, subscribes the new client to every event
// type, and starts its read/write pumps.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to upgrade status websocket connection")
		return
	}

	client := NewClient(h.hub, conn)
	client.SubscribeAll()

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	logger.Info().
		Str("client_id", client.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("status websocket client connected")
}

// Package websocket streams phase lifecycle events to browsers.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"deltadebate/internal/debate"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	// Origins are enforced by the CORS layer in front of the router.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// PhaseClient is one connected subscriber. A non-empty key limits delivery
// to events about that debate.
type PhaseClient struct {
	Conn    *websocket.Conn
	Key     string
	writeMu sync.Mutex
}

// SafeWriteJSON serializes writes on the client's connection.
func (pc *PhaseClient) SafeWriteJSON(v any) error {
	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()
	_ = pc.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return pc.Conn.WriteJSON(v)
}

// PhaseHub broadcasts phase events to every connected client.
type PhaseHub struct {
	mu      sync.RWMutex
	clients map[*PhaseClient]bool
	logger  zerolog.Logger
}

func NewPhaseHub(logger zerolog.Logger) *PhaseHub {
	return &PhaseHub{
		clients: make(map[*PhaseClient]bool),
		logger:  logger.With().Str("component", "phase_hub").Logger(),
	}
}

// Register adds a client.
func (h *PhaseHub) Register(client *PhaseClient) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug().Int("clients", n).Msg("phase client registered")
}

// Unregister removes a client and closes its connection.
func (h *PhaseHub) Unregister(client *PhaseClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	client.Conn.Close()
	h.logger.Debug().Int("clients", n).Msg("phase client unregistered")
}

// ClientCount returns the number of connected clients.
func (h *PhaseHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastPhaseEvent writes event to every interested client. Clients whose
// write fails are dropped.
func (h *PhaseHub) BroadcastPhaseEvent(event debate.PhaseEvent) {
	h.mu.RLock()
	targets := make([]*PhaseClient, 0, len(h.clients))
	for client := range h.clients {
		if client.Key == "" || client.Key == event.Key {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if err := client.SafeWriteJSON(event); err != nil {
			h.logger.Warn().Err(err).Str("event", string(event.Type)).Msg("dropping phase client")
			h.Unregister(client)
		}
	}
}

// Publish lets the hub serve as the scheduler's publisher when events are
// not routed through Redis.
func (h *PhaseHub) Publish(_ context.Context, event debate.PhaseEvent) error {
	h.BroadcastPhaseEvent(event)
	return nil
}

// Handler upgrades GET /ws/phases. The optional key query parameter filters
// events to one debate.
func (h *PhaseHub) Handler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &PhaseClient{Conn: conn, Key: c.Query("key")}
	h.Register(client)
	defer h.Unregister(client)

	// Clients never send anything meaningful; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

var (
	_ debate.Publisher = (*PhaseHub)(nil)
	_ debate.PhaseHub  = (*PhaseHub)(nil)
)

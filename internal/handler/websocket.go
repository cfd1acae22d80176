package handler

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/CageChen/imagediff/internal/compare"
	"github.com/CageChen/imagediff/internal/logging"
	"github.com/CageChen/imagediff/internal/watcher"
)

// The zero CheckOrigin rejects cross-origin handshakes, so only the served UI
// can subscribe.
var upgrader = websocket.Upgrader{}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WSHandler pushes new comparisons and file changes to connected browsers
type WSHandler struct {
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
	writeMu sync.Mutex // gorilla connections allow one concurrent writer
	logger  *slog.Logger
}

// NewWSHandler creates a new WebSocket handler
func NewWSHandler(logger *slog.Logger) *WSHandler {
	return &WSHandler{
		clients: make(map[*websocket.Conn]bool),
		logger:  logging.OrNop(logger),
	}
}

// HandleWS handles WebSocket upgrade and connection
func (h *WSHandler) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer func() {
		h.removeClient(conn)
		_ = conn.Close()
	}()

	h.addClient(conn)

	// Drain until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// OnComparison is registered with the controller and called for every new snapshot
func (h *WSHandler) OnComparison(r *compare.Result) {
	h.broadcast(WSMessage{
		Type:    "comparison",
		Payload: newEntriesResponse(r, -1),
	})
}

// OnFileChange is called with a batch of watcher events
func (h *WSHandler) OnFileChange(events []watcher.Event) {
	changes := make([]map[string]string, 0, len(events))
	for _, e := range events {
		changes = append(changes, map[string]string{
			"event": e.Type.String(),
			"path":  e.Path,
		})
	}

	h.broadcast(WSMessage{
		Type:    "fileChange",
		Payload: changes,
	})
}

// Clients returns the number of connected clients.
func (h *WSHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WSHandler) addClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *WSHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

func (h *WSHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("cannot encode websocket message", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			h.removeClient(client)
		}
	}
}

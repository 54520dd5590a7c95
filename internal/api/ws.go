package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pagerduty-analytics/internal/logging"
)

// Hub fans sync progress lines out to every connected websocket client.
type Hub struct {
	upgrader websocket.Upgrader
	conns    map[*websocket.Conn]bool
	mutex    sync.Mutex
	logger   *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:  make(map[*websocket.Conn]bool),
		logger: logger,
	}
}

// Serve upgrades the request and keeps the connection registered until the
// client goes away.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Failed to upgrade websocket connection: %v", err)
		return
	}

	h.mutex.Lock()
	h.conns[conn] = true
	total := len(h.conns)
	h.mutex.Unlock()
	h.logger.Infof("Websocket client connected (total: %d)", total)

	// Drain reads until the peer closes so we notice disconnects.
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mutex.Lock()
	delete(h.conns, conn)
	remaining := len(h.conns)
	h.mutex.Unlock()
	conn.Close()
	h.logger.Infof("Websocket client disconnected (remaining: %d)", remaining)
}

// Broadcast sends one text message to every client, dropping connections
// whose writes fail.
func (h *Hub) Broadcast(message string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
			h.logger.Errorf("Failed to send websocket message: %v", err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

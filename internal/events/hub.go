// Package events streams withdrawal action-log entries to websocket
// subscribers so owner dashboards see approvals and executions live.
package events

import (
	"net/http"
	"sync"

	"github.com/agentvault/vaultgate/internal/model"
	"github.com/agentvault/vaultgate/internal/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan model.ActionLogEntry
}

// Hub fans action-log entries out to connected subscribers. Slow clients
// are disconnected rather than allowed to back up the broadcast.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Broadcast queues an entry for every connected client. Safe to call
// from inside the workflow's action hook.
func (h *Hub) Broadcast(entry model.ActionLogEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- entry:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Serve upgrades the request and streams entries until the client goes
// away.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	cl := &client{conn: conn, send: make(chan model.ActionLogEntry, 64)}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(cl)
	h.readLoop(cl)
}

func (h *Hub) writeLoop(cl *client) {
	for entry := range cl.send {
		if err := cl.conn.WriteJSON(entry); err != nil {
			break
		}
	}
	cl.conn.Close()
}

// readLoop drains incoming frames so pings are processed; any read error
// means the client is gone.
func (h *Hub) readLoop(cl *client) {
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			break
		}
	}
	h.mu.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
	h.mu.Unlock()
	cl.conn.Close()
}

// ClientCount reports the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

package devserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// wsClient serializes writes to one websocket connection; gorilla permits
// a single concurrent writer.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub routes pushed events to every socket joined to a user's room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*wsClient]bool
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*wsClient]bool)}
}

func (h *Hub) Join(userID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[userID] == nil {
		h.rooms[userID] = make(map[*wsClient]bool)
	}
	h.rooms[userID][c] = true
}

func (h *Hub) Leave(userID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.rooms[userID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.rooms, userID)
		}
	}
}

// Drop removes a client from every room it joined.
func (h *Hub) Drop(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, m := range h.rooms {
		delete(m, c)
		if len(m) == 0 {
			delete(h.rooms, userID)
		}
	}
}

// Broadcast pushes an event frame to every client in a room.
func (h *Hub) Broadcast(userID, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	payload, err := json.Marshal(map[string]json.RawMessage{
		"event": json.RawMessage(`"` + event + `"`),
		"data":  raw,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.rooms[userID]))
	for c := range h.rooms[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(payload); err != nil {
			_ = c.conn.Close()
		}
	}
}

package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
)

// client - 연결된 websocket 클라이언트
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans session events out to every connected websocket client and feeds
// client messages back to the session.
type Hub struct {
	sessionID string
	log       *zap.Logger
	onMessage func(ClientMessage)

	mu      sync.Mutex
	clients map[string]*client
}

func newHub(sessionID string, log *zap.Logger, onMessage func(ClientMessage)) *Hub {
	return &Hub{
		sessionID: sessionID,
		log:       log,
		onMessage: onMessage,
		clients:   make(map[string]*client),
	}
}

// Attach registers conn and starts its read and write pumps.
func (h *Hub) Attach(conn *websocket.Conn) string {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("Client joined session", zap.String("client_id", c.id), zap.Int("clients", count))

	go h.writePump(c)
	go h.readPump(c)
	return c.id
}

// Len - 연결된 클라이언트 수
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends e to every client. Clients whose buffer is full are dropped.
func (h *Hub) Broadcast(e Event) {
	e.SessionID = h.sessionID
	payload, err := json.Marshal(e)
	if err != nil {
		h.log.Error("Error marshaling event", zap.String("type", e.Type), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			close(c.send)
			delete(h.clients, id)
			h.log.Warn("Dropped slow client", zap.String("client_id", id))
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		close(c.send)
		delete(h.clients, id)
		h.log.Info("Client left session", zap.String("client_id", id), zap.Int("remaining", len(h.clients)))
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c.id)
		c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("WebSocket error", zap.Error(err))
			}
			return
		}
		if msg.Type == MessagePing {
			continue
		}
		if h.onMessage != nil {
			h.onMessage(msg)
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.log.Warn("WebSocket write error", zap.Error(err))
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

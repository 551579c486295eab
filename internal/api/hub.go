// Websocket hub broadcasting committed encounter records to observers.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/ironhold/internal/game"
)

const (
	feedWriteWait  = 10 * time.Second
	feedSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// feedClient is one connected observer.
type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans committed encounter records out to websocket observers.
// Implements mission.Publisher.
type Hub struct {
	clients    map[*feedClient]bool
	broadcast  chan []byte
	register   chan *feedClient
	unregister chan *feedClient
}

// NewHub creates an encounter feed hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*feedClient]bool),
		broadcast:  make(chan []byte, feedSendBuffer),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
	}
}

// Run processes registrations and broadcasts. Blocks; run it in a
// goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer; drop it.
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// PublishEncounter queues one record for broadcast. Best-effort: a
// full broadcast queue drops the record rather than blocking the
// committing mission.
func (h *Hub) PublishEncounter(e game.EncounterRecord) {
	msg, err := json.Marshal(map[string]any{"type": "encounter", "payload": e})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		slog.Debug("encounter feed backlogged, dropping record", "id", e.ID)
	}
}

// serveFeed upgrades the request and attaches the client to the hub.
func (h *Hub) serveFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("feed upgrade failed", "error", err)
		return
	}
	c := &feedClient{conn: conn, send: make(chan []byte, feedSendBuffer)}
	h.register <- c

	go c.writePump()
	go c.readPump(h)
}

func (c *feedClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump drains (and ignores) client messages so pings and closes
// are processed.
func (c *feedClient) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

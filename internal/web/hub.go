package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blockedby/chansearch/internal/events"
	"github.com/blockedby/chansearch/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the admin surface is same-origin or behind CORS already
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub keeps the set of connected websocket clients and fans broadcasts
// out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	log        *logger.Logger
}

// Client is one websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        logger.Get().Component("ws"),
	}
}

// Run owns the client set. It never returns.
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
					// slow consumer
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Broadcast encodes message as JSON and queues it for every client.
// A full queue drops the message.
func (h *Hub) Broadcast(message interface{}) {
	b, err := json.Marshal(message)
	if err != nil {
		h.log.Error().Err(err).Msg("encode broadcast")
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.log.Warn().Msg("broadcast queue full, dropping message")
	}
}

// PublishChannelDiscovered implements events.Publisher.
func (h *Hub) PublishChannelDiscovered(_ context.Context, ev events.ChannelDiscovered) error {
	h.Broadcast(NewEvent(EventChannelDiscovered, ev))
	return nil
}

// PublishMessageCollected implements events.Publisher.
func (h *Hub) PublishMessageCollected(_ context.Context, ev events.MessageCollected) error {
	h.Broadcast(NewEvent(EventMessageCollected, ev))
	return nil
}

// ServeWs upgrades the request and attaches the connection to hub.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &Client{hub: hub, conn: conn, send: make(chan []byte, sendBuffer)}
	hub.register <- c

	go c.writePump()
	go c.readPump()
}

// readPump drains incoming frames so pongs and close frames are processed.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

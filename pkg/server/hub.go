package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/japaniel/wordcloud/pkg/sizing"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024
	sendBuffer     = 16
)

// Message is the envelope exchanged with websocket clients.
//
// Clients send {"type":"transcript","text":"..."}; the server answers with
// {"type":"snapshot","records":[...]} after every cycle, and with
// {"type":"error","error":"..."} when a transcript is rejected.
type Message struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Records []sizing.Record `json:"records,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans snapshots out to connected websocket clients. It implements
// orchestrator.Renderer, so every committed cycle reaches every client.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  zerolog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger.With().Str("component", "hub").Logger(),
	}
}

// Render broadcasts the snapshot. Clients whose send buffer is full are
// disconnected rather than allowed to stall the cycle.
func (h *Hub) Render(ctx context.Context, records []sizing.Record) error {
	msg, err := json.Marshal(Message{Type: "snapshot", Records: records})
	if err != nil {
		return err
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn().Str("client_id", c.id).Msg("client too slow, disconnecting")
		h.unregister(c)
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// register adds conn and queues the current snapshot as its first message.
// current is called under the hub lock, so no broadcast can slip between
// the initial snapshot and membership.
func (h *Hub) register(conn *websocket.Conn, current func() []sizing.Record) (*client, error) {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	msg, err := json.Marshal(Message{Type: "snapshot", Records: current()})
	if err != nil {
		return nil, err
	}
	c.send <- msg
	h.clients[c] = struct{}{}
	h.logger.Info().Str("client_id", c.id).Int("clients", len(h.clients)).Msg("client connected")
	return c, nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Info().Str("client_id", c.id).Int("clients", len(h.clients)).Msg("client disconnected")
}

// reply queues a message for one client without blocking.
func (h *Hub) reply(c *client, m Message) {
	msg, err := json.Marshal(m)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// writePump drains c.send to the connection and keeps it alive with pings.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug().Err(err).Str("client_id", c.id).Msg("write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

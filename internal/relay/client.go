package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dholuo-chat/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Sender is the outbound side of a connection as seen by the engine.
type Sender interface {
	Send(frame any)
}

// Client is one relay connection: a read pump feeding the engine and a write
// pump draining the send queue.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	engine *Engine
	log    *slog.Logger

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn, engine *Engine, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		engine: engine,
		log:    logger.With("client_id", id),
		send:   make(chan []byte, sendBuffer),
	}
}

// Send queues a frame. Frames sent after close, or while the queue is full, are dropped.
func (c *Client) Send(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.log.Error("ws: marshal frame", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.log.Debug("ws: dropping frame for closed connection")
		return
	}
	select {
	case c.send <- data:
		metrics.FramesTotal.WithLabelValues("out", frameType(frame)).Inc()
	default:
		c.log.Warn("ws: send queue full, dropping frame")
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Warn("ws: read error", "error", err)
			}
			break
		}
		c.engine.Dispatch(c, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			// One JSON document per websocket message; frames are never batched.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("ws: write failed", "error", err)
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

func frameType(frame any) string {
	switch f := frame.(type) {
	case TypingFrame:
		return f.Type
	case MessageFrame:
		return f.Type
	case TranslationFrame:
		return f.Type
	case InsightsFrame:
		return f.Type
	case ErrorFrame:
		return f.Type
	}
	return "unknown"
}

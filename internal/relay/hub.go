package relay

import (
	"context"
	"log/slog"
	"sync/atomic"

	"dholuo-chat/internal/metrics"
)

// Hub is the connection registry. Connections are self-contained, so the hub
// only tracks them for counting and for closing them all on shutdown.
type Hub struct {
	// Only the run loop touches clients.
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	count atomic.Int64
	log   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        logger,
	}
}

// Run owns the client set until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.count.Add(1)
			metrics.ConnectionsActive.Inc()
			h.log.Debug("ws: client registered", "client_id", client.id, "active", len(h.clients))

		case client := <-h.unregister:
			// Both pumps may unregister the same client.
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.count.Add(-1)
				metrics.ConnectionsActive.Dec()
				client.close()
				h.log.Debug("ws: client unregistered", "client_id", client.id, "active", len(h.clients))
			}

		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				h.count.Add(-1)
				metrics.ConnectionsActive.Dec()
				client.close()
			}
			h.log.Info("ws: hub stopped")
			return
		}
	}
}

// Register reports false if the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.close()
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	return int(h.count.Load())
}

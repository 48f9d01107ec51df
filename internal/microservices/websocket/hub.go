package websocket

import (
	"log/slog"
	"sync"
)

// Hub is the registry of connected subscribers. Each connection runs its own read and write
// goroutines; the hub only tracks who is registered.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client // map[clientID] -> *Client
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a client; a client already registered under the same ID is replaced and closed
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	prev := h.clients[c.ID]
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()

	if prev != nil && prev != c {
		prev.Close()
	}
	h.logger.Info("subscriber_added",
		"client_id", c.ID,
		"subscribers", count,
	)
}

// Unregister removes and closes the client. Unknown clients are only closed.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	current, ok := h.clients[c.ID]
	removed := ok && current == c
	if removed {
		delete(h.clients, c.ID)
	}
	count := len(h.clients)
	h.mu.Unlock()

	c.Close()
	if removed {
		h.logger.Info("subscriber_removed",
			"client_id", c.ID,
			"subscribers", count,
		)
	}
}

// Clients returns a copy of the registered clients
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every client and empties the registry
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for id, client := range clients {
		client.Close()
		h.logger.Info("subscriber_connection_closed", "client_id", id)
	}
}

package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Message types pushed to dashboard clients.
const (
	TypeDelivered = "notification_delivered"
	TypeSkipped   = "notification_skipped"
)

// Message is a delivery-cycle update broadcast to all connected dashboard
// clients.
type Message struct {
	Type      string    `json:"type"`
	Reminder  string    `json:"reminder,omitempty"`
	Title     string    `json:"title,omitempty"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Total     int       `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// DeliveryMessage builds the broadcast form of a completed or skipped
// delivery cycle.
func DeliveryMessage(reminder, title string, sent, failed, total int, skipped bool, ts time.Time) Message {
	typ := TypeDelivered
	if skipped {
		typ = TypeSkipped
	}
	return Message{
		Type:      typ,
		Reminder:  reminder,
		Title:     title,
		Sent:      sent,
		Failed:    failed,
		Total:     total,
		Timestamp: ts,
	}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full — drop message to avoid blocking
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

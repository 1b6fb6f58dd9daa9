package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/shiftboard/internal/notify"
)

const (
	TypeNotification = "notification"
	TypeEdit         = "notification_edit"
)

// Message is the JSON frame pushed to a member's connected clients.
type Message struct {
	Type string `json:"type"`
	Ref  string `json:"ref,omitempty"`
	Text string `json:"text"`
}

var _ notify.Notifier = (*Hub)(nil)

type member struct {
	tenantID int64
	userID   int64
}

// Hub tracks live connections per tenant member and delivers notifications
// to them. It satisfies notify.Notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[member]map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[member]map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.member]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.member] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.member]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, c.member)
		}
	}
	h.mu.Unlock()
}

// Send pushes a new notification to every connection of the recipient.
// Members with no open connection are skipped.
func (h *Hub) Send(_ context.Context, msg notify.Message) error {
	h.deliver(msg.TenantID, msg.UserID, Message{Type: TypeNotification, Ref: msg.Ref, Text: msg.Text})
	return nil
}

// EditOrReplace tells clients to replace the notification with msg.Ref.
// Clients that never saw the original show it as new.
func (h *Hub) EditOrReplace(_ context.Context, msg notify.Message) error {
	if msg.Ref == "" {
		return notify.ErrNoRef
	}
	h.deliver(msg.TenantID, msg.UserID, Message{Type: TypeEdit, Ref: msg.Ref, Text: msg.Text})
	return nil
}

func (h *Hub) deliver(tenantID, userID int64, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal notification", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[member{tenantID, userID}] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("websocket buffer full, dropping notification", "tenant_id", tenantID, "user_id", userID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

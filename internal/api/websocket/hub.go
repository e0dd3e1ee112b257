package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/events"
	"github.com/ajolla/ottowrite-sub001/internal/logger"
)

// Hub fans referral events out to connected admin consoles.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}

	mu     sync.RWMutex
	logger *logger.Logger
}

type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
		logger:     log.With("component", "activity-hub"),
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Activity client %s connected, %d total", client.id, count)

			client.trySend(&Message{
				Type:      "connected",
				Data:      map[string]interface{}{"message": "Connected to referral activity feed"},
				Timestamp: time.Now().UTC(),
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Activity client %s disconnected, %d total", client.id, count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.IsSubscribed(message.Type) {
					continue
				}
				if !client.trySend(message) {
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Activity client %s send buffer full, disconnecting", client.id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a client; it returns false once the hub has stopped.
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
	}
}

// Broadcast queues a message for every subscribed client. Messages are
// dropped when the queue is full.
func (h *Hub) Broadcast(messageType string, data interface{}) {
	message := &Message{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Broadcast queue full, %s dropped", messageType)
	}
}

// Publish implements events.Publisher so the hub can sit behind the
// referral service or a Redis subscription.
func (h *Hub) Publish(_ context.Context, event events.Event) error {
	h.Broadcast(event.Type, event)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (m *Message) MarshalJSON() ([]byte, error) {
	type Alias Message
	return json.Marshal(&struct {
		Timestamp string `json:"timestamp"`
		*Alias
	}{
		Timestamp: m.Timestamp.Format(time.RFC3339),
		Alias:     (*Alias)(m),
	})
}

package websocket

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client is one admin console connection.
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	send chan *Message
	id   string

	mu            sync.RWMutex
	subscriptions map[string]bool
}

func NewClient(conn *websocket.Conn, hub *Hub, id string) *Client {
	return &Client{
		conn:          conn,
		hub:           hub,
		send:          make(chan *Message, 256),
		id:            id,
		subscriptions: make(map[string]bool),
	}
}

// IsSubscribed matches an event type exactly or by its group prefix
// ("payout" matches "payout.completed"). No subscriptions means everything.
func (c *Client) IsSubscribed(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.subscriptions) == 0 {
		return true
	}
	if c.subscriptions[eventType] {
		return true
	}
	group, _, _ := strings.Cut(eventType, ".")
	return c.subscriptions[group]
}

func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.subscriptions))
	for event := range c.subscriptions {
		out = append(out, event)
	}
	return out
}

// trySend queues without blocking. Callers hold the hub lock or own the
// client, so send is never closed underneath.
func (c *Client) trySend(m *Message) bool {
	select {
	case c.send <- m:
		return true
	default:
		return false
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Activity client %s read error: %v", c.id, err)
			}
			return
		}
		c.handleIncomingMessage(message)
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.hub.logger.Error("Failed to marshal %s message: %v", message.Type, err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// handleIncomingMessage serves ping and (un)subscribe requests. Replies go
// through the hub so they never race a close of send.
func (c *Client) handleIncomingMessage(data []byte) {
	var msg struct {
		Type string `json:"type"`
		Data struct {
			Event string `json:"event"`
		} `json:"data"`
	}

	if err := json.Unmarshal(data, &msg); err != nil {
		c.hub.logger.Debug("Activity client %s sent invalid JSON: %v", c.id, err)
		return
	}

	switch msg.Type {
	case "ping":
		c.reply("pong", map[string]string{"status": "ok"})

	case "subscribe", "unsubscribe":
		if msg.Data.Event == "" {
			return
		}
		c.mu.Lock()
		if msg.Type == "subscribe" {
			c.subscriptions[msg.Data.Event] = true
		} else {
			delete(c.subscriptions, msg.Data.Event)
		}
		c.mu.Unlock()
		c.reply(msg.Type+"d", map[string]interface{}{"event": msg.Data.Event, "status": "success"})

	default:
		c.hub.logger.Debug("Activity client %s sent unknown message type %q", c.id, msg.Type)
	}
}

func (c *Client) reply(messageType string, data interface{}) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	c.trySend(&Message{Type: messageType, Data: data, Timestamp: time.Now().UTC()})
}

// Run starts the read and write pumps.
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

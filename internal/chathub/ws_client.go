package chathub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mullmine/backend/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// WebSocketClient is the browser-facing Client implementation.
type WebSocketClient struct {
	UserID string
	Conn   *websocket.Conn
	Hub    *Hub
	Router *Router
	Send   chan models.Event
	Log    *slog.Logger

	// mu guards closed and, with it, every send on Send. Commands run
	// on their own goroutines and may race the hub's unregister, so a
	// delivery after Close must be a dropped event, never a panic.
	mu     sync.Mutex
	closed bool
}

func NewWebSocketClient(userID string, conn *websocket.Conn, hub *Hub, router *Router, log *slog.Logger) *WebSocketClient {
	return &WebSocketClient{
		UserID: userID,
		Conn:   conn,
		Hub:    hub,
		Router: router,
		Send:   make(chan models.Event, 256),
		Log:    log,
	}
}

func (c *WebSocketClient) GetUserID() string { return c.UserID }

// Deliver enqueues an event for the write pump, non-blocking. Events
// arriving after Close, or while the buffer is full, are dropped.
func (c *WebSocketClient) Deliver(evt models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- evt:
		return true
	default:
		return false
	}
}

// Run starts the read and write pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close shuts the outbound channel, which stops the write pump.
// Idempotent, and safe against concurrent Deliver calls.
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// readPump decodes inbound commands and hands each to the router on its
// own goroutine: commands from the same connection run concurrently and
// must not assume ordering relative to each other.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Router.Disconnected(c)
		c.Hub.UnregisterCh <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Log.Warn("websocket read error",
					slog.String("user_id", c.UserID), slog.Any("error", err))
			}
			break
		}

		var cmd models.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.Log.Warn("bad command payload",
				slog.String("user_id", c.UserID), slog.Any("error", err))
			continue
		}

		go c.Router.Handle(c, cmd)
	}
}

// writePump drains Send into the socket and keeps the connection alive
// with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(evt); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

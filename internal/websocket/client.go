package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-server/internal/chat"
	"chat-server/pkg/logger"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
	maxFrameSize   = 8192
	sendBufferSize = 256
)

// Client is one websocket. It exists from the HTTP upgrade; the chat core
// only learns about it when the user_join handshake arrives.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	// mu serializes enqueue against shutdown so a broadcast racing a
	// disconnect can never send on the closed channel.
	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func NewClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   id,
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// enqueue hands a frame to the write pump. Returns false only when the send
// buffer is full; frames for an already-shut-down client are silently
// dropped.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel exactly once, after which enqueue drops
// frames instead of sending.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Start registers the client with the hub and runs both pumps. The write
// pump runs on its own goroutine; the read pump takes over the caller's.
func (c *Client) Start() {
	c.hub.register(c)
	go c.writePump()
	c.readPump()
}

// inboundFrame defers payload decoding to the dispatcher.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (c *Client) readPump() {
	defer func() {
		if c.hub.OnDisconnect != nil {
			c.hub.OnDisconnect(context.Background(), c.id)
		}
		c.hub.unregister(c.id)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error",
					logger.ErrorField(err),
					logger.String("connection_id", c.id),
				)
			}
			break
		}

		var frame inboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			logger.Warn("Dropping malformed frame",
				logger.ErrorField(err),
				logger.String("connection_id", c.id),
			)
			continue
		}

		kind, ok := chat.ParseEventKind(frame.Event)
		if !ok {
			logger.Warn("Dropping unknown event",
				logger.String("event", frame.Event),
				logger.String("connection_id", c.id),
			)
			continue
		}

		if c.hub.OnEvent != nil {
			c.hub.OnEvent(context.Background(), c.id, chat.InboundEvent{Kind: kind, Data: frame.Data})
		}
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
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"crypto-signals/internal/dto"
	"crypto-signals/pkg/logger"
)

// Client is one live websocket connection with its own symbol subscriptions
// and a buffered outbound queue.
type Client struct {
	id     string
	userID uint
	hub    *Hub
	conn   *websocket.Conn
	log    *logger.Logger
	send   chan []byte

	writeTimeout time.Duration
	pongTimeout  time.Duration

	mu      sync.Mutex
	symbols map[string]struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		id:           uuid.NewString(),
		userID:       userID,
		hub:          hub,
		conn:         conn,
		log:          hub.log,
		send:         make(chan []byte, hub.cfg.WS.SendBufferSize),
		writeTimeout: hub.cfg.WS.WriteTimeout,
		pongTimeout:  hub.cfg.WS.PongTimeout,
		symbols:      make(map[string]struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) isSubscribed(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.symbols[symbol]
	return ok
}

func (c *Client) subscribe(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbols[symbol] = struct{}{}
}

func (c *Client) unsubscribe(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.symbols, symbol)
}

// enqueue queues a control reply, dropping it when the buffer is full.
func (c *Client) enqueue(envelope dto.Envelope) {
	frame := envelope.Encode()
	if frame == nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// readPump consumes client messages until the connection drops, then removes
// the client from the registry.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	c.enqueue(dto.NewEnvelope(dto.MessageTypeConnected, map[string]string{"connection_id": c.id}))

	for {
		if ctx.Err() != nil {
			return
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Unexpected websocket close",
					logger.StringField("connection_id", c.id),
					logger.ErrorField(err),
				)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))

		var msg dto.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.enqueue(dto.NewEnvelope(dto.MessageTypeError, map[string]string{"message": "invalid message"}))
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg dto.ClientMessage) {
	switch msg.Action {
	case dto.ActionSubscribe:
		if msg.Symbol == "" {
			c.enqueue(dto.NewEnvelope(dto.MessageTypeError, map[string]string{"message": "symbol is required"}))
			return
		}
		c.subscribe(msg.Symbol)
		c.enqueue(dto.NewEnvelope(dto.MessageTypeSubscribed, map[string]string{"symbol": msg.Symbol}))
	case dto.ActionUnsubscribe:
		c.unsubscribe(msg.Symbol)
		c.enqueue(dto.NewEnvelope(dto.MessageTypeUnsubscribed, map[string]string{"symbol": msg.Symbol}))
	case dto.ActionPing:
		c.enqueue(dto.NewEnvelope(dto.MessageTypePong, nil))
	default:
		c.enqueue(dto.NewEnvelope(dto.MessageTypeError, map[string]string{"message": "unknown action"}))
	}
}

// writePump drains the outbound queue onto the wire and keeps the connection
// alive with periodic pings.
func (c *Client) writePump() {
	pingInterval := c.pongTimeout * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

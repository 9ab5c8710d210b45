package ws

import (
	"context"
	"sync"

	"crypto-signals/config"
	"crypto-signals/pkg/bus"
	"crypto-signals/pkg/logger"
	"crypto-signals/pkg/utils"
)

// Hub is the connection registry. It listens on the notification bus and
// fans each message out to the connections subscribed to that symbol.
type Hub struct {
	cfg           *config.Config
	log           *logger.Logger
	notifications bus.Bus

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub(cfg *config.Config, log *logger.Logger, notifications bus.Bus) *Hub {
	return &Hub{
		cfg:           cfg,
		log:           log,
		notifications: notifications,
		clients:       make(map[*Client]struct{}),
	}
}

// Run blocks consuming the bus until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	messages, err := h.notifications.Subscribe(ctx)
	if err != nil {
		return err
	}

	h.log.InfoContext(ctx, "Connection hub started")
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case msg, ok := <-messages:
			if !ok {
				h.closeAll()
				return nil
			}
			h.broadcast(msg)
		}
	}
}

// broadcast delivers one bus message to every connection subscribed to its
// symbol. Sends are non-blocking so one stalled connection cannot hold up
// the rest; its frame is dropped instead.
func (h *Hub) broadcast(msg bus.Message) {
	if msg.Payload == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.isSubscribed(msg.Symbol) {
			continue
		}
		select {
		case client.send <- msg.Payload:
		default:
			h.log.Warn("Dropping frame for slow connection",
				logger.StringField("connection_id", client.id),
				logger.StringField("symbol", msg.Symbol),
			)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// ClientCount is used by tests and health reporting.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve registers the client and runs its pumps until disconnect.
func (h *Hub) Serve(ctx context.Context, client *Client) {
	h.register(client)

	utils.GoSafe(func() {
		client.writePump()
	})
	client.readPump(ctx)
}

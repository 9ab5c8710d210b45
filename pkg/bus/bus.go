package bus

import (
	"context"
	"time"
)

// Message is one notification on the bus, keyed by symbol. Payload is the
// wire-ready envelope that subscribers forward as-is.
type Message struct {
	Symbol    string    `json:"symbol"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Bus decouples signal producers from delivery. One logical channel per
// deployment; every subscriber receives every message and filters on symbol.
// Delivery is best effort, there is no replay for late subscribers.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context) (<-chan Message, error)
	Close() error
}

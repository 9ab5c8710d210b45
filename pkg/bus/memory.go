package bus

import (
	"context"
	"sync"
)

const subscriberBuffer = 256

// MemoryBus is an in-process Bus for single-instance deployments and tests.
type MemoryBus struct {
	mu          sync.Mutex
	subscribers map[chan Message]struct{}
	closed      bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subscribers: make(map[chan Message]struct{}),
	}
}

func (b *MemoryBus) Publish(_ context.Context, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			// A stalled subscriber loses this message, it must not stall the rest.
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan Message, error) {
	ch := make(chan Message, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}()

	return ch, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
	return nil
}

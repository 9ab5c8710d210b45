package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_PublishReachesAllSubscribers(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := b.Subscribe(ctx)
	require.NoError(t, err)
	second, err := b.Subscribe(ctx)
	require.NoError(t, err)

	msg := Message{Symbol: "BTC/USDT", Payload: []byte(`{}`), CreatedAt: time.Now()}
	require.NoError(t, b.Publish(context.Background(), msg))

	for _, ch := range []<-chan Message{first, second} {
		select {
		case got := <-ch:
			assert.Equal(t, "BTC/USDT", got.Symbol)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the message")
		}
	}
}

func TestMemoryBus_PerSymbolOrdering(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := b.Subscribe(ctx)
	require.NoError(t, err)

	payloads := []string{"one", "two", "three"}
	for _, p := range payloads {
		require.NoError(t, b.Publish(context.Background(), Message{Symbol: "BTC/USDT", Payload: []byte(p)}))
	}

	for _, want := range payloads {
		select {
		case got := <-sub:
			assert.Equal(t, want, string(got.Payload))
		case <-time.After(time.Second):
			t.Fatal("missing message")
		}
	}
}

func TestMemoryBus_StalledSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := b.Subscribe(ctx)
	require.NoError(t, err)

	// Saturate the subscriber buffer and keep publishing; Publish must never
	// block even though nobody is draining.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			_ = b.Publish(context.Background(), Message{Symbol: "BTC/USDT"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stalled subscriber")
	}
}

func TestMemoryBus_ContextCancelUnsubscribes(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx)
	require.NoError(t, err)

	cancel()

	// The channel closes once the cancellation is observed.
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-sub:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryBus_CloseIsIdempotent(t *testing.T) {
	b := NewMemoryBus()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := b.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, ok := <-sub
	assert.False(t, ok)
}

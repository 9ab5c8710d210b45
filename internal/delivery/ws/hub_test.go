package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-signals/config"
	"crypto-signals/internal/dto"
	"crypto-signals/pkg/bus"
	"crypto-signals/pkg/logger"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.WS.SendBufferSize = 8
	cfg.WS.WriteTimeout = time.Second
	cfg.WS.PongTimeout = time.Minute
	return cfg
}

// testClient builds a registry entry without a real network connection so
// fan-out can be observed on the send channel directly.
func testClient(hub *Hub, bufferSize int) *Client {
	return &Client{
		id:      "test-client",
		hub:     hub,
		log:     hub.log,
		send:    make(chan []byte, bufferSize),
		symbols: make(map[string]struct{}),
	}
}

func signalMessage(symbol string) bus.Message {
	envelope := dto.NewEnvelope(dto.MessageTypeNewSignal, dto.SignalPayload{Symbol: symbol})
	return bus.Message{
		Symbol:    symbol,
		Payload:   envelope.Encode(),
		CreatedAt: time.Now(),
	}
}

func TestHub_DeliversOnlySubscribedSymbols(t *testing.T) {
	notifications := bus.NewMemoryBus()
	defer notifications.Close()

	hub := NewHub(testConfig(), logger.NewNop(), notifications)

	client := testClient(hub, 8)
	client.subscribe("BTC/USDT")
	hub.register(client)

	hub.broadcast(signalMessage("ETH/USDT"))
	hub.broadcast(signalMessage("BTC/USDT"))

	// Exactly one frame arrives: the ETH signal was filtered out and the BTC
	// one was not duplicated.
	select {
	case frame := <-client.send:
		var envelope struct {
			Type string            `json:"type"`
			Data dto.SignalPayload `json:"data"`
		}
		require.NoError(t, json.Unmarshal(frame, &envelope))
		assert.Equal(t, dto.MessageTypeNewSignal, envelope.Type)
		assert.Equal(t, "BTC/USDT", envelope.Data.Symbol)
	default:
		t.Fatal("expected the BTC/USDT signal to be delivered")
	}
	assert.Empty(t, client.send)
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	notifications := bus.NewMemoryBus()
	defer notifications.Close()

	hub := NewHub(testConfig(), logger.NewNop(), notifications)

	client := testClient(hub, 8)
	client.subscribe("BTC/USDT")
	client.unsubscribe("BTC/USDT")
	hub.register(client)

	hub.broadcast(signalMessage("BTC/USDT"))
	assert.Empty(t, client.send)
}

func TestHub_RunConsumesBusUntilCancelled(t *testing.T) {
	notifications := bus.NewMemoryBus()
	defer notifications.Close()

	hub := NewHub(testConfig(), logger.NewNop(), notifications)

	client := testClient(hub, 8)
	client.subscribe("BTC/USDT")
	hub.register(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()

	// Publish until the frame lands; the hub subscribes asynchronously and
	// the bus gives no delivery guarantee before that.
	require.Eventually(t, func() bool {
		_ = notifications.Publish(context.Background(), signalMessage("BTC/USDT"))
		select {
		case <-client.send:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop on context cancellation")
	}
	// Cancellation drains the registry.
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_SlowClientDoesNotBlockOthers(t *testing.T) {
	notifications := bus.NewMemoryBus()
	defer notifications.Close()

	hub := NewHub(testConfig(), logger.NewNop(), notifications)

	// The slow client has no buffer space at all; its frames are dropped.
	slow := testClient(hub, 0)
	slow.subscribe("BTC/USDT")
	hub.register(slow)

	healthy := testClient(hub, 8)
	healthy.subscribe("BTC/USDT")
	hub.register(healthy)

	hub.broadcast(signalMessage("BTC/USDT"))

	select {
	case <-healthy.send:
	default:
		t.Fatal("healthy client should have received the frame")
	}
	assert.Empty(t, slow.send)
}

func TestHub_UnregisterRemovesClient(t *testing.T) {
	notifications := bus.NewMemoryBus()
	defer notifications.Close()

	hub := NewHub(testConfig(), logger.NewNop(), notifications)

	client := testClient(hub, 8)
	hub.register(client)
	assert.Equal(t, 1, hub.ClientCount())

	hub.unregister(client)
	assert.Equal(t, 0, hub.ClientCount())

	// Unregister is idempotent on disconnect races.
	hub.unregister(client)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestClient_HandleMessage(t *testing.T) {
	notifications := bus.NewMemoryBus()
	defer notifications.Close()

	hub := NewHub(testConfig(), logger.NewNop(), notifications)
	client := testClient(hub, 8)

	client.handleMessage(dto.ClientMessage{Action: dto.ActionSubscribe, Symbol: "BTC/USDT"})
	assert.True(t, client.isSubscribed("BTC/USDT"))
	assertReply(t, client, dto.MessageTypeSubscribed)

	client.handleMessage(dto.ClientMessage{Action: dto.ActionPing})
	assertReply(t, client, dto.MessageTypePong)

	client.handleMessage(dto.ClientMessage{Action: dto.ActionUnsubscribe, Symbol: "BTC/USDT"})
	assert.False(t, client.isSubscribed("BTC/USDT"))
	assertReply(t, client, dto.MessageTypeUnsubscribed)

	client.handleMessage(dto.ClientMessage{Action: dto.ActionSubscribe})
	assertReply(t, client, dto.MessageTypeError)

	client.handleMessage(dto.ClientMessage{Action: "bogus"})
	assertReply(t, client, dto.MessageTypeError)
}

func assertReply(t *testing.T, client *Client, wantType string) {
	t.Helper()
	select {
	case frame := <-client.send:
		var envelope dto.Envelope
		require.NoError(t, json.Unmarshal(frame, &envelope))
		assert.Equal(t, wantType, envelope.Type)
	default:
		t.Fatalf("expected a %s reply", wantType)
	}
}

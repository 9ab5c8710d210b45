package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"crypto-signals/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisBus is the multi-instance Bus, one pub/sub channel per deployment.
type RedisBus struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
}

func NewRedisBus(addr, password string, db int, channel string, log *logger.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBus{
		client:  client,
		channel: channel,
		log:     log,
	}, nil
}

func (b *RedisBus) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal bus message: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Message, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)

	// Confirm the subscription before handing out the channel so a publish
	// that follows Subscribe is never missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}

	out := make(chan Message, subscriberBuffer)

	go func() {
		defer close(out)
		defer pubsub.Close()

		src := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-src:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					b.log.Error("Failed to decode bus message", logger.ErrorField(err))
					continue
				}
				select {
				case out <- msg:
				default:
					b.log.Warn("Bus subscriber overflow, dropping message",
						logger.StringField("symbol", msg.Symbol))
				}
			}
		}
	}()

	return out, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

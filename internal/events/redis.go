package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ajolla/ottowrite-sub001/internal/logger"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes JSON-encoded events on a pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe delivers events from the channel to handle until ctx is done.
// Malformed payloads are logged and skipped.
func Subscribe(ctx context.Context, client *redis.Client, channel string, log *logger.Logger, handle func(Event)) error {
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	go func() {
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Warn("Error unmarshaling event: %v", err)
					continue
				}
				handle(event)
			}
		}
	}()

	return nil
}

package backplane

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chat-server/internal/metrics"
	"chat-server/pkg/logger"
)

// RedisBackplane relays broadcasts over a single Redis pub/sub channel.
type RedisBackplane struct {
	client  *redis.Client
	channel string
	origin  string
}

func NewRedisBackplane(addr, password string, db int, channel string) (*RedisBackplane, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisBackplane{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
	}, nil
}

func (b *RedisBackplane) Publish(ctx context.Context, ev *Event) error {
	ev.Origin = b.origin

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal backplane event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish backplane event: %w", err)
	}

	metrics.BackplaneEventsTotal.WithLabelValues("published").Inc()
	return nil
}

func (b *RedisBackplane) Subscribe(ctx context.Context, handler func(*Event)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	logger.Info("Subscribed to backplane channel", logger.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("backplane subscription closed")
			}

			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("Dropping malformed backplane event", logger.ErrorField(err))
				continue
			}
			if ev.Origin == b.origin {
				continue
			}

			metrics.BackplaneEventsTotal.WithLabelValues("applied").Inc()
			handler(&ev)
		}
	}
}

func (b *RedisBackplane) Close() error {
	return b.client.Close()
}

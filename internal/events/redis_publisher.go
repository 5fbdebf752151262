package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher forwards events to a Redis pub/sub channel for external consumers.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher creates the publisher.
func NewRedisPublisher(client *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

// RegisterHandlers subscribes the publisher to every event type.
func (p *RedisPublisher) RegisterHandlers(dispatcher Dispatcher) {
	if dispatcher == nil || p.client == nil || p.channel == "" {
		return
	}
	for _, eventType := range AllEventTypes() {
		dispatcher.Subscribe(eventType, p.Handle)
	}
}

// Handle publishes one event as JSON.
func (p *RedisPublisher) Handle(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	p.logger.Debug("event published",
		zap.String("event_type", string(event.Type)),
		zap.Int64("order_id", event.OrderID))
	return nil
}

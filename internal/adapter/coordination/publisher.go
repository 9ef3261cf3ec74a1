package coordination

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fleetwatch/fleetwatch/internal/logger"
	"github.com/fleetwatch/fleetwatch/internal/ports"
	"github.com/go-redis/redis/v8"
)

// RedisPublisher publishes asset events on a Redis pub/sub channel
type RedisPublisher struct {
	client  redis.Cmdable
	channel string
}

// NewRedisPublisher creates a publisher for channel
func NewRedisPublisher(client redis.Cmdable, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends the JSON encoded event
func (p *RedisPublisher) Publish(ctx context.Context, event ports.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// LogPublisher writes events to the log instead of a broker
type LogPublisher struct {
	logger logger.Logger
}

// NewLogPublisher creates a publisher that only logs
func NewLogPublisher(log logger.Logger) *LogPublisher {
	return &LogPublisher{logger: log}
}

func (p *LogPublisher) Publish(ctx context.Context, event ports.Event) error {
	p.logger.Debug(ctx, "asset event", map[string]interface{}{
		"event_id":     event.ID,
		"event_type":   event.Type,
		"aggregate":    event.Aggregate,
		"aggregate_id": event.AggregateID,
		"actor":        event.Actor,
	})
	return nil
}

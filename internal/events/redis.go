package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/property-crawler/internal/database"
)

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisStreamPublisher appends events to the Redis stream named by their
// target stream.
type RedisStreamPublisher struct {
	client RedisClient
	maxLen int64
}

// NewRedisStreamPublisher wraps client. A positive maxLen caps each stream
// approximately at that many entries.
func NewRedisStreamPublisher(client RedisClient, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, maxLen: maxLen}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, event *database.OutboxEvent) error {
	data, err := envelope(event)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: event.TargetStream,
		Values: map[string]interface{}{
			"data":           string(data),
			"type":           event.EventType,
			"timestamp":      fmt.Sprintf("%d", event.CreatedAt.UnixNano()),
			"original_id":    event.ID.String(),
			"aggregate_id":   event.AggregateID,
			"aggregate_type": event.AggregateType,
			"event_type":     event.EventType,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	return nil
}

func (p *RedisStreamPublisher) Close() error {
	return p.client.Close()
}

package event

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/partsbridge/backend/internal/domain/shared"
)

// Stream entry field names shared with consumers
const (
	fieldEventID      = "event_id"
	fieldPartitionKey = "partition_key"
	fieldPayload      = "payload"
)

// RedisStreamPublisher publishes outbox events to Redis Streams. Each topic
// maps to one stream named prefix+topic. XADD preserves append order, so
// per-batch seq ordering carries through to the stream.
type RedisStreamPublisher struct {
	client       redis.UniversalClient
	streamPrefix string
}

// NewRedisStreamPublisher creates a publisher over the given Redis client
func NewRedisStreamPublisher(client redis.UniversalClient, streamPrefix string) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client:       client,
		streamPrefix: streamPrefix,
	}
}

// Publish appends the event to its topic's stream. Safe to repeat for the
// same event; consumers deduplicate on event_id.
func (p *RedisStreamPublisher) Publish(ctx context.Context, event *shared.OutboxEvent) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.streamPrefix + event.Topic,
		Values: map[string]any{
			fieldEventID:      event.ID.String(),
			fieldPartitionKey: event.PartitionKey,
			fieldPayload:      string(event.Payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd to stream %s%s: %w", p.streamPrefix, event.Topic, err)
	}
	return nil
}

// Ensure RedisStreamPublisher implements EventPublisher
var _ shared.EventPublisher = (*RedisStreamPublisher)(nil)

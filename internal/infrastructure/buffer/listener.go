package buffer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/partsbridge/backend/internal/domain/shared"
)

// ListenerConfig holds inbound stream listener configuration
type ListenerConfig struct {
	Stream        string
	ConsumerGroup string
	ConsumerName  string
	// BlockTimeout bounds each XREADGROUP call so shutdown stays responsive
	BlockTimeout time.Duration
	DedupTTL     time.Duration
}

// StreamListener consumes inbound events from a Redis stream and feeds them
// into the buffer. Records already seen (by event_id) within the dedup TTL
// are acknowledged and dropped.
type StreamListener struct {
	client  redis.UniversalClient
	buffer  *EventBuffer
	idempot shared.IdempotencyStore
	config  ListenerConfig
	logger  *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStreamListener creates a listener over the given Redis client.
// idempot may be nil to disable deduplication.
func NewStreamListener(
	client redis.UniversalClient,
	buf *EventBuffer,
	idempot shared.IdempotencyStore,
	config ListenerConfig,
	logger *zap.Logger,
) *StreamListener {
	if config.BlockTimeout == 0 {
		config.BlockTimeout = 2 * time.Second
	}
	if config.ConsumerName == "" {
		config.ConsumerName = "listener-1"
	}
	return &StreamListener{
		client:  client,
		buffer:  buf,
		idempot: idempot,
		config:  config,
		logger:  logger,
	}
}

// Start creates the consumer group if needed and starts the consume loop
func (l *StreamListener) Start(ctx context.Context) error {
	err := l.client.XGroupCreateMkStream(ctx, l.config.Stream, l.config.ConsumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	l.wg.Add(1)
	go l.consumeLoop(ctx)

	l.logger.Info("inbound stream listener started",
		zap.String("stream", l.config.Stream),
		zap.String("consumer_group", l.config.ConsumerGroup),
	)
	return nil
}

// Stop gracefully stops the listener
func (l *StreamListener) Stop(ctx context.Context) error {
	if l.cancel != nil {
		l.cancel()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("inbound stream listener stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// consumeLoop reads stream entries and feeds the buffer
func (l *StreamListener) consumeLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := l.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    l.config.ConsumerGroup,
			Consumer: l.config.ConsumerName,
			Streams:  []string{l.config.Stream, ">"},
			Count:    64,
			Block:    l.config.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			l.logger.Error("failed to read inbound stream", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				l.handleMessage(ctx, message)
			}
		}
	}
}

// handleMessage converts one stream entry into a buffered record
func (l *StreamListener) handleMessage(ctx context.Context, message redis.XMessage) {
	record := Record{
		ID:         stringField(message, "event_id"),
		Type:       stringField(message, "event_type"),
		Payload:    []byte(stringField(message, "payload")),
		ReceivedAt: time.Now(),
	}
	if record.ID == "" {
		record.ID = message.ID
	}

	if l.idempot != nil {
		fresh, err := l.idempot.MarkProcessed(ctx, record.ID, l.config.DedupTTL)
		if err != nil {
			l.logger.Error("idempotency check failed, admitting record",
				zap.String("event_id", record.ID), zap.Error(err))
		} else if !fresh {
			l.logger.Debug("dropping duplicate inbound event", zap.String("event_id", record.ID))
			l.ack(ctx, message)
			return
		}
	}

	if err := l.buffer.Put(ctx, record); err != nil {
		// Not acked: the entry stays pending and is redelivered later
		l.logger.Warn("failed to buffer inbound event",
			zap.String("event_id", record.ID), zap.Error(err))
		return
	}
	l.ack(ctx, message)
}

func (l *StreamListener) ack(ctx context.Context, message redis.XMessage) {
	if err := l.client.XAck(ctx, l.config.Stream, l.config.ConsumerGroup, message.ID).Err(); err != nil {
		l.logger.Error("failed to ack inbound event",
			zap.String("message_id", message.ID), zap.Error(err))
	}
}

func stringField(message redis.XMessage, key string) string {
	if v, ok := message.Values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

package event

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/partsbridge/backend/internal/domain/shared"
)

// DeadLetterArchiver stores the payload of a dead-lettered event outside
// the database for operator inspection. Archiving is best effort; a failed
// archive never blocks dispatch.
type DeadLetterArchiver interface {
	Archive(ctx context.Context, event *shared.OutboxEvent) error
}

// DispatchMetrics receives dispatch outcomes, one call per event. A nil
// DispatchMetrics disables recording.
type DispatchMetrics interface {
	RecordPublished(ctx context.Context, topic string)
	RecordPublishFailed(ctx context.Context, topic string)
	RecordDeadLettered(ctx context.Context, topic string)
}

// DispatcherConfig holds configuration for the outbox dispatcher
type DispatcherConfig struct {
	BatchSize    int
	PollInterval time.Duration
	ClaimLease   time.Duration
}

// DefaultDispatcherConfig returns default configuration
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BatchSize:    100,
		PollInterval: 5 * time.Second,
		ClaimLease:   30 * time.Second,
	}
}

// Dispatcher delivers NEW outbox events to the outbound channel in the
// background. Multiple dispatcher instances may run concurrently against
// the same table; the claim lease in ClaimBatch keeps them from publishing
// the same event twice within a lease window.
type Dispatcher struct {
	repo      shared.OutboxRepository
	publisher shared.EventPublisher
	archiver  DeadLetterArchiver
	config    DispatcherConfig
	logger    *zap.Logger
	metrics   DispatchMetrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a new outbox dispatcher. archiver may be nil.
func NewDispatcher(
	repo shared.OutboxRepository,
	publisher shared.EventPublisher,
	archiver DeadLetterArchiver,
	config DispatcherConfig,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		archiver:  archiver,
		config:    config,
		logger:    logger,
	}
}

// SetMetrics attaches dispatch outcome recording. Call before Start.
func (d *Dispatcher) SetMetrics(m DispatchMetrics) {
	d.metrics = m
}

// Start starts the background dispatch loop
func (d *Dispatcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go d.dispatchLoop(ctx)

	d.logger.Info("outbox dispatcher started",
		zap.Int("batch_size", d.config.BatchSize),
		zap.Duration("poll_interval", d.config.PollInterval),
		zap.Duration("claim_lease", d.config.ClaimLease),
	)
	return nil
}

// Stop gracefully stops the dispatcher
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("outbox dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatchLoop is the main dispatch loop
func (d *Dispatcher) dispatchLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.DispatchBatch(ctx)
		}
	}
}

// DispatchBatch claims one batch of due events and publishes them in seq
// order. Exposed for tests and for on-demand draining.
func (d *Dispatcher) DispatchBatch(ctx context.Context) {
	claimed, err := d.repo.ClaimBatch(ctx, d.config.BatchSize, d.config.ClaimLease)
	if err != nil {
		d.logger.Error("failed to claim outbox batch", zap.Error(err))
		return
	}

	for _, event := range claimed {
		d.dispatch(ctx, event)
	}
}

// dispatch publishes a single claimed event and records the outcome
func (d *Dispatcher) dispatch(ctx context.Context, event *shared.OutboxEvent) {
	if err := d.publisher.Publish(ctx, event); err != nil {
		d.logger.Error("failed to publish event",
			zap.String("event_id", event.ID.String()),
			zap.String("topic", event.Topic),
			zap.Int("attempt", event.AttemptCount+1),
			zap.Error(err),
		)
		if d.metrics != nil {
			d.metrics.RecordPublishFailed(ctx, event.Topic)
		}
		event.MarkFailed(err.Error())
		if event.IsDead() {
			d.logger.Warn("event dead-lettered",
				zap.String("event_id", event.ID.String()),
				zap.String("topic", event.Topic),
				zap.Int("attempts", event.AttemptCount),
				zap.String("last_error", event.LastError),
			)
			if d.metrics != nil {
				d.metrics.RecordDeadLettered(ctx, event.Topic)
			}
			d.archive(ctx, event)
		}
		if updateErr := d.repo.Update(ctx, event); updateErr != nil {
			d.logger.Error("failed to update event after publish failure", zap.Error(updateErr))
		}
		return
	}

	event.MarkSent()
	if d.metrics != nil {
		d.metrics.RecordPublished(ctx, event.Topic)
	}
	if err := d.repo.Update(ctx, event); err != nil {
		// The publish already happened; a failed status write means the
		// event will be re-published after the lease expires. Consumers
		// deduplicate on event ID.
		d.logger.Error("failed to mark event as sent",
			zap.String("event_id", event.ID.String()),
			zap.Error(err),
		)
		return
	}

	d.logger.Debug("event published",
		zap.String("event_id", event.ID.String()),
		zap.String("topic", event.Topic),
		zap.Int64("seq", event.Seq),
	)
}

// archive stores a dead-lettered payload if an archiver is configured
func (d *Dispatcher) archive(ctx context.Context, event *shared.OutboxEvent) {
	if d.archiver == nil {
		return
	}
	if err := d.archiver.Archive(ctx, event); err != nil {
		d.logger.Error("failed to archive dead letter",
			zap.String("event_id", event.ID.String()),
			zap.Error(err),
		)
	}
}

// RetryDeadLetter returns a dead-lettered event to the NEW pool. Operator
// action, typically exposed through an admin tool.
func (d *Dispatcher) RetryDeadLetter(ctx context.Context, event *shared.OutboxEvent) error {
	if err := event.ResetForRetry(); err != nil {
		return err
	}
	return d.repo.Update(ctx, event)
}

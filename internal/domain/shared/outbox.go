package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the delivery status of an outbox event
type OutboxStatus string

const (
	// OutboxStatusNew marks an event that still awaits (re)delivery.
	// Retryable failures stay NEW with a future NextAttemptAt.
	OutboxStatusNew OutboxStatus = "NEW"
	// OutboxStatusSent marks an event that was published successfully.
	OutboxStatusSent OutboxStatus = "SENT"
	// OutboxStatusError marks a dead-lettered event whose retry budget is
	// exhausted. Requires operator intervention; never reached silently.
	OutboxStatusError OutboxStatus = "ERROR"
)

// Default retry configuration
const (
	DefaultMaxAttempts = 5
	DefaultBaseBackoff = time.Second
)

// OutboxEvent is a domain event persisted in the same transaction as the
// business change that produced it. Rows are never deleted; the table is
// an audit trail of everything the system promised to deliver.
type OutboxEvent struct {
	// Seq is the append order assigned by the store. Batches are published
	// in ascending Seq order; it is the "identity" dispatch is ordered by.
	Seq           int64
	ID            uuid.UUID
	Topic         string
	PartitionKey  string
	Payload       []byte
	Status        OutboxStatus
	AttemptCount  int
	MaxAttempts   int
	LastError     string
	ClaimedAt     *time.Time
	NextAttemptAt *time.Time
	SentAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEvent creates a NEW outbox event carrying an already-serialized
// payload. The producer owns serialization; the dispatcher treats the
// payload as opaque bytes.
func NewOutboxEvent(topic, partitionKey string, payload []byte) *OutboxEvent {
	now := time.Now()
	return &OutboxEvent{
		ID:           uuid.New(),
		Topic:        topic,
		PartitionKey: partitionKey,
		Payload:      payload,
		Status:       OutboxStatusNew,
		AttemptCount: 0,
		MaxAttempts:  DefaultMaxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Claim stamps the claim lease. The store commits the claim before any
// publish happens, so a crash mid-publish only delays redelivery until
// the lease expires.
func (e *OutboxEvent) Claim(now time.Time) error {
	if e.Status != OutboxStatusNew {
		return errors.New("can only claim NEW events")
	}
	e.ClaimedAt = &now
	e.UpdatedAt = now
	return nil
}

// ClaimExpired reports whether a previous claim is stale and the row may
// be picked up again.
func (e *OutboxEvent) ClaimExpired(now time.Time, lease time.Duration) bool {
	return e.ClaimedAt == nil || now.Sub(*e.ClaimedAt) >= lease
}

// MarkSent marks the event as successfully published
func (e *OutboxEvent) MarkSent() {
	now := time.Now()
	e.Status = OutboxStatusSent
	e.SentAt = &now
	e.ClaimedAt = nil
	e.UpdatedAt = now
}

// MarkFailed records a publish failure. While the retry budget lasts the
// event stays NEW with an exponential-backoff NextAttemptAt; once the
// budget is exhausted it becomes ERROR (dead letter).
func (e *OutboxEvent) MarkFailed(errMsg string) {
	now := time.Now()
	e.AttemptCount++
	e.LastError = errMsg
	e.ClaimedAt = nil
	e.UpdatedAt = now

	if e.AttemptCount >= e.MaxAttempts {
		e.Status = OutboxStatusError
		e.NextAttemptAt = nil
		return
	}
	// 1s, 2s, 4s, 8s, ...
	backoff := DefaultBaseBackoff * time.Duration(1<<uint(e.AttemptCount-1))
	next := now.Add(backoff)
	e.NextAttemptAt = &next
}

// ResetForRetry returns a dead-lettered event to the NEW pool with a fresh
// retry budget. Operator action only.
func (e *OutboxEvent) ResetForRetry() error {
	if e.Status != OutboxStatusError {
		return errors.New("can only retry dead-lettered events")
	}
	e.Status = OutboxStatusNew
	e.AttemptCount = 0
	e.LastError = ""
	e.ClaimedAt = nil
	e.NextAttemptAt = nil
	e.UpdatedAt = time.Now()
	return nil
}

// IsDead returns true if the event is dead-lettered
func (e *OutboxEvent) IsDead() bool {
	return e.Status == OutboxStatusError
}

// OutboxRepository defines the interface for outbox persistence.
// Append must run on a repository scoped to the business transaction so
// the event is durable exactly when the triggering write is.
type OutboxRepository interface {
	// Append persists events as part of the surrounding transaction
	Append(ctx context.Context, events ...*OutboxEvent) error
	// ClaimBatch selects up to limit NEW events that are due for an
	// attempt and not under a live claim lease, in ascending Seq order,
	// locks them against concurrent dispatchers, stamps the lease and
	// commits the claim before returning.
	ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]*OutboxEvent, error)
	// Update persists the event's delivery state
	Update(ctx context.Context, event *OutboxEvent) error
	// FindByID retrieves a single event
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	// FindDeadLetters retrieves dead-lettered events with pagination
	FindDeadLetters(ctx context.Context, page, pageSize int) ([]*OutboxEvent, int64, error)
	// CountByStatus returns the number of events per status
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}

// EventPublisher publishes claimed outbox events to the outbound channel.
// Publishing must be safe to repeat; consumers deduplicate on event ID.
type EventPublisher interface {
	Publish(ctx context.Context, event *OutboxEvent) error
}

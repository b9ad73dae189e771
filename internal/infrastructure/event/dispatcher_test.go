package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/partsbridge/backend/internal/domain/shared"
)

// fakeOutboxRepo is an in-memory OutboxRepository for dispatcher tests
type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*shared.OutboxEvent
}

func (f *fakeOutboxRepo) Append(_ context.Context, events ...*shared.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range events {
		e.Seq = int64(len(f.events) + 1)
		f.events = append(f.events, e)
	}
	return nil
}

func (f *fakeOutboxRepo) ClaimBatch(_ context.Context, limit int, lease time.Duration) ([]*shared.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var claimed []*shared.OutboxEvent
	for _, e := range f.events {
		if len(claimed) >= limit {
			break
		}
		if e.Status != shared.OutboxStatusNew {
			continue
		}
		if e.NextAttemptAt != nil && e.NextAttemptAt.After(now) {
			continue
		}
		if !e.ClaimExpired(now, lease) {
			continue
		}
		copied := *e
		copied.ClaimedAt = &now
		e.ClaimedAt = &now
		claimed = append(claimed, &copied)
	}
	return claimed, nil
}

func (f *fakeOutboxRepo) Update(_ context.Context, event *shared.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.events {
		if e.Seq == event.Seq {
			copied := *event
			f.events[i] = &copied
			return nil
		}
	}
	return shared.ErrNotFound
}

func (f *fakeOutboxRepo) FindByID(_ context.Context, id uuid.UUID) (*shared.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == id {
			copied := *e
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeOutboxRepo) FindDeadLetters(_ context.Context, _, _ int) ([]*shared.OutboxEvent, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var dead []*shared.OutboxEvent
	for _, e := range f.events {
		if e.Status == shared.OutboxStatusError {
			copied := *e
			dead = append(dead, &copied)
		}
	}
	return dead, int64(len(dead)), nil
}

func (f *fakeOutboxRepo) CountByStatus(_ context.Context) (map[shared.OutboxStatus]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range f.events {
		counts[e.Status]++
	}
	return counts, nil
}

// fakePublisher records published events and can be told to fail
type fakePublisher struct {
	mu        sync.Mutex
	published []uuid.UUID
	failWith  error
}

func (f *fakePublisher) Publish(_ context.Context, event *shared.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.published = append(f.published, event.ID)
	return nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []uuid.UUID
}

func (f *fakeArchiver) Archive(_ context.Context, event *shared.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, event.ID)
	return nil
}

// fakeDispatchMetrics counts outcome recordings per topic
type fakeDispatchMetrics struct {
	mu           sync.Mutex
	published    map[string]int
	failed       map[string]int
	deadLettered map[string]int
}

func newFakeDispatchMetrics() *fakeDispatchMetrics {
	return &fakeDispatchMetrics{
		published:    make(map[string]int),
		failed:       make(map[string]int),
		deadLettered: make(map[string]int),
	}
}

func (f *fakeDispatchMetrics) RecordPublished(_ context.Context, topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic]++
}

func (f *fakeDispatchMetrics) RecordPublishFailed(_ context.Context, topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[topic]++
}

func (f *fakeDispatchMetrics) RecordDeadLettered(_ context.Context, topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadLettered[topic]++
}

func newTestDispatcher(repo shared.OutboxRepository, pub shared.EventPublisher, arch DeadLetterArchiver) *Dispatcher {
	cfg := DispatcherConfig{BatchSize: 10, PollInterval: time.Hour, ClaimLease: time.Minute}
	return NewDispatcher(repo, pub, arch, cfg, zap.NewNop())
}

func TestDispatcher_PublishesInSeqOrder(t *testing.T) {
	repo := &fakeOutboxRepo{}
	pub := &fakePublisher{}
	ctx := context.Background()

	first := shared.NewOutboxEvent("inventory.stock.synced", "SKU-1", []byte(`{}`))
	second := shared.NewOutboxEvent("inventory.stock.synced", "SKU-2", []byte(`{}`))
	require.NoError(t, repo.Append(ctx, first, second))

	d := newTestDispatcher(repo, pub, nil)
	d.DispatchBatch(ctx)

	require.Equal(t, []uuid.UUID{first.ID, second.ID}, pub.published)
	stored, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusSent, stored.Status)
}

func TestDispatcher_FailureStaysNewWithBackoff(t *testing.T) {
	repo := &fakeOutboxRepo{}
	pub := &fakePublisher{failWith: errors.New("broker down")}
	ctx := context.Background()

	event := shared.NewOutboxEvent("inventory.stock.synced", "SKU-1", []byte(`{}`))
	require.NoError(t, repo.Append(ctx, event))

	d := newTestDispatcher(repo, pub, nil)
	d.DispatchBatch(ctx)

	stored, err := repo.FindByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusNew, stored.Status)
	assert.Equal(t, 1, stored.AttemptCount)
	assert.Equal(t, "broker down", stored.LastError)
	assert.NotNil(t, stored.NextAttemptAt)
}

func TestDispatcher_DeadLettersAfterRetryBudget(t *testing.T) {
	repo := &fakeOutboxRepo{}
	pub := &fakePublisher{failWith: errors.New("broker down")}
	arch := &fakeArchiver{}
	ctx := context.Background()

	event := shared.NewOutboxEvent("inventory.stock.synced", "SKU-1", []byte(`{}`))
	event.MaxAttempts = 2
	require.NoError(t, repo.Append(ctx, event))

	d := newTestDispatcher(repo, pub, arch)
	// Backoff gates retries on the clock; clear it between rounds
	for i := 0; i < 2; i++ {
		d.DispatchBatch(ctx)
		stored, err := repo.FindByID(ctx, event.ID)
		require.NoError(t, err)
		stored.NextAttemptAt = nil
		stored.ClaimedAt = nil
		require.NoError(t, repo.Update(ctx, stored))
	}

	stored, err := repo.FindByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusError, stored.Status)
	assert.Nil(t, stored.NextAttemptAt)
	assert.Equal(t, []uuid.UUID{event.ID}, arch.archived)
}

func TestDispatcher_DeadLetterExcludedFromClaims(t *testing.T) {
	repo := &fakeOutboxRepo{}
	pub := &fakePublisher{}
	ctx := context.Background()

	dead := shared.NewOutboxEvent("inventory.stock.synced", "SKU-1", []byte(`{}`))
	require.NoError(t, repo.Append(ctx, dead))
	for i := 0; i < dead.MaxAttempts; i++ {
		dead.MarkFailed("nope")
	}
	require.NoError(t, repo.Update(ctx, dead))

	d := newTestDispatcher(repo, pub, nil)
	d.DispatchBatch(ctx)

	assert.Empty(t, pub.published)
}

func TestDispatcher_RetryDeadLetter(t *testing.T) {
	repo := &fakeOutboxRepo{}
	pub := &fakePublisher{}
	ctx := context.Background()

	event := shared.NewOutboxEvent("inventory.stock.synced", "SKU-1", []byte(`{}`))
	require.NoError(t, repo.Append(ctx, event))
	for i := 0; i < event.MaxAttempts; i++ {
		event.MarkFailed("nope")
	}
	require.NoError(t, repo.Update(ctx, event))

	d := newTestDispatcher(repo, pub, nil)
	require.NoError(t, d.RetryDeadLetter(ctx, event))

	d.DispatchBatch(ctx)

	assert.Equal(t, []uuid.UUID{event.ID}, pub.published)
	stored, err := repo.FindByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusSent, stored.Status)
}

func TestDispatcher_RecordsDispatchOutcomes(t *testing.T) {
	repo := &fakeOutboxRepo{}
	pub := &fakePublisher{}
	metrics := newFakeDispatchMetrics()
	ctx := context.Background()

	ok := shared.NewOutboxEvent("inventory.stock.synced", "SKU-1", []byte(`{}`))
	require.NoError(t, repo.Append(ctx, ok))

	d := newTestDispatcher(repo, pub, nil)
	d.SetMetrics(metrics)
	d.DispatchBatch(ctx)

	assert.Equal(t, 1, metrics.published["inventory.stock.synced"])
	assert.Zero(t, metrics.failed["inventory.stock.synced"])

	// A failing publisher counts the failure, and the dead-letter counter
	// fires once the budget runs out
	pub.failWith = errors.New("broker down")
	failing := shared.NewOutboxEvent("inventory.availability.resolved", "req-1", []byte(`{}`))
	failing.MaxAttempts = 1
	require.NoError(t, repo.Append(ctx, failing))
	d.DispatchBatch(ctx)

	assert.Equal(t, 1, metrics.failed["inventory.availability.resolved"])
	assert.Equal(t, 1, metrics.deadLettered["inventory.availability.resolved"])
}

func TestDispatcher_StartStop(t *testing.T) {
	repo := &fakeOutboxRepo{}
	pub := &fakePublisher{}

	d := NewDispatcher(repo, pub, nil, DispatcherConfig{
		BatchSize:    10,
		PollInterval: 10 * time.Millisecond,
		ClaimLease:   time.Minute,
	}, zap.NewNop())

	ctx := context.Background()
	event := shared.NewOutboxEvent("inventory.stock.synced", "SKU-1", []byte(`{}`))
	require.NoError(t, repo.Append(ctx, event))

	require.NoError(t, d.Start(ctx))
	assert.Eventually(t, func() bool {
		stored, err := repo.FindByID(ctx, event.ID)
		return err == nil && stored.Status == shared.OutboxStatusSent
	}, time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, d.Stop(stopCtx))
}

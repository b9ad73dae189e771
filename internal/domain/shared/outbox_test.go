package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutboxEvent(t *testing.T) {
	payload := []byte(`{"sku":"BRK-1001"}`)
	event := NewOutboxEvent("inventory.stock.synced", "BRK-1001", payload)

	assert.Equal(t, OutboxStatusNew, event.Status)
	assert.Equal(t, "inventory.stock.synced", event.Topic)
	assert.Equal(t, "BRK-1001", event.PartitionKey)
	assert.Equal(t, payload, event.Payload)
	assert.Equal(t, 0, event.AttemptCount)
	assert.Equal(t, DefaultMaxAttempts, event.MaxAttempts)
	assert.Nil(t, event.ClaimedAt)
	assert.Nil(t, event.NextAttemptAt)
	assert.NotZero(t, event.ID)
}

func TestOutboxEvent_Claim(t *testing.T) {
	event := NewOutboxEvent("orders.submitted", "order-1", []byte(`{}`))
	now := time.Now()

	err := event.Claim(now)

	require.NoError(t, err)
	require.NotNil(t, event.ClaimedAt)
	assert.Equal(t, now, *event.ClaimedAt)
	// Status stays NEW: a claim is a lease, not a state transition
	assert.Equal(t, OutboxStatusNew, event.Status)
}

func TestOutboxEvent_Claim_NotNew(t *testing.T) {
	event := NewOutboxEvent("orders.submitted", "order-1", []byte(`{}`))
	event.MarkSent()

	err := event.Claim(time.Now())

	assert.Error(t, err)
}

func TestOutboxEvent_ClaimExpired(t *testing.T) {
	event := NewOutboxEvent("orders.submitted", "order-1", []byte(`{}`))
	lease := 30 * time.Second

	// Never claimed: immediately claimable
	assert.True(t, event.ClaimExpired(time.Now(), lease))

	now := time.Now()
	require.NoError(t, event.Claim(now))

	assert.False(t, event.ClaimExpired(now.Add(10*time.Second), lease))
	assert.True(t, event.ClaimExpired(now.Add(31*time.Second), lease))
}

func TestOutboxEvent_MarkSent(t *testing.T) {
	event := NewOutboxEvent("orders.submitted", "order-1", []byte(`{}`))
	require.NoError(t, event.Claim(time.Now()))

	event.MarkSent()

	assert.Equal(t, OutboxStatusSent, event.Status)
	assert.NotNil(t, event.SentAt)
	assert.Nil(t, event.ClaimedAt)
}

func TestOutboxEvent_MarkFailed_Retryable(t *testing.T) {
	event := NewOutboxEvent("orders.submitted", "order-1", []byte(`{}`))
	require.NoError(t, event.Claim(time.Now()))

	event.MarkFailed("broker unreachable")

	// Still NEW so the next poll cycle retries it
	assert.Equal(t, OutboxStatusNew, event.Status)
	assert.Equal(t, 1, event.AttemptCount)
	assert.Equal(t, "broker unreachable", event.LastError)
	assert.Nil(t, event.ClaimedAt)
	require.NotNil(t, event.NextAttemptAt)
	assert.True(t, event.NextAttemptAt.After(time.Now().Add(500*time.Millisecond)))
}

func TestOutboxEvent_MarkFailed_Backoff(t *testing.T) {
	event := NewOutboxEvent("orders.submitted", "order-1", []byte(`{}`))

	event.MarkFailed("attempt 1")
	first := *event.NextAttemptAt
	event.MarkFailed("attempt 2")
	second := *event.NextAttemptAt

	// Exponential: the second window is roughly twice the first
	assert.True(t, second.Sub(first) >= 500*time.Millisecond)
}

func TestOutboxEvent_MarkFailed_DeadLetter(t *testing.T) {
	event := NewOutboxEvent("orders.submitted", "order-1", []byte(`{}`))
	event.MaxAttempts = 3

	for i := 0; i < 3; i++ {
		event.MarkFailed("still down")
	}

	assert.Equal(t, OutboxStatusError, event.Status)
	assert.True(t, event.IsDead())
	assert.Equal(t, 3, event.AttemptCount)
	assert.Nil(t, event.NextAttemptAt)
}

func TestOutboxEvent_ResetForRetry(t *testing.T) {
	event := NewOutboxEvent("orders.submitted", "order-1", []byte(`{}`))
	event.MaxAttempts = 1
	event.MarkFailed("down")
	require.True(t, event.IsDead())

	err := event.ResetForRetry()

	require.NoError(t, err)
	assert.Equal(t, OutboxStatusNew, event.Status)
	assert.Equal(t, 0, event.AttemptCount)
	assert.Empty(t, event.LastError)
}

func TestOutboxEvent_ResetForRetry_NotDead(t *testing.T) {
	event := NewOutboxEvent("orders.submitted", "order-1", []byte(`{}`))

	err := event.ResetForRetry()

	assert.Error(t, err)
}

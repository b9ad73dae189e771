package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/partsbridge/backend/internal/domain/shared"
	"github.com/partsbridge/backend/internal/infrastructure/persistence/models"
)

func setupOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OutboxEventModel{}))
	return db
}

func TestGormOutboxRepository_AppendAssignsAscendingSeq(t *testing.T) {
	repo := NewGormOutboxRepository(setupOutboxDB(t))
	ctx := context.Background()

	first := shared.NewOutboxEvent("inventory.stock.synced", "SKU-1", []byte(`{"n":1}`))
	second := shared.NewOutboxEvent("inventory.stock.synced", "SKU-2", []byte(`{"n":2}`))

	require.NoError(t, repo.Append(ctx, first))
	require.NoError(t, repo.Append(ctx, second))

	assert.Positive(t, first.Seq)
	assert.Greater(t, second.Seq, first.Seq)
}

func TestGormOutboxRepository_UpdateDeliveryState(t *testing.T) {
	repo := NewGormOutboxRepository(setupOutboxDB(t))
	ctx := context.Background()

	event := shared.NewOutboxEvent("inventory.stock.synced", "SKU-1", []byte(`{}`))
	require.NoError(t, repo.Append(ctx, event))

	event.MarkSent()
	require.NoError(t, repo.Update(ctx, event))

	stored, err := repo.FindByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusSent, stored.Status)
	assert.NotNil(t, stored.SentAt)
}

func TestGormOutboxRepository_UpdateUnknownSeq(t *testing.T) {
	repo := NewGormOutboxRepository(setupOutboxDB(t))

	event := shared.NewOutboxEvent("inventory.stock.synced", "SKU-1", []byte(`{}`))
	event.Seq = 9999

	err := repo.Update(context.Background(), event)

	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormOutboxRepository_FindDeadLetters(t *testing.T) {
	repo := NewGormOutboxRepository(setupOutboxDB(t))
	ctx := context.Background()

	dead := shared.NewOutboxEvent("inventory.stock.synced", "SKU-1", []byte(`{}`))
	live := shared.NewOutboxEvent("inventory.stock.synced", "SKU-2", []byte(`{}`))
	require.NoError(t, repo.Append(ctx, dead, live))

	for i := 0; i < dead.MaxAttempts; i++ {
		dead.MarkFailed("downstream refused")
	}
	require.True(t, dead.IsDead())
	require.NoError(t, repo.Update(ctx, dead))

	letters, total, err := repo.FindDeadLetters(ctx, 1, 10)

	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, letters, 1)
	assert.Equal(t, dead.ID, letters[0].ID)
	assert.Equal(t, "downstream refused", letters[0].LastError)
}

func TestGormOutboxRepository_CountByStatus(t *testing.T) {
	repo := NewGormOutboxRepository(setupOutboxDB(t))
	ctx := context.Background()

	sent := shared.NewOutboxEvent("inventory.stock.synced", "SKU-1", []byte(`{}`))
	pending := shared.NewOutboxEvent("inventory.stock.synced", "SKU-2", []byte(`{}`))
	require.NoError(t, repo.Append(ctx, sent, pending))

	sent.MarkSent()
	require.NoError(t, repo.Update(ctx, sent))

	counts, err := repo.CountByStatus(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[shared.OutboxStatusNew])
	assert.Equal(t, int64(1), counts[shared.OutboxStatusSent])
}

func TestGormOutboxRepository_AppendPreservesRetryFields(t *testing.T) {
	repo := NewGormOutboxRepository(setupOutboxDB(t))
	ctx := context.Background()

	event := shared.NewOutboxEvent("inventory.stock.synced", "SKU-1", []byte(`{}`))
	require.NoError(t, repo.Append(ctx, event))

	event.MarkFailed("timeout")
	require.NoError(t, repo.Update(ctx, event))

	stored, err := repo.FindByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusNew, stored.Status)
	assert.Equal(t, 1, stored.AttemptCount)
	require.NotNil(t, stored.NextAttemptAt)
	assert.WithinDuration(t, time.Now().Add(time.Second), *stored.NextAttemptAt, 2*time.Second)
}

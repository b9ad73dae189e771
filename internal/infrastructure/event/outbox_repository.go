// Package event implements outbox persistence, the delivery dispatcher and
// the outbound channel binding.
package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/partsbridge/backend/internal/domain/shared"
	"github.com/partsbridge/backend/internal/infrastructure/persistence/models"
)

// GormOutboxRepository implements OutboxRepository using GORM
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GormOutboxRepository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// Append persists events as part of the surrounding transaction. Seq is
// assigned by the database on insert.
func (r *GormOutboxRepository) Append(ctx context.Context, events ...*shared.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}

	eventModels := make([]*models.OutboxEventModel, len(events))
	for i, e := range events {
		eventModels[i] = models.OutboxEventModelFromDomain(e)
	}

	if err := r.db.WithContext(ctx).Create(eventModels).Error; err != nil {
		return err
	}

	for i, m := range eventModels {
		events[i].Seq = m.Seq
	}
	return nil
}

// ClaimBatch selects up to limit NEW events that are due for an attempt and
// whose claim lease (if any) has expired, in ascending seq order. Rows are
// locked with FOR UPDATE SKIP LOCKED so concurrent dispatchers never block
// on or double-claim the same batch; the lease is stamped and committed
// before the events are returned.
func (r *GormOutboxRepository) ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]*shared.OutboxEvent, error) {
	var claimed []*shared.OutboxEvent

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		var eventModels []models.OutboxEventModel

		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", shared.OutboxStatusNew).
			Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
			Where("claimed_at IS NULL OR claimed_at <= ?", now.Add(-lease)).
			Order("seq ASC").
			Limit(limit).
			Find(&eventModels).Error; err != nil {
			return err
		}

		if len(eventModels) == 0 {
			return nil
		}

		seqs := make([]int64, len(eventModels))
		for i, m := range eventModels {
			seqs[i] = m.Seq
		}
		if err := tx.Model(&models.OutboxEventModel{}).
			Where("seq IN ?", seqs).
			Updates(map[string]any{"claimed_at": now, "updated_at": now}).Error; err != nil {
			return err
		}

		claimed = make([]*shared.OutboxEvent, len(eventModels))
		for i, m := range eventModels {
			e := m.ToDomain()
			e.ClaimedAt = &now
			e.UpdatedAt = now
			claimed[i] = e
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Update persists the event's delivery state
func (r *GormOutboxRepository) Update(ctx context.Context, event *shared.OutboxEvent) error {
	model := models.OutboxEventModelFromDomain(event)
	result := r.db.WithContext(ctx).
		Model(&models.OutboxEventModel{}).
		Where("seq = ?", model.Seq).
		Updates(map[string]any{
			"status":          model.Status,
			"attempt_count":   model.AttemptCount,
			"last_error":      model.LastError,
			"claimed_at":      model.ClaimedAt,
			"next_attempt_at": model.NextAttemptAt,
			"sent_at":         model.SentAt,
			"updated_at":      model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID retrieves a single event by its ID
func (r *GormOutboxRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEvent, error) {
	var model models.OutboxEventModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindDeadLetters retrieves dead-lettered events with pagination
func (r *GormOutboxRepository) FindDeadLetters(ctx context.Context, page, pageSize int) ([]*shared.OutboxEvent, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.OutboxEventModel{}).
		Where("status = ?", shared.OutboxStatusError).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var eventModels []models.OutboxEventModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", shared.OutboxStatusError).
		Order("seq ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&eventModels).Error; err != nil {
		return nil, 0, err
	}

	events := make([]*shared.OutboxEvent, len(eventModels))
	for i, m := range eventModels {
		events[i] = m.ToDomain()
	}
	return events, total, nil
}

// CountByStatus returns the number of events per status
func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	type row struct {
		Status shared.OutboxStatus
		Count  int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&models.OutboxEventModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[shared.OutboxStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// Ensure GormOutboxRepository implements OutboxRepository
var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)

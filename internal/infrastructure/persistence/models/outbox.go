package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/partsbridge/backend/internal/domain/shared"
)

// OutboxEventModel is the persistence model for the transactional outbox.
// Seq is a bigserial assigned on insert; dispatch order follows it.
// The claim index covers the dispatcher's hot query: NEW rows due for an
// attempt, ordered by seq.
type OutboxEventModel struct {
	Seq           int64               `gorm:"primaryKey;autoIncrement"`
	ID            uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex"`
	Topic         string              `gorm:"type:varchar(255);not null"`
	PartitionKey  string              `gorm:"type:varchar(255);not null"`
	Payload       []byte              `gorm:"type:jsonb;not null"`
	Status        shared.OutboxStatus `gorm:"type:varchar(20);not null;default:NEW;index:idx_outbox_claim,priority:1"`
	AttemptCount  int                 `gorm:"not null;default:0"`
	MaxAttempts   int                 `gorm:"not null;default:5"`
	LastError     string              `gorm:"type:text"`
	ClaimedAt     *time.Time
	NextAttemptAt *time.Time `gorm:"index:idx_outbox_claim,priority:2"`
	SentAt        *time.Time
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OutboxEventModel) TableName() string {
	return "outbox_events"
}

// ToDomain converts the persistence model to a domain OutboxEvent
func (m *OutboxEventModel) ToDomain() *shared.OutboxEvent {
	return &shared.OutboxEvent{
		Seq:           m.Seq,
		ID:            m.ID,
		Topic:         m.Topic,
		PartitionKey:  m.PartitionKey,
		Payload:       m.Payload,
		Status:        m.Status,
		AttemptCount:  m.AttemptCount,
		MaxAttempts:   m.MaxAttempts,
		LastError:     m.LastError,
		ClaimedAt:     m.ClaimedAt,
		NextAttemptAt: m.NextAttemptAt,
		SentAt:        m.SentAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain OutboxEvent
func (m *OutboxEventModel) FromDomain(e *shared.OutboxEvent) {
	m.Seq = e.Seq
	m.ID = e.ID
	m.Topic = e.Topic
	m.PartitionKey = e.PartitionKey
	m.Payload = e.Payload
	m.Status = e.Status
	m.AttemptCount = e.AttemptCount
	m.MaxAttempts = e.MaxAttempts
	m.LastError = e.LastError
	m.ClaimedAt = e.ClaimedAt
	m.NextAttemptAt = e.NextAttemptAt
	m.SentAt = e.SentAt
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// OutboxEventModelFromDomain creates a new persistence model from a domain OutboxEvent
func OutboxEventModelFromDomain(e *shared.OutboxEvent) *OutboxEventModel {
	m := &OutboxEventModel{}
	m.FromDomain(e)
	return m
}

package inventory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/partsbridge/backend/internal/domain/shared"
)

// Topics published by the inventory core
const (
	TopicStockSynced = "inventory.stock.synced"
)

// Event types
const (
	EventTypeStockSynced = "inventory.StockSynced"
)

// skuNamespace derives a stable aggregate ID from a SKU string
var skuNamespace = uuid.MustParse("5f2c1c3a-9d1e-4b6a-8f3e-2a7d60f1b9c4")

// StockSyncedLine is one warehouse quantity carried by a StockSyncedEvent
type StockSyncedLine struct {
	WarehouseCode string          `json:"warehouse_code"`
	Quantity      decimal.Decimal `json:"quantity"`
}

// StockSyncedEvent is emitted after the refresher upserts fresh quantities
// for a SKU. It is appended to the outbox in the same transaction as the
// stock rows it describes.
type StockSyncedEvent struct {
	shared.BaseDomainEvent
	SKU      string            `json:"sku"`
	Lines    []StockSyncedLine `json:"lines"`
	SyncedAt time.Time         `json:"synced_at"`
}

// NewStockSyncedEvent creates a stock-synced event for a SKU
func NewStockSyncedEvent(sku string, lines []StockSyncedLine, syncedAt time.Time) *StockSyncedEvent {
	aggID := uuid.NewSHA1(skuNamespace, []byte(sku))
	return &StockSyncedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockSynced, "Stock", aggID),
		SKU:             sku,
		Lines:           lines,
		SyncedAt:        syncedAt,
	}
}

// ToOutbox serializes the event into an outbox row on its topic,
// partitioned by SKU so per-SKU ordering survives horizontal dispatch.
func (e *StockSyncedEvent) ToOutbox() (*shared.OutboxEvent, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("serialize stock synced event: %w", err)
	}
	return shared.NewOutboxEvent(TopicStockSynced, e.SKU, payload), nil
}

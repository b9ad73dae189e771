// Package inventory models per-warehouse stock as synchronized on demand
// from the external ERP.
package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/partsbridge/backend/internal/domain/shared"
)

// Inventory-specific errors
var (
	ErrNegativeQuantity = shared.NewDomainError("NEGATIVE_QUANTITY", "Stock quantity cannot be negative")
	ErrInvalidSKU       = shared.NewDomainError("INVALID_SKU", "SKU is required")
	ErrInvalidWarehouse = shared.NewDomainError("INVALID_WAREHOUSE", "Warehouse code is required")
)

// Stock is the durable quantity of one SKU in one warehouse. Absence of a
// row means "no known stock", not an error. Rows are written exclusively
// by the refresher's upsert; uniqueness of (SKU, warehouse) is enforced by
// the store.
type Stock struct {
	shared.BaseEntity
	SKU           string
	WarehouseCode string
	Quantity      decimal.Decimal
	// SyncedAt carries the ERP response's own timestamp; conflicting
	// concurrent upserts resolve last-write-wins by this value, not by
	// arrival order.
	SyncedAt time.Time
}

// NewStock creates a stock row for an upsert
func NewStock(sku, warehouseCode string, quantity decimal.Decimal, syncedAt time.Time) (*Stock, error) {
	if sku == "" {
		return nil, ErrInvalidSKU
	}
	if warehouseCode == "" {
		return nil, ErrInvalidWarehouse
	}
	if quantity.IsNegative() {
		return nil, ErrNegativeQuantity
	}
	return &Stock{
		BaseEntity:    shared.NewBaseEntity(),
		SKU:           sku,
		WarehouseCode: warehouseCode,
		Quantity:      quantity,
		SyncedAt:      syncedAt,
	}, nil
}

// Warehouse is read-only reference data. ExternalRef is the identifier the
// ERP reports stock under.
type Warehouse struct {
	shared.BaseEntity
	Code        string
	Name        string
	ExternalRef string
}

// InventoryOffset records when a (SKU, warehouse) pair was last
// synchronized. It drives staleness decisions only; quantities live in
// Stock.
type InventoryOffset struct {
	SKU           string
	WarehouseCode string
	LastSyncedAt  time.Time
}

// AvailabilityLine is one warehouse's share of an availability snapshot
type AvailabilityLine struct {
	WarehouseCode string
	WarehouseName string
	Quantity      decimal.Decimal
}

// AvailabilitySnapshot is the computed, never-persisted consolidated view
// of one SKU across warehouses.
type AvailabilitySnapshot struct {
	SKU   string
	Total decimal.Decimal
	Lines []AvailabilityLine
}

// StockRepository defines the interface for stock persistence
type StockRepository interface {
	// UpsertBatch writes rows keyed on (SKU, warehouse code); an existing
	// pair is overwritten, never duplicated.
	UpsertBatch(ctx context.Context, stocks []*Stock) error
	// FindBySKU returns all rows for a SKU ordered by warehouse code.
	// An unknown SKU yields an empty slice, not an error.
	FindBySKU(ctx context.Context, sku string) ([]Stock, error)
}

// WarehouseRepository provides read access to warehouse reference data
type WarehouseRepository interface {
	FindAll(ctx context.Context) ([]Warehouse, error)
	FindByCode(ctx context.Context, code string) (*Warehouse, error)
}

// InventoryOffsetRepository tracks last-synchronized timestamps
type InventoryOffsetRepository interface {
	// LastSyncedBySKUs returns, per SKU, the most recent sync timestamp
	// across its warehouses. SKUs never synced are absent from the map.
	LastSyncedBySKUs(ctx context.Context, skus []string) (map[string]time.Time, error)
	// UpsertBatch writes offsets keyed on (SKU, warehouse code)
	UpsertBatch(ctx context.Context, offsets []*InventoryOffset) error
}

package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/partsbridge/backend/internal/domain/inventory"
)

// StockModel is the persistence model for per-warehouse stock quantities.
// The unique index on (sku, warehouse_code) is what the refresher's upsert
// conflicts on.
type StockModel struct {
	BaseModel
	SKU           string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_stocks_sku_warehouse,priority:1"`
	WarehouseCode string          `gorm:"type:varchar(50);not null;uniqueIndex:idx_stocks_sku_warehouse,priority:2"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	SyncedAt      time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockModel) TableName() string {
	return "stocks"
}

// ToDomain converts the persistence model to a domain Stock
func (m *StockModel) ToDomain() *inventory.Stock {
	return &inventory.Stock{
		BaseEntity:    m.BaseModel.ToDomain(),
		SKU:           m.SKU,
		WarehouseCode: m.WarehouseCode,
		Quantity:      m.Quantity,
		SyncedAt:      m.SyncedAt,
	}
}

// StockModelFromDomain creates a persistence model from a domain Stock
func StockModelFromDomain(s *inventory.Stock) *StockModel {
	m := &StockModel{
		SKU:           s.SKU,
		WarehouseCode: s.WarehouseCode,
		Quantity:      s.Quantity,
		SyncedAt:      s.SyncedAt,
	}
	m.FromDomainBaseEntity(s.BaseEntity)
	return m
}

// WarehouseModel is the persistence model for warehouse reference data
type WarehouseModel struct {
	BaseModel
	Code        string `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name        string `gorm:"type:varchar(255);not null"`
	ExternalRef string `gorm:"type:varchar(100);not null;uniqueIndex"`
}

// TableName returns the table name for GORM
func (WarehouseModel) TableName() string {
	return "warehouses"
}

// ToDomain converts the persistence model to a domain Warehouse
func (m *WarehouseModel) ToDomain() *inventory.Warehouse {
	return &inventory.Warehouse{
		BaseEntity:  m.BaseModel.ToDomain(),
		Code:        m.Code,
		Name:        m.Name,
		ExternalRef: m.ExternalRef,
	}
}

// WarehouseModelFromDomain creates a persistence model from a domain Warehouse
func WarehouseModelFromDomain(w *inventory.Warehouse) *WarehouseModel {
	m := &WarehouseModel{
		Code:        w.Code,
		Name:        w.Name,
		ExternalRef: w.ExternalRef,
	}
	m.FromDomainBaseEntity(w.BaseEntity)
	return m
}

// InventoryOffsetModel tracks when a (sku, warehouse) pair was last synced
type InventoryOffsetModel struct {
	SKU           string    `gorm:"type:varchar(100);not null;primaryKey"`
	WarehouseCode string    `gorm:"type:varchar(50);not null;primaryKey"`
	LastSyncedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InventoryOffsetModel) TableName() string {
	return "inventory_offsets"
}

// ToDomain converts the persistence model to a domain InventoryOffset
func (m *InventoryOffsetModel) ToDomain() *inventory.InventoryOffset {
	return &inventory.InventoryOffset{
		SKU:           m.SKU,
		WarehouseCode: m.WarehouseCode,
		LastSyncedAt:  m.LastSyncedAt,
	}
}

// InventoryOffsetModelFromDomain creates a persistence model from a domain InventoryOffset
func InventoryOffsetModelFromDomain(o *inventory.InventoryOffset) *InventoryOffsetModel {
	return &InventoryOffsetModel{
		SKU:           o.SKU,
		WarehouseCode: o.WarehouseCode,
		LastSyncedAt:  o.LastSyncedAt,
	}
}

package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/partsbridge/backend/internal/domain/inventory"
	"github.com/partsbridge/backend/internal/infrastructure/persistence/models"
)

// GormInventoryOffsetRepository implements InventoryOffsetRepository using GORM
type GormInventoryOffsetRepository struct {
	db *gorm.DB
}

// NewGormInventoryOffsetRepository creates a new GormInventoryOffsetRepository
func NewGormInventoryOffsetRepository(db *gorm.DB) *GormInventoryOffsetRepository {
	return &GormInventoryOffsetRepository{db: db}
}

// LastSyncedBySKUs returns the most recent sync timestamp per SKU across
// its warehouses. SKUs never synced are absent from the result.
func (r *GormInventoryOffsetRepository) LastSyncedBySKUs(ctx context.Context, skus []string) (map[string]time.Time, error) {
	result := make(map[string]time.Time, len(skus))
	if len(skus) == 0 {
		return result, nil
	}

	type row struct {
		SKU          string
		LastSyncedAt time.Time
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&models.InventoryOffsetModel{}).
		Select("sku, MAX(last_synced_at) AS last_synced_at").
		Where("sku IN ?", skus).
		Group("sku").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, row := range rows {
		result[row.SKU] = row.LastSyncedAt
	}
	return result, nil
}

// UpsertBatch writes offsets keyed on (sku, warehouse_code)
func (r *GormInventoryOffsetRepository) UpsertBatch(ctx context.Context, offsets []*inventory.InventoryOffset) error {
	if len(offsets) == 0 {
		return nil
	}

	offsetModels := make([]*models.InventoryOffsetModel, len(offsets))
	for i, o := range offsets {
		offsetModels[i] = models.InventoryOffsetModelFromDomain(o)
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sku"}, {Name: "warehouse_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_synced_at"}),
		}).
		Create(offsetModels).Error
}

// Ensure GormInventoryOffsetRepository implements InventoryOffsetRepository
var _ inventory.InventoryOffsetRepository = (*GormInventoryOffsetRepository)(nil)

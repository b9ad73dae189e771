package persistence

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/partsbridge/backend/internal/domain/inventory"
	"github.com/partsbridge/backend/internal/infrastructure/persistence/models"
)

// GormStockRepository implements StockRepository using GORM
type GormStockRepository struct {
	db *gorm.DB
}

// NewGormStockRepository creates a new GormStockRepository
func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

// UpsertBatch writes stock rows keyed on (sku, warehouse_code). An existing
// pair is overwritten only when the incoming synced_at is at least as new as
// the stored one, so a late-arriving stale response cannot clobber fresher
// quantities; the row identity and created_at survive.
func (r *GormStockRepository) UpsertBatch(ctx context.Context, stocks []*inventory.Stock) error {
	if len(stocks) == 0 {
		return nil
	}

	stockModels := make([]*models.StockModel, len(stocks))
	for i, s := range stocks {
		stockModels[i] = models.StockModelFromDomain(s)
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sku"}, {Name: "warehouse_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "synced_at", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Lte{
					Column: clause.Column{Table: "stocks", Name: "synced_at"},
					Value:  gorm.Expr("excluded.synced_at"),
				},
			}},
		}).
		Create(stockModels).Error
}

// FindBySKU returns all stock rows for a SKU ordered by warehouse code.
// An unknown SKU yields an empty slice.
func (r *GormStockRepository) FindBySKU(ctx context.Context, sku string) ([]inventory.Stock, error) {
	var stockModels []models.StockModel
	if err := r.db.WithContext(ctx).
		Where("sku = ?", sku).
		Order("warehouse_code ASC").
		Find(&stockModels).Error; err != nil {
		return nil, err
	}

	stocks := make([]inventory.Stock, len(stockModels))
	for i, model := range stockModels {
		stocks[i] = *model.ToDomain()
	}
	return stocks, nil
}

// Ensure GormStockRepository implements StockRepository
var _ inventory.StockRepository = (*GormStockRepository)(nil)

package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/partsbridge/backend/internal/domain/catalog"
	"github.com/partsbridge/backend/internal/infrastructure/persistence/models"
)

// GormProductMappingRepository implements ProductMappingRepository using GORM
type GormProductMappingRepository struct {
	db *gorm.DB
}

// NewGormProductMappingRepository creates a new GormProductMappingRepository
func NewGormProductMappingRepository(db *gorm.DB) *GormProductMappingRepository {
	return &GormProductMappingRepository{db: db}
}

// Save creates or updates a mapping. A second save of the same normalized
// (brand, part_code) pair overwrites the SKU rather than erroring; the pair
// is the business key.
func (r *GormProductMappingRepository) Save(ctx context.Context, mapping *catalog.ProductMapping) error {
	model := models.ProductMappingModelFromDomain(mapping)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "brand"}, {Name: "part_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"sku", "updated_at"}),
		}).
		Create(model).Error
}

// FindByBrandPartCode finds the mapping for a normalized (brand, part code)
// pair. Returns ErrMappingNotFound when no mapping exists.
func (r *GormProductMappingRepository) FindByBrandPartCode(ctx context.Context, brand, partCode string) (*catalog.ProductMapping, error) {
	var model models.ProductMappingModel
	if err := r.db.WithContext(ctx).
		Where("brand = ? AND part_code = ?", brand, partCode).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindBySKU returns all mappings that resolve to the given SKU
func (r *GormProductMappingRepository) FindBySKU(ctx context.Context, sku string) ([]catalog.ProductMapping, error) {
	var mappingModels []models.ProductMappingModel
	if err := r.db.WithContext(ctx).
		Where("sku = ?", sku).
		Order("brand ASC, part_code ASC").
		Find(&mappingModels).Error; err != nil {
		return nil, err
	}

	mappings := make([]catalog.ProductMapping, len(mappingModels))
	for i, model := range mappingModels {
		mappings[i] = *model.ToDomain()
	}
	return mappings, nil
}

// Delete deletes a mapping
func (r *GormProductMappingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.ProductMappingModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return catalog.ErrMappingNotFound
	}
	return nil
}

// Ensure GormProductMappingRepository implements ProductMappingRepository
var _ catalog.ProductMappingRepository = (*GormProductMappingRepository)(nil)

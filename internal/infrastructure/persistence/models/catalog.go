package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/partsbridge/backend/internal/domain/catalog"
)

// ProductMappingModel is the persistence model for brand+part-code to SKU
// mappings. Brand and part code are stored normalized; the unique index is
// the lookup key of the resolver.
type ProductMappingModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Brand     string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_mappings_brand_code,priority:1"`
	PartCode  string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_mappings_brand_code,priority:2"`
	SKU       string    `gorm:"type:varchar(100);not null;index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductMappingModel) TableName() string {
	return "product_mappings"
}

// ToDomain converts the persistence model to a domain ProductMapping
func (m *ProductMappingModel) ToDomain() *catalog.ProductMapping {
	return &catalog.ProductMapping{
		ID:        m.ID,
		Brand:     m.Brand,
		PartCode:  m.PartCode,
		SKU:       m.SKU,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ProductMappingModelFromDomain creates a persistence model from a domain ProductMapping
func ProductMappingModelFromDomain(p *catalog.ProductMapping) *ProductMappingModel {
	return &ProductMappingModel{
		ID:        p.ID,
		Brand:     p.Brand,
		PartCode:  p.PartCode,
		SKU:       p.SKU,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

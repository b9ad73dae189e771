// Package catalog provides application services over product mappings.
package catalog

import (
	"context"

	"go.uber.org/zap"

	"github.com/partsbridge/backend/internal/domain/catalog"
)

// MappingService resolves storefront part identities to canonical SKUs and
// maintains the mapping table.
type MappingService struct {
	mappingRepo catalog.ProductMappingRepository
	logger      *zap.Logger
}

// NewMappingService creates a mapping service
func NewMappingService(mappingRepo catalog.ProductMappingRepository, logger *zap.Logger) *MappingService {
	return &MappingService{
		mappingRepo: mappingRepo,
		logger:      logger,
	}
}

// SKUByBrandOEM resolves a brand plus manufacturer code to a SKU. Inputs
// are normalized first, so cosmetic variants of the same code resolve
// identically. Returns catalog.ErrMappingNotFound when no mapping exists.
func (s *MappingService) SKUByBrandOEM(ctx context.Context, brand, oemCode string) (string, error) {
	normBrand := catalog.NormalizeBrand(brand)
	normCode := catalog.NormalizePartCode(oemCode)
	if normBrand == "" || normCode == "" {
		return "", catalog.ErrMappingNotFound
	}

	mapping, err := s.mappingRepo.FindByBrandPartCode(ctx, normBrand, normCode)
	if err != nil {
		return "", err
	}
	return mapping.SKU, nil
}

// CreateMapping registers a (brand, OEM code) to SKU mapping
func (s *MappingService) CreateMapping(ctx context.Context, brand, oemCode, sku string) (*catalog.ProductMapping, error) {
	mapping, err := catalog.NewProductMapping(brand, oemCode, sku)
	if err != nil {
		return nil, err
	}
	if err := s.mappingRepo.Save(ctx, mapping); err != nil {
		return nil, err
	}
	s.logger.Info("product mapping created",
		zap.String("brand", mapping.Brand),
		zap.String("part_code", mapping.PartCode),
		zap.String("sku", mapping.SKU))
	return mapping, nil
}

package inventory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/partsbridge/backend/internal/domain/inventory"
)

// AvailabilityService computes consolidated availability across warehouses.
// Pure read: it never triggers a refresh and never writes. Callers that
// need current numbers call RefreshService first.
type AvailabilityService struct {
	stockRepo     inventory.StockRepository
	warehouseRepo inventory.WarehouseRepository
}

// NewAvailabilityService creates an availability service
func NewAvailabilityService(
	stockRepo inventory.StockRepository,
	warehouseRepo inventory.WarehouseRepository,
) *AvailabilityService {
	return &AvailabilityService{
		stockRepo:     stockRepo,
		warehouseRepo: warehouseRepo,
	}
}

// GetBySKU returns the per-warehouse breakdown and total for one SKU.
// A SKU with no stored rows yields a zero total and empty lines, not an
// error; absence of data is a valid answer.
func (s *AvailabilityService) GetBySKU(ctx context.Context, sku string) (*AvailabilityDTO, error) {
	stocks, err := s.stockRepo.FindBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}

	snapshot := &inventory.AvailabilitySnapshot{
		SKU:   sku,
		Total: decimal.Zero,
		Lines: make([]inventory.AvailabilityLine, 0, len(stocks)),
	}
	for _, stock := range stocks {
		name := stock.WarehouseCode
		if warehouse, err := s.warehouseRepo.FindByCode(ctx, stock.WarehouseCode); err == nil && warehouse != nil {
			name = warehouse.Name
		}
		snapshot.Lines = append(snapshot.Lines, inventory.AvailabilityLine{
			WarehouseCode: stock.WarehouseCode,
			WarehouseName: name,
			Quantity:      stock.Quantity,
		})
		snapshot.Total = snapshot.Total.Add(stock.Quantity)
	}
	return toAvailabilityDTO(snapshot), nil
}

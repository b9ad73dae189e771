package inventory

import (
	"github.com/shopspring/decimal"

	"github.com/partsbridge/backend/internal/domain/inventory"
)

// RefreshResult summarizes one refresh call
type RefreshResult struct {
	// Refreshed lists SKUs whose quantities were fetched and upserted
	Refreshed []string `json:"refreshed"`
	// Fresh lists SKUs skipped because their data was within the TTL
	Fresh []string `json:"fresh"`
	// Unmapped lists SKUs with no product mapping; they cannot be queried
	// against the ERP and are skipped without failing the call
	Unmapped []string `json:"unmapped"`
}

// AvailabilityLineDTO is one warehouse line of an availability response
type AvailabilityLineDTO struct {
	WarehouseCode string          `json:"warehouse_code"`
	WarehouseName string          `json:"warehouse_name"`
	Quantity      decimal.Decimal `json:"quantity"`
}

// AvailabilityDTO is the consolidated availability of one SKU
type AvailabilityDTO struct {
	SKU   string                `json:"sku"`
	Total decimal.Decimal       `json:"total"`
	Lines []AvailabilityLineDTO `json:"lines"`
}

func toAvailabilityDTO(snapshot *inventory.AvailabilitySnapshot) *AvailabilityDTO {
	lines := make([]AvailabilityLineDTO, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		lines = append(lines, AvailabilityLineDTO{
			WarehouseCode: line.WarehouseCode,
			WarehouseName: line.WarehouseName,
			Quantity:      line.Quantity,
		})
	}
	return &AvailabilityDTO{
		SKU:   snapshot.SKU,
		Total: snapshot.Total,
		Lines: lines,
	}
}

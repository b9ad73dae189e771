package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RemoteStockLine is one (part code, warehouse) quantity as reported by
// the ERP. WarehouseRef is the ERP's own warehouse identifier and must be
// resolved against Warehouse.ExternalRef before persisting.
type RemoteStockLine struct {
	PartCode     string
	WarehouseRef string
	Quantity     decimal.Decimal
	// AsOf is the ERP's timestamp for the reported quantity
	AsOf time.Time
}

// BulkStockClient fetches quantities for a batch of part codes in a single
// round trip. Implementations wrap network timeouts; any failure is
// reported as shared.ErrUpstreamUnavailable.
type BulkStockClient interface {
	FetchStock(ctx context.Context, partCodes []string) ([]RemoteStockLine, error)
}

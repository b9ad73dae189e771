package inventory

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/partsbridge/backend/internal/domain/catalog"
	"github.com/partsbridge/backend/internal/domain/inventory"
	"github.com/partsbridge/backend/internal/domain/shared"
)

// DefaultStalenessTTL is how long fetched quantities stay fresh
const DefaultStalenessTTL = 60 * time.Second

// RefreshService synchronizes per-warehouse quantities from the ERP on
// demand. Callers hand it the SKUs a page or an order draft is about to
// show; the service fetches only what is stale and persists quantities,
// offsets and the resulting events in one transaction.
type RefreshService struct {
	scope         TransactionScope
	offsetRepo    inventory.InventoryOffsetRepository
	warehouseRepo inventory.WarehouseRepository
	mappingRepo   catalog.ProductMappingRepository
	erpClient     inventory.BulkStockClient
	ttl           time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// NewRefreshService creates a refresh service with the given staleness TTL.
// A non-positive ttl falls back to DefaultStalenessTTL.
func NewRefreshService(
	scope TransactionScope,
	offsetRepo inventory.InventoryOffsetRepository,
	warehouseRepo inventory.WarehouseRepository,
	mappingRepo catalog.ProductMappingRepository,
	erpClient inventory.BulkStockClient,
	ttl time.Duration,
	logger *zap.Logger,
) *RefreshService {
	if ttl <= 0 {
		ttl = DefaultStalenessTTL
	}
	return &RefreshService{
		scope:         scope,
		offsetRepo:    offsetRepo,
		warehouseRepo: warehouseRepo,
		mappingRepo:   mappingRepo,
		erpClient:     erpClient,
		ttl:           ttl,
		logger:        logger,
		now:           time.Now,
	}
}

// RefreshSKUs brings the given SKUs up to date. Duplicates in the input are
// collapsed; SKUs whose last sync is within the TTL are skipped. All stale
// SKUs go to the ERP in a single batched call. The ERP response drives the
// upserts: a (SKU, warehouse) pair absent from the response keeps its stored
// quantity untouched.
func (s *RefreshService) RefreshSKUs(ctx context.Context, skus []string) (*RefreshResult, error) {
	result := &RefreshResult{
		Refreshed: []string{},
		Fresh:     []string{},
		Unmapped:  []string{},
	}
	unique := dedupe(skus)
	if len(unique) == 0 {
		return result, nil
	}

	now := s.now()
	lastSynced, err := s.offsetRepo.LastSyncedBySKUs(ctx, unique)
	if err != nil {
		return nil, err
	}

	var stale []string
	for _, sku := range unique {
		if at, ok := lastSynced[sku]; ok && now.Sub(at) < s.ttl {
			result.Fresh = append(result.Fresh, sku)
			continue
		}
		stale = append(stale, sku)
	}
	if len(stale) == 0 {
		return result, nil
	}

	// Resolve SKUs to the part codes the ERP speaks. One SKU can map to
	// several brand variants; all of them are queried.
	partCodeToSKU := make(map[string]string)
	var partCodes []string
	skuHasMapping := make(map[string]bool, len(stale))
	for _, sku := range stale {
		mappings, err := s.mappingRepo.FindBySKU(ctx, sku)
		if err != nil && !errors.Is(err, catalog.ErrMappingNotFound) {
			return nil, err
		}
		if len(mappings) == 0 {
			result.Unmapped = append(result.Unmapped, sku)
			continue
		}
		skuHasMapping[sku] = true
		for _, m := range mappings {
			if _, seen := partCodeToSKU[m.PartCode]; !seen {
				partCodeToSKU[m.PartCode] = sku
				partCodes = append(partCodes, m.PartCode)
			}
		}
	}
	if len(partCodes) == 0 {
		return result, nil
	}

	lines, err := s.erpClient.FetchStock(ctx, partCodes)
	if err != nil {
		return nil, err
	}

	refByCode, err := s.warehouseRefIndex(ctx)
	if err != nil {
		return nil, err
	}

	stocks, offsets, events := s.buildUpserts(lines, partCodeToSKU, refByCode, now)

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if len(stocks) > 0 {
			if err := repos.StockRepo().UpsertBatch(ctx, stocks); err != nil {
				return err
			}
		}
		if len(offsets) > 0 {
			if err := repos.OffsetRepo().UpsertBatch(ctx, offsets); err != nil {
				return err
			}
		}
		if len(events) > 0 {
			return repos.OutboxRepo().Append(ctx, events...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for sku := range skuHasMapping {
		result.Refreshed = append(result.Refreshed, sku)
	}
	sort.Strings(result.Refreshed)

	s.logger.Info("inventory refresh completed",
		zap.Int("requested", len(unique)),
		zap.Int("refreshed", len(result.Refreshed)),
		zap.Int("fresh", len(result.Fresh)),
		zap.Int("unmapped", len(result.Unmapped)))
	return result, nil
}

// buildUpserts turns ERP lines into stock rows, offsets and outbox events.
// Lines for unknown warehouses or unknown part codes are dropped with a
// warning. When the ERP reports the same pair twice the later AsOf wins.
func (s *RefreshService) buildUpserts(
	lines []inventory.RemoteStockLine,
	partCodeToSKU map[string]string,
	refByCode map[string]string,
	now time.Time,
) ([]*inventory.Stock, []*inventory.InventoryOffset, []*shared.OutboxEvent) {
	type pairKey struct{ sku, warehouse string }
	latest := make(map[pairKey]*inventory.Stock)

	for _, line := range lines {
		sku, ok := partCodeToSKU[catalog.NormalizePartCode(line.PartCode)]
		if !ok {
			s.logger.Warn("erp reported unknown part code", zap.String("part_code", line.PartCode))
			continue
		}
		warehouseCode, ok := refByCode[line.WarehouseRef]
		if !ok {
			s.logger.Warn("erp reported unknown warehouse",
				zap.String("warehouse_ref", line.WarehouseRef),
				zap.String("sku", sku))
			continue
		}
		stock, err := inventory.NewStock(sku, warehouseCode, line.Quantity, line.AsOf)
		if err != nil {
			s.logger.Warn("dropping invalid stock line",
				zap.String("sku", sku),
				zap.String("warehouse", warehouseCode),
				zap.Error(err))
			continue
		}
		key := pairKey{sku: sku, warehouse: warehouseCode}
		if existing, ok := latest[key]; !ok || line.AsOf.After(existing.SyncedAt) {
			latest[key] = stock
		}
	}

	bySKU := make(map[string][]*inventory.Stock)
	stocks := make([]*inventory.Stock, 0, len(latest))
	offsets := make([]*inventory.InventoryOffset, 0, len(latest))
	for key, stock := range latest {
		stocks = append(stocks, stock)
		offsets = append(offsets, &inventory.InventoryOffset{
			SKU:           key.sku,
			WarehouseCode: key.warehouse,
			LastSyncedAt:  now,
		})
		bySKU[key.sku] = append(bySKU[key.sku], stock)
	}
	sort.Slice(stocks, func(i, j int) bool {
		if stocks[i].SKU != stocks[j].SKU {
			return stocks[i].SKU < stocks[j].SKU
		}
		return stocks[i].WarehouseCode < stocks[j].WarehouseCode
	})

	var events []*shared.OutboxEvent
	skus := make([]string, 0, len(bySKU))
	for sku := range bySKU {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	for _, sku := range skus {
		rows := bySKU[sku]
		sort.Slice(rows, func(i, j int) bool { return rows[i].WarehouseCode < rows[j].WarehouseCode })
		eventLines := make([]inventory.StockSyncedLine, 0, len(rows))
		for _, row := range rows {
			eventLines = append(eventLines, inventory.StockSyncedLine{
				WarehouseCode: row.WarehouseCode,
				Quantity:      row.Quantity,
			})
		}
		outbox, err := inventory.NewStockSyncedEvent(sku, eventLines, now).ToOutbox()
		if err != nil {
			s.logger.Error("failed to serialize stock synced event",
				zap.String("sku", sku), zap.Error(err))
			continue
		}
		events = append(events, outbox)
	}
	return stocks, offsets, events
}

func (s *RefreshService) warehouseRefIndex(ctx context.Context) (map[string]string, error) {
	warehouses, err := s.warehouseRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]string, len(warehouses))
	for _, w := range warehouses {
		index[w.ExternalRef] = w.Code
	}
	return index, nil
}

func dedupe(skus []string) []string {
	seen := make(map[string]struct{}, len(skus))
	unique := make([]string, 0, len(skus))
	for _, sku := range skus {
		if sku == "" {
			continue
		}
		if _, ok := seen[sku]; ok {
			continue
		}
		seen[sku] = struct{}{}
		unique = append(unique, sku)
	}
	return unique
}

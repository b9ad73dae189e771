package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/partsbridge/backend/internal/domain/inventory"
	"github.com/partsbridge/backend/internal/domain/shared"
	"github.com/partsbridge/backend/internal/infrastructure/persistence/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.StockModel{},
		&models.WarehouseModel{},
		&models.InventoryOffsetModel{},
	))
	return db
}

func mustStock(t *testing.T, sku, warehouse string, qty int64, syncedAt time.Time) *inventory.Stock {
	t.Helper()
	stock, err := inventory.NewStock(sku, warehouse, decimal.NewFromInt(qty), syncedAt)
	require.NoError(t, err)
	return stock
}

func TestStockRepository_UpsertInsertsAndOverwrites(t *testing.T) {
	repo := NewGormStockRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.UpsertBatch(ctx, []*inventory.Stock{
		mustStock(t, "SKU-1", "MAIN", 5, now),
	}))
	// Same pair again with a new quantity must overwrite, not duplicate
	require.NoError(t, repo.UpsertBatch(ctx, []*inventory.Stock{
		mustStock(t, "SKU-1", "MAIN", 9, now.Add(time.Minute)),
	}))

	stocks, err := repo.FindBySKU(ctx, "SKU-1")
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.True(t, stocks[0].Quantity.Equal(decimal.NewFromInt(9)))
}

func TestStockRepository_StaleSyncDoesNotOverwriteNewer(t *testing.T) {
	repo := NewGormStockRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertBatch(ctx, []*inventory.Stock{
		mustStock(t, "SKU-1", "MAIN", 9, base.Add(time.Minute)),
	}))
	// A response snapshotted before the stored row arrives late. Its write
	// must be a no-op; ordering follows the response timestamps, not the
	// order the writes reach the database.
	require.NoError(t, repo.UpsertBatch(ctx, []*inventory.Stock{
		mustStock(t, "SKU-1", "MAIN", 5, base),
	}))

	stocks, err := repo.FindBySKU(ctx, "SKU-1")
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.True(t, stocks[0].Quantity.Equal(decimal.NewFromInt(9)))
	assert.True(t, stocks[0].SyncedAt.Equal(base.Add(time.Minute)))
}

func TestStockRepository_EqualSyncTimestampOverwrites(t *testing.T) {
	repo := NewGormStockRepository(setupTestDB(t))
	ctx := context.Background()
	asOf := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertBatch(ctx, []*inventory.Stock{
		mustStock(t, "SKU-1", "MAIN", 5, asOf),
	}))
	require.NoError(t, repo.UpsertBatch(ctx, []*inventory.Stock{
		mustStock(t, "SKU-1", "MAIN", 7, asOf),
	}))

	stocks, err := repo.FindBySKU(ctx, "SKU-1")
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.True(t, stocks[0].Quantity.Equal(decimal.NewFromInt(7)))
}

func TestStockRepository_FindBySKUOrdersByWarehouse(t *testing.T) {
	repo := NewGormStockRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.UpsertBatch(ctx, []*inventory.Stock{
		mustStock(t, "SKU-1", "WEST", 1, now),
		mustStock(t, "SKU-1", "EAST", 2, now),
		mustStock(t, "SKU-2", "MAIN", 3, now),
	}))

	stocks, err := repo.FindBySKU(ctx, "SKU-1")
	require.NoError(t, err)
	require.Len(t, stocks, 2)
	assert.Equal(t, "EAST", stocks[0].WarehouseCode)
	assert.Equal(t, "WEST", stocks[1].WarehouseCode)
}

func TestStockRepository_UnknownSKUIsEmptyNotError(t *testing.T) {
	repo := NewGormStockRepository(setupTestDB(t))

	stocks, err := repo.FindBySKU(context.Background(), "SKU-NONE")

	require.NoError(t, err)
	assert.Empty(t, stocks)
}

func TestOffsetRepository_LastSyncedBySKUsTakesMaxAcrossWarehouses(t *testing.T) {
	repo := NewGormInventoryOffsetRepository(setupTestDB(t))
	ctx := context.Background()
	older := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)
	newer := older.Add(30 * time.Minute)

	require.NoError(t, repo.UpsertBatch(ctx, []*inventory.InventoryOffset{
		{SKU: "SKU-1", WarehouseCode: "MAIN", LastSyncedAt: older},
		{SKU: "SKU-1", WarehouseCode: "EAST", LastSyncedAt: newer},
		{SKU: "SKU-2", WarehouseCode: "MAIN", LastSyncedAt: older},
	}))

	synced, err := repo.LastSyncedBySKUs(ctx, []string{"SKU-1", "SKU-2", "SKU-GHOST"})

	require.NoError(t, err)
	require.Len(t, synced, 2)
	assert.True(t, synced["SKU-1"].Equal(newer))
	assert.True(t, synced["SKU-2"].Equal(older))
	_, ok := synced["SKU-GHOST"]
	assert.False(t, ok)
}

func TestOffsetRepository_UpsertOverwrites(t *testing.T) {
	repo := NewGormInventoryOffsetRepository(setupTestDB(t))
	ctx := context.Background()
	first := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	require.NoError(t, repo.UpsertBatch(ctx, []*inventory.InventoryOffset{
		{SKU: "SKU-1", WarehouseCode: "MAIN", LastSyncedAt: first},
	}))
	require.NoError(t, repo.UpsertBatch(ctx, []*inventory.InventoryOffset{
		{SKU: "SKU-1", WarehouseCode: "MAIN", LastSyncedAt: second},
	}))

	synced, err := repo.LastSyncedBySKUs(ctx, []string{"SKU-1"})
	require.NoError(t, err)
	assert.True(t, synced["SKU-1"].Equal(second))
}

func TestWarehouseRepository_FindByCode(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormWarehouseRepository(db)
	ctx := context.Background()

	warehouse := &inventory.Warehouse{
		BaseEntity:  shared.NewBaseEntity(),
		Code:        "MAIN",
		Name:        "Main DC",
		ExternalRef: "ERP-MAIN",
	}
	require.NoError(t, repo.Save(ctx, warehouse))

	found, err := repo.FindByCode(ctx, "MAIN")
	require.NoError(t, err)
	assert.Equal(t, "Main DC", found.Name)
	assert.Equal(t, "ERP-MAIN", found.ExternalRef)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

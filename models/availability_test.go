package models_test

import (
	"testing"

	"github.com/mmdatafocus/stock_ledger/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAvailabilityUndoesEditedDocument(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "2024-01-01", f.itemA, "10")

	editing := []models.StockMovement{
		{ItemId: f.itemA, WarehouseId: f.wh1, Qty: dec("-4")},
		{ItemId: f.itemA, WarehouseId: f.wh1, Qty: dec("3")},
		// other warehouses are ignored
		{ItemId: f.itemA, WarehouseId: f.wh2, Qty: dec("-7")},
	}
	shortfalls, err := models.CheckAvailability(f.db, f.wh1, []models.StockLine{{ItemId: f.itemA, Qty: dec("11")}}, editing)
	require.NoError(t, err)
	assert.Empty(t, shortfalls)

	shortfalls, err = models.CheckAvailability(f.db, f.wh1, []models.StockLine{
		{ItemId: f.itemA, Qty: dec("8")},
		{ItemId: f.itemB, Qty: dec("1")},
		{ItemId: f.itemA, Qty: dec("4")},
	}, editing)
	require.NoError(t, err)
	require.Len(t, shortfalls, 2)
	assert.Equal(t, f.itemA, shortfalls[0].ItemId)
	requireDecimal(t, "11", shortfalls[0].Available)
	requireDecimal(t, "12", shortfalls[0].Requested)
	requireDecimal(t, "1", shortfalls[0].Shortfall)
	assert.Equal(t, f.itemB, shortfalls[1].ItemId)
	requireDecimal(t, "0", shortfalls[1].Available)
}

func TestCheckAvailabilityToleratesEpsilon(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "2024-01-01", f.itemA, "10")

	shortfalls, err := models.CheckAvailability(f.db, f.wh1, []models.StockLine{{ItemId: f.itemA, Qty: dec("10.00005")}}, nil)
	require.NoError(t, err)
	assert.Empty(t, shortfalls)
}

func TestTransferDirectionFlipCannotSpendItsOwnInbound(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "2024-01-01", f.itemA, "10")

	wh1, wh2 := f.wh1, f.wh2
	tr, err := models.CreateStockTransfer(f.ctx, f.db, models.NewStockTransfer{
		SourceWarehouseId:      wh1,
		DestinationWarehouseId: &wh2,
		TransferDate:           day("2024-01-02"),
		Details:                []models.NewStockTransferDetail{{ItemId: f.itemA, Qty: dec("10")}},
	})
	require.NoError(t, err)

	// Re-saving in the same direction posts against its own reversal.
	_, err = models.UpdateStockTransfer(f.ctx, f.db, tr.ID, models.NewStockTransfer{
		SourceWarehouseId:      wh1,
		DestinationWarehouseId: &wh2,
		TransferDate:           day("2024-01-02"),
		Details:                []models.NewStockTransferDetail{{ItemId: f.itemA, Qty: dec("10")}},
	})
	require.NoError(t, err)

	_, err = models.UpdateStockTransfer(f.ctx, f.db, tr.ID, models.NewStockTransfer{
		SourceWarehouseId:      wh2,
		DestinationWarehouseId: &wh1,
		TransferDate:           day("2024-01-02"),
		Details:                []models.NewStockTransferDetail{{ItemId: f.itemA, Qty: dec("10")}},
	})
	var short *models.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, wh2, short.WarehouseId)
	requireDecimal(t, "0", short.Shortfalls[0].Available)

	requireDecimal(t, "0", f.balance(t, f.itemA, f.wh1))
	requireDecimal(t, "10", f.balance(t, f.itemA, f.wh2))
}

func TestProductionOutputTurnedIntoConsumptionIsGuarded(t *testing.T) {
	f := newFixture(t)
	run, err := models.CreateProductionRun(f.ctx, f.db, models.NewProductionRun{
		WarehouseId:    f.wh1,
		ProductionDate: day("2024-01-02"),
		Details: []models.NewProductionRunDetail{
			{ItemId: f.itemA, Role: models.ProductionRoleOutput, Qty: dec("10")},
		},
	})
	require.NoError(t, err)
	requireDecimal(t, "10", f.balance(t, f.itemA, f.wh1))

	_, err = models.UpdateProductionRun(f.ctx, f.db, run.ID, models.NewProductionRun{
		WarehouseId:    f.wh1,
		ProductionDate: day("2024-01-02"),
		Details: []models.NewProductionRunDetail{
			{ItemId: f.itemA, Role: models.ProductionRoleConsumption, Qty: dec("10"), Rate: dec("1")},
			{ItemId: f.itemB, Role: models.ProductionRoleOutput, Qty: dec("1")},
		},
	})
	var short *models.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Len(t, short.Shortfalls, 1)
	assert.Equal(t, f.itemA, short.Shortfalls[0].ItemId)
	requireDecimal(t, "0", short.Shortfalls[0].Available)

	requireDecimal(t, "10", f.balance(t, f.itemA, f.wh1))
	assert.True(t, f.balance(t, f.itemB, f.wh1).IsZero())
}

package models_test

import (
	"testing"

	"github.com/mmdatafocus/stock_ledger/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestReferenceTypeStorageForm(t *testing.T) {
	ops := []models.LedgerOperation{
		models.OperationCreate,
		models.OperationUpdate,
		models.OperationUpdateReversal,
		models.OperationReversal,
		models.OperationRestore,
	}
	for _, f := range models.AllFamilies {
		for _, op := range ops {
			rt := models.NewReferenceType(f, op)
			parsed, err := models.ParseReferenceType(rt.String())
			require.NoError(t, err)
			assert.Equal(t, rt, parsed)
		}
	}

	rt, err := models.ParseReferenceType("SALE_UPDATE_REVERSAL")
	require.NoError(t, err)
	assert.Equal(t, models.FamilySale, rt.Family)
	assert.Equal(t, models.OperationUpdateReversal, rt.Operation)
	assert.Equal(t, "PRODUCTION_RESTORE", models.NewReferenceType(models.FamilyProduction, models.OperationRestore).String())

	for _, bad := range []string{"", "SALES", "PURCHASE_", "SALE_VOID", "INVOICE_REVERSAL"} {
		_, err := models.ParseReferenceType(bad)
		assert.Errorf(t, err, "expected %q to be rejected", bad)
	}
}

func TestAppendLedgerEntryRequiresFields(t *testing.T) {
	f := newFixture(t)
	rt := models.NewReferenceType(models.FamilyPurchase, models.OperationCreate)

	_, err := models.AppendLedgerEntry(f.db, 0, f.wh1, dec("1"), rt, 1, day("2024-01-01"))
	assert.Error(t, err)
	_, err = models.AppendLedgerEntry(f.db, f.itemA, f.wh1, dec("1"), models.ReferenceType{}, 1, day("2024-01-01"))
	assert.Error(t, err)

	e, err := models.AppendLedgerEntry(f.db, f.itemA, f.wh1, dec("-3.5"), rt, 9, day("2024-01-01"))
	require.NoError(t, err)

	var stored models.LedgerEntry
	require.NoError(t, f.db.First(&stored, e.ID).Error)
	assert.Equal(t, rt, stored.ReferenceType)
	requireDecimal(t, "-3.5", stored.Qty)

	var raw string
	require.NoError(t, f.db.Raw("SELECT reference_type FROM ledger_entries WHERE id = ?", e.ID).Scan(&raw).Error)
	assert.Equal(t, "PURCHASE", raw)
}

func TestBalanceAsOfAndEpsilon(t *testing.T) {
	f := newFixture(t)
	rt := models.NewReferenceType(models.FamilyPurchase, models.OperationCreate)

	_, err := models.AppendLedgerEntry(f.db, f.itemA, f.wh1, dec("100"), rt, 1, day("2024-01-01"))
	require.NoError(t, err)
	_, err = models.AppendLedgerEntry(f.db, f.itemA, f.wh1, dec("-30"), rt, 2, day("2024-01-05"))
	require.NoError(t, err)
	_, err = models.AppendLedgerEntry(f.db, f.itemA, f.wh2, dec("7"), rt, 3, day("2024-01-02"))
	require.NoError(t, err)

	requireDecimal(t, "70", f.balance(t, f.itemA, f.wh1))

	asOf := day("2024-01-04")
	b, err := models.Balance(f.db, f.itemA, f.wh1, &asOf)
	require.NoError(t, err)
	requireDecimal(t, "100", b)

	asOf = day("2023-12-31")
	b, err = models.Balance(f.db, f.itemA, f.wh1, &asOf)
	require.NoError(t, err)
	assert.True(t, b.IsZero())

	for _, q := range []string{"0.1", "0.2", "-0.3"} {
		_, err = models.AppendLedgerEntry(f.db, f.itemB, f.wh1, dec(q), rt, 4, day("2024-01-01"))
		require.NoError(t, err)
	}
	assert.True(t, f.balance(t, f.itemB, f.wh1).IsZero(), "rounding noise reads as zero")
}

func TestBalanceSeesUncommittedWrites(t *testing.T) {
	f := newFixture(t)
	rt := models.NewReferenceType(models.FamilyPurchase, models.OperationCreate)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if _, err := models.AppendLedgerEntry(tx, f.itemA, f.wh1, dec("12"), rt, 1, day("2024-01-01")); err != nil {
			return err
		}
		b, err := models.Balance(tx, f.itemA, f.wh1, nil)
		require.NoError(t, err)
		requireDecimal(t, "12", b)
		return gorm.ErrInvalidTransaction
	})
	require.ErrorIs(t, err, gorm.ErrInvalidTransaction)
	assert.True(t, f.balance(t, f.itemA, f.wh1).IsZero(), "rolled back append is gone")
}

func TestStockBalancesGrouping(t *testing.T) {
	f := newFixture(t)
	rt := models.NewReferenceType(models.FamilyPurchase, models.OperationCreate)
	for _, e := range []struct {
		item, wh int
		qty      string
		date     string
	}{
		{f.itemA, f.wh1, "10", "2024-01-01"},
		{f.itemA, f.wh2, "5", "2024-01-03"},
		{f.itemB, f.wh1, "4", "2024-01-02"},
	} {
		_, err := models.AppendLedgerEntry(f.db, e.item, e.wh, dec(e.qty), rt, 1, day(e.date))
		require.NoError(t, err)
	}

	rows, err := models.StockBalances(f.db, models.StockReportFilter{GroupBy: models.GroupByItem})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, f.itemA, rows[0].ItemId)
	assert.Equal(t, "Item A", rows[0].ItemName)
	assert.Nil(t, rows[0].WarehouseId)
	requireDecimal(t, "15", rows[0].Qty)
	requireDecimal(t, "4", rows[1].Qty)

	rows, err = models.StockBalances(f.db, models.StockReportFilter{GroupBy: models.GroupByItemWarehouse, ItemId: &f.itemA})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[1].WarehouseId)
	assert.Equal(t, f.wh2, *rows[1].WarehouseId)
	assert.Equal(t, "W2", rows[1].WarehouseName)
	requireDecimal(t, "5", rows[1].Qty)

	asOf := day("2024-01-02")
	rows, err = models.StockBalances(f.db, models.StockReportFilter{GroupBy: models.GroupByItem, AsOf: &asOf})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	requireDecimal(t, "10", rows[0].Qty)

	_, err = models.StockBalances(f.db, models.StockReportFilter{GroupBy: "month"})
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
}

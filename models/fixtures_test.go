package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/stock_ledger/dbtest"
	"github.com/mmdatafocus/stock_ledger/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	ctx      context.Context
	itemA    int
	itemB    int
	wh1      int
	wh2      int
	supplier int
	customer int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	ctx := context.Background()
	f := &fixture{db: db, ctx: ctx}

	a, err := models.CreateMaster[models.Item](ctx, db, models.NewMaster{Code: "A", Name: "Item A"})
	require.NoError(t, err)
	b, err := models.CreateMaster[models.Item](ctx, db, models.NewMaster{Code: "B", Name: "Item B"})
	require.NoError(t, err)
	w1, err := models.CreateMaster[models.Warehouse](ctx, db, models.NewMaster{Name: "W1"})
	require.NoError(t, err)
	w2, err := models.CreateMaster[models.Warehouse](ctx, db, models.NewMaster{Name: "W2"})
	require.NoError(t, err)
	s, err := models.CreateMaster[models.Supplier](ctx, db, models.NewMaster{Name: "Acme Supply"})
	require.NoError(t, err)
	c, err := models.CreateMaster[models.Customer](ctx, db, models.NewMaster{Name: "Retail Co"})
	require.NoError(t, err)

	f.itemA, f.itemB = a.ID, b.ID
	f.wh1, f.wh2 = w1.ID, w2.ID
	f.supplier, f.customer = s.ID, c.ID
	return f
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got.Round(4)), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

func (f *fixture) balance(t *testing.T, item, wh int) decimal.Decimal {
	t.Helper()
	b, err := models.Balance(f.db, item, wh, nil)
	require.NoError(t, err)
	return b
}

func (f *fixture) purchase(t *testing.T, date string, item int, qty string) *models.Purchase {
	t.Helper()
	p, err := models.CreatePurchase(f.ctx, f.db, models.NewPurchase{
		SupplierId:   f.supplier,
		WarehouseId:  f.wh1,
		PurchaseDate: day(date),
		Details:      []models.NewPurchaseDetail{{ItemId: item, Qty: dec(qty), Rate: dec("2")}},
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) sale(t *testing.T, date string, item int, qty string) *models.Sale {
	t.Helper()
	s, err := models.CreateSale(f.ctx, f.db, f.saleInput(date, item, qty))
	require.NoError(t, err)
	return s
}

func (f *fixture) saleInput(date string, item int, qty string) models.NewSale {
	return models.NewSale{
		CustomerId:  f.customer,
		WarehouseId: f.wh1,
		SaleDate:    day(date),
		Details:     []models.NewSaleDetail{{ItemId: item, Qty: dec(qty), Rate: dec("5")}},
	}
}

func (f *fixture) entries(t *testing.T, family models.DocumentFamily, id int) []models.LedgerEntry {
	t.Helper()
	rows, err := models.LedgerEntriesFor(f.db, family, id)
	require.NoError(t, err)
	return rows
}

func (f *fixture) countEntries(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.LedgerEntry{}).Count(&n).Error)
	return n
}

// netByKey folds ledger entries of one document into item/warehouse sums.
func netByKey(entries []models.LedgerEntry) map[[2]int]string {
	sums := make(map[[2]int]decimal.Decimal)
	for _, e := range entries {
		k := [2]int{e.ItemId, e.WarehouseId}
		sums[k] = sums[k].Add(e.Qty)
	}
	out := make(map[[2]int]string, len(sums))
	for k, v := range sums {
		out[k] = v.Round(4).String()
	}
	return out
}

package workflow_test

import (
	"fmt"
	"sort"
	"testing"

	"github.com/mmdatafocus/stock_ledger/models"
	"github.com/mmdatafocus/stock_ledger/utils"
	"github.com/mmdatafocus/stock_ledger/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paymentScenario struct {
	s1, s2     int
	p1, p2, p3 int
	r1         int
}

// seedPayments builds a supplier ledger with one wrongly linked payment,
// one duplicated unlinked payment and one legacy paid total with no payments.
func seedPayments(t *testing.T, e *env) paymentScenario {
	t.Helper()
	item := master[models.Item](t, e, "Flour")
	wh := master[models.Warehouse](t, e, "Main")
	sc := paymentScenario{
		s1: master[models.Supplier](t, e, "Mill Co"),
		s2: master[models.Supplier](t, e, "Other Co"),
	}

	purchase := func(supplier int, date string, qty string, initial string) int {
		p, err := models.CreatePurchase(e.ctx, e.db, models.NewPurchase{
			SupplierId:        supplier,
			WarehouseId:       wh,
			PurchaseDate:      day(date),
			InitialPaidAmount: dec(initial),
			Details:           []models.NewPurchaseDetail{{ItemId: item, Qty: dec(qty), Rate: dec("10")}},
		})
		require.NoError(t, err)
		return p.ID
	}
	sc.p1 = purchase(sc.s1, "2024-01-01", "10", "30")
	sc.p2 = purchase(sc.s1, "2024-01-05", "5", "0")
	sc.p3 = purchase(sc.s2, "2024-01-02", "4", "0")

	wrong := models.PaymentRecord{
		Kind: models.PaymentKindSupplier, PartyId: sc.s1, DocumentId: &sc.p3,
		Amount: dec("80"), PaymentDate: day("2024-01-10"), Origin: models.PaymentOriginUserEntered,
	}
	require.NoError(t, e.db.Create(&wrong).Error)
	sc.r1 = wrong.ID
	for i := 0; i < 2; i++ {
		dup := models.PaymentRecord{
			Kind: models.PaymentKindSupplier, PartyId: sc.s1,
			Amount: dec("20"), PaymentDate: day("2024-02-01"), Origin: models.PaymentOriginUserEntered,
		}
		require.NoError(t, e.db.Create(&dup).Error)
	}
	require.NoError(t, e.db.Model(&models.Purchase{}).Where("id = ?", sc.p3).Update("paid_amount", dec("25")).Error)
	return sc
}

func (e *env) paidAmounts(t *testing.T) map[int]string {
	t.Helper()
	var rows []models.Purchase
	require.NoError(t, e.db.Order("id").Find(&rows).Error)
	out := make(map[int]string, len(rows))
	for _, p := range rows {
		out[p.ID] = p.PaidAmount.Round(4).String()
	}
	return out
}

// paymentSet describes payment records without their ids.
func (e *env) paymentSet(t *testing.T) []string {
	t.Helper()
	var rows []models.PaymentRecord
	require.NoError(t, e.db.Order("id").Find(&rows).Error)
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		doc := "null"
		if r.DocumentId != nil {
			doc = fmt.Sprint(*r.DocumentId)
		}
		out = append(out, fmt.Sprintf("%s/%d/%s/%s/%s/%s", r.Kind, r.PartyId, doc,
			r.Amount.Round(4).String(), r.PaymentDate.UTC().Format(utils.DateLayout), r.Origin))
	}
	sort.Strings(out)
	return out
}

func TestSyncBalancesRelinksDedupesAndHeals(t *testing.T) {
	e := newEnv(t)
	sc := seedPayments(t, e)

	res, err := workflow.SyncBalances(e.ctx, e.db, e.logger, workflow.SyncBalancesOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.CorrelationId)
	assert.Equal(t, workflow.SyncBalancesCounts{
		DuplicatesDeleted:   1,
		Relinked:            2,
		HealedInserted:      1,
		CachedTotalsUpdated: 2,
	}, res.Suppliers)
	assert.Equal(t, workflow.SyncBalancesCounts{}, res.Customers)

	paid := e.paidAmounts(t)
	assert.Equal(t, "110", paid[sc.p1], "initial 30 plus the relinked 80")
	assert.Equal(t, "20", paid[sc.p2], "the surviving duplicate lands on the next open purchase")
	assert.Equal(t, "25", paid[sc.p3], "legacy total kept through a healed record")

	var moved models.PaymentRecord
	require.NoError(t, e.db.First(&moved, sc.r1).Error)
	require.NotNil(t, moved.DocumentId)
	assert.Equal(t, sc.p1, *moved.DocumentId)

	var healed []models.PaymentRecord
	require.NoError(t, e.db.Where("origin = ?", models.PaymentOriginHealed).Find(&healed).Error)
	require.Len(t, healed, 1)
	assert.Equal(t, sc.s2, healed[0].PartyId)
	requireDecimal(t, "25", healed[0].Amount)
	assert.True(t, day("2024-01-02").Equal(healed[0].PaymentDate), "healed record carries the document date")
	assert.Equal(t, models.HealedPaymentRemarks, healed[0].Remarks)

	var reports []models.ReconciliationReport
	require.NoError(t, e.db.Where("correlation_id = ?", res.CorrelationId).Find(&reports).Error)
	assert.Len(t, reports, 6)
}

func TestSyncBalancesIsIdempotent(t *testing.T) {
	e := newEnv(t)
	seedPayments(t, e)

	_, err := workflow.SyncBalances(e.ctx, e.db, e.logger, workflow.SyncBalancesOptions{})
	require.NoError(t, err)
	paid, payments := e.paidAmounts(t), e.paymentSet(t)

	res, err := workflow.SyncBalances(e.ctx, e.db, e.logger, workflow.SyncBalancesOptions{})
	require.NoError(t, err)
	assert.Equal(t, paid, e.paidAmounts(t))
	assert.Equal(t, payments, e.paymentSet(t))
	assert.Equal(t, workflow.SyncBalancesCounts{HealedDeleted: 1, HealedInserted: 1}, res.Suppliers)
}

func TestSyncBalancesDryRunRollsBack(t *testing.T) {
	e := newEnv(t)
	seedPayments(t, e)
	paid, payments := e.paidAmounts(t), e.paymentSet(t)

	res, err := workflow.SyncBalances(e.ctx, e.db, e.logger, workflow.SyncBalancesOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 2, res.Suppliers.Relinked)

	assert.Equal(t, paid, e.paidAmounts(t))
	assert.Equal(t, payments, e.paymentSet(t))
	var n int64
	require.NoError(t, e.db.Model(&models.ReconciliationReport{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSyncBalancesKeepsInitialRecordOverDuplicate(t *testing.T) {
	e := newEnv(t)
	item := master[models.Item](t, e, "Rice")
	wh := master[models.Warehouse](t, e, "Main")
	c := master[models.Customer](t, e, "Shop")

	_, err := models.CreatePurchase(e.ctx, e.db, models.NewPurchase{
		SupplierId:   master[models.Supplier](t, e, "Farm"),
		WarehouseId:  wh,
		PurchaseDate: day("2024-01-01"),
		Details:      []models.NewPurchaseDetail{{ItemId: item, Qty: dec("10"), Rate: dec("1")}},
	})
	require.NoError(t, err)
	s, err := models.CreateSale(e.ctx, e.db, models.NewSale{
		CustomerId:            c,
		WarehouseId:           wh,
		SaleDate:              day("2024-01-03"),
		InitialReceivedAmount: dec("15"),
		Details:               []models.NewSaleDetail{{ItemId: item, Qty: dec("2"), Rate: dec("50")}},
	})
	require.NoError(t, err)

	// A user payment entered twice with the same values as the initial receipt.
	copyOfInitial := models.PaymentRecord{
		Kind: models.PaymentKindCustomer, PartyId: c, DocumentId: &s.ID,
		Amount: dec("15"), PaymentDate: day("2024-01-03"), Origin: models.PaymentOriginUserEntered,
	}
	require.NoError(t, e.db.Create(&copyOfInitial).Error)

	res, err := workflow.SyncBalances(e.ctx, e.db, e.logger, workflow.SyncBalancesOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Customers.DuplicatesDeleted)

	var left []models.PaymentRecord
	require.NoError(t, e.db.Where("kind = ?", models.PaymentKindCustomer).Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, models.PaymentOriginInitialAtCreation, left[0].Origin)

	got, err := models.GetSale(e.ctx, e.db, s.ID)
	require.NoError(t, err)
	requireDecimal(t, "15", got.ReceivedAmount)
}

func TestSyncBalancesUnlinksWhenNothingIsOpen(t *testing.T) {
	e := newEnv(t)
	s1 := master[models.Supplier](t, e, "A")
	s2 := master[models.Supplier](t, e, "B")
	item := master[models.Item](t, e, "X")
	wh := master[models.Warehouse](t, e, "W")
	p, err := models.CreatePurchase(e.ctx, e.db, models.NewPurchase{
		SupplierId: s2, WarehouseId: wh, PurchaseDate: day("2024-01-01"),
		Details: []models.NewPurchaseDetail{{ItemId: item, Qty: dec("1"), Rate: dec("1")}},
	})
	require.NoError(t, err)

	stray := models.PaymentRecord{
		Kind: models.PaymentKindSupplier, PartyId: s1, DocumentId: &p.ID,
		Amount: dec("9"), PaymentDate: day("2024-01-01"), Origin: models.PaymentOriginUserEntered,
	}
	require.NoError(t, e.db.Create(&stray).Error)

	res, err := workflow.SyncBalances(e.ctx, e.db, e.logger, workflow.SyncBalancesOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Suppliers.Unlinked)

	var got models.PaymentRecord
	require.NoError(t, e.db.First(&got, stray.ID).Error)
	assert.Nil(t, got.DocumentId)
}

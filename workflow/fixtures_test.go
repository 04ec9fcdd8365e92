package workflow_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/mmdatafocus/stock_ledger/dbtest"
	"github.com/mmdatafocus/stock_ledger/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type env struct {
	db     *gorm.DB
	ctx    context.Context
	logger *logrus.Logger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &env{db: dbtest.Open(t), ctx: context.Background(), logger: logger}
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

func master[T models.Master](t *testing.T, e *env, name string) int {
	t.Helper()
	m, err := models.CreateMaster[T](e.ctx, e.db, models.NewMaster{Name: name})
	require.NoError(t, err)
	switch v := any(m).(type) {
	case *models.Item:
		return v.ID
	case *models.Warehouse:
		return v.ID
	case *models.Supplier:
		return v.ID
	case *models.Customer:
		return v.ID
	}
	t.Fatalf("unexpected master type %T", m)
	return 0
}

func (e *env) balances(t *testing.T) map[[2]int]string {
	t.Helper()
	rows, err := models.StockBalances(e.db, models.StockReportFilter{GroupBy: models.GroupByItemWarehouse})
	require.NoError(t, err)
	out := make(map[[2]int]string, len(rows))
	for _, r := range rows {
		if r.Qty.IsZero() {
			continue
		}
		out[[2]int{r.ItemId, *r.WarehouseId}] = r.Qty.String()
	}
	return out
}

func (e *env) countEntries(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.LedgerEntry{}).Count(&n).Error)
	return n
}

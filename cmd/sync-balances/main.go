package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/mmdatafocus/stock_ledger/config"
	"github.com/mmdatafocus/stock_ledger/utils"
	"github.com/mmdatafocus/stock_ledger/workflow"
)

// sync-balances repairs cached paid/received totals from the payment records.
//
//   go run ./cmd/sync-balances -dry-run=true
//   go run ./cmd/sync-balances -dry-run=false
func main() {
	dryRun := flag.Bool("dry-run", true, "Report only (rolled back)")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetCorrelationIdInContext(context.Background(), uuid.NewString())
	res, err := workflow.SyncBalances(ctx, db, config.GetLogger(), workflow.SyncBalancesOptions{DryRun: *dryRun})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync-balances failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("correlation_id=%s dry_run=%t\n", res.CorrelationId, res.DryRun)
	for _, side := range []struct {
		name   string
		counts workflow.SyncBalancesCounts
	}{{"suppliers", res.Suppliers}, {"customers", res.Customers}} {
		c := side.counts
		fmt.Printf("  %-9s healed_deleted=%d duplicates_deleted=%d relinked=%d unlinked=%d healed_inserted=%d cached_totals_updated=%d\n",
			side.name, c.HealedDeleted, c.DuplicatesDeleted, c.Relinked, c.Unlinked, c.HealedInserted, c.CachedTotalsUpdated)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mmdatafocus/stock_ledger/config"
	"github.com/mmdatafocus/stock_ledger/models"
	"github.com/mmdatafocus/stock_ledger/utils"
	"github.com/mmdatafocus/stock_ledger/workflow"
)

// sync-stock deletes ledger entries whose purchase, sale, production run or
// stock transfer no longer exists (rows left behind by hard deletes).
//
// Dry-run (default): show counts only
//   go run ./cmd/sync-stock -dry-run=true
//
// Execute:
//   go run ./cmd/sync-stock -dry-run=false -confirm=DELETE
func main() {
	dryRun := flag.Bool("dry-run", true, "List only (no writes)")
	confirm := flag.String("confirm", "", "Type DELETE to proceed when dry-run=false")
	flag.Parse()

	if !*dryRun && strings.TrimSpace(*confirm) != "DELETE" {
		fmt.Fprintln(os.Stderr, "set --confirm=DELETE to proceed")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetCorrelationIdInContext(context.Background(), uuid.NewString())
	res, err := workflow.PurgeOrphanLedgerEntries(ctx, db, config.GetLogger(), workflow.OrphanPurgeOptions{DryRun: *dryRun})
	if err != nil {
		fmt.Fprintf(os.Stderr, "cleanup failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("correlation_id=%s dry_run=%t\n", res.CorrelationId, res.DryRun)
	for _, family := range models.AllFamilies {
		fmt.Printf("  %-10s orphaned=%d\n", family, res.Deleted[family])
	}
}

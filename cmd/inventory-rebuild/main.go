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

// inventory-rebuild deletes every ledger entry and replays the creation
// entries of all live documents.
//
// Dry-run (default): show counts only
//   go run ./cmd/inventory-rebuild -dry-run=true
//
// Execute:
//   go run ./cmd/inventory-rebuild -dry-run=false -confirm=REBUILD
func main() {
	dryRun := flag.Bool("dry-run", true, "Report only (rolled back)")
	confirm := flag.String("confirm", "", "Type REBUILD to proceed when dry-run=false")
	flag.Parse()

	if !*dryRun && strings.TrimSpace(*confirm) != "REBUILD" {
		fmt.Fprintln(os.Stderr, "set --confirm=REBUILD to proceed")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetCorrelationIdInContext(context.Background(), uuid.NewString())
	res, err := workflow.RebuildInventory(ctx, db, config.GetLogger(), workflow.RebuildOptions{DryRun: *dryRun})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("correlation_id=%s dry_run=%t entries_deleted=%d\n", res.CorrelationId, res.DryRun, res.EntriesDeleted)
	for _, family := range models.AllFamilies {
		c := res.Families[family]
		fmt.Printf("  %-10s documents=%d entries=%d\n", family, c.Documents, c.Entries)
	}
	if *dryRun {
		fmt.Println("dry run: nothing written")
		return
	}
	fmt.Println("inventory rebuild complete")
}

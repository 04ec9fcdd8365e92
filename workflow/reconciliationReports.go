package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mmdatafocus/stock_ledger/models"
	"github.com/mmdatafocus/stock_ledger/utils"
	"gorm.io/gorm"
)

// Check types stored in reconciliation_reports.check_type.
const (
	CheckHealedDeleted       = "HEALED_DELETED"
	CheckDuplicateDeleted    = "DUPLICATE_DELETED"
	CheckRelinked            = "RELINKED"
	CheckUnlinked            = "UNLINKED"
	CheckHealedInserted      = "HEALED_INSERTED"
	CheckCachedTotalUpdated  = "CACHED_TOTAL_UPDATED"
	CheckOrphanLedgerDeleted = "ORPHAN_LEDGER_DELETED"
	CheckLedgerRebuilt       = "LEDGER_REBUILT"
)

// correlationIdFor reuses the request's correlation id or starts a new one for the job run.
func correlationIdFor(ctx context.Context) string {
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok && cid != "" {
		return cid
	}
	return uuid.NewString()
}

type reportWriter struct {
	tx            *gorm.DB
	correlationId string
}

func (w reportWriter) write(checkType, entityType string, entityId int, format string, args ...any) error {
	return w.tx.Create(&models.ReconciliationReport{
		CheckType:     checkType,
		EntityType:    entityType,
		EntityId:      entityId,
		Details:       fmt.Sprintf(format, args...),
		CorrelationId: w.correlationId,
	}).Error
}

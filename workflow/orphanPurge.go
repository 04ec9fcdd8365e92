package workflow

import (
	"context"
	"errors"

	"github.com/mmdatafocus/stock_ledger/config"
	"github.com/mmdatafocus/stock_ledger/models"
	"github.com/mmdatafocus/stock_ledger/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

type OrphanPurgeOptions struct {
	DryRun bool
}

type OrphanPurgeResult struct {
	CorrelationId string                          `json:"correlation_id"`
	DryRun        bool                            `json:"dry_run"`
	Deleted       map[models.DocumentFamily]int64 `json:"deleted"`
}

// PurgeOrphanLedgerEntries deletes ledger entries whose document row no longer
// exists. Running it again deletes nothing.
func PurgeOrphanLedgerEntries(ctx context.Context, db *gorm.DB, logger *logrus.Logger, opts OrphanPurgeOptions) (*OrphanPurgeResult, error) {
	if logger == nil {
		logger = config.GetLogger()
	}
	ctx, span := tracer.Start(ctx, "workflow.PurgeOrphanLedgerEntries")
	defer span.End()

	result := &OrphanPurgeResult{
		CorrelationId: correlationIdFor(ctx),
		DryRun:        opts.DryRun,
		Deleted:       make(map[models.DocumentFamily]int64),
	}
	span.SetAttributes(attribute.String("correlation_id", result.CorrelationId), attribute.Bool("dry_run", opts.DryRun))

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock, err := acquireJobLock(ctx, tx, logger, "sync-stock")
		if err != nil {
			return err
		}
		defer lock.release(ctx)

		w := reportWriter{tx: tx, correlationId: result.CorrelationId}
		for _, family := range models.AllFamilies {
			var ids []int
			if err := tx.Model(&models.LedgerEntry{}).
				Where("reference_type LIKE ?", string(family)+"%").
				Where("NOT EXISTS (SELECT 1 FROM " + family.TableName() + " d WHERE d.id = ledger_entries.reference_id)").
				Order("id").
				Pluck("id", &ids).Error; err != nil {
				return err
			}
			result.Deleted[family] = int64(len(ids))
			if len(ids) == 0 {
				continue
			}
			if err := tx.Where("id IN ?", ids).Delete(&models.LedgerEntry{}).Error; err != nil {
				return err
			}
			logger.WithFields(logrus.Fields{
				"correlation_id": result.CorrelationId,
				"family":         family,
				"deleted":        len(ids),
				"dry_run":        opts.DryRun,
			}).Info("ledger.orphan.purge")
			if err := w.write(CheckOrphanLedgerDeleted, "LedgerEntry", ids[0], "family=%s deleted=%d ids=%v", family, len(ids), ids); err != nil {
				return err
			}
		}
		if opts.DryRun {
			return utils.ErrDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, utils.ErrDryRun) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		config.LogError(logger, "orphanPurge.go", "PurgeOrphanLedgerEntries", "purging orphan ledger entries", result.CorrelationId, err)
		return nil, err
	}
	return result, nil
}

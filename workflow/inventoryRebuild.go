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

const rebuildBatchSize = 500

type RebuildOptions struct {
	DryRun bool
}

type FamilyCount struct {
	Documents int `json:"documents"`
	Entries   int `json:"entries"`
}

type RebuildResult struct {
	CorrelationId  string                               `json:"correlation_id"`
	DryRun         bool                                 `json:"dry_run"`
	EntriesDeleted int64                                `json:"entries_deleted"`
	Families       map[models.DocumentFamily]FamilyCount `json:"families"`
}

// RebuildInventory wipes the ledger and replays every active document as a
// fresh create dated with its own business date. It is a repair tool and never
// part of a normal write.
func RebuildInventory(ctx context.Context, db *gorm.DB, logger *logrus.Logger, opts RebuildOptions) (*RebuildResult, error) {
	if logger == nil {
		logger = config.GetLogger()
	}
	ctx, span := tracer.Start(ctx, "workflow.RebuildInventory")
	defer span.End()

	result := &RebuildResult{
		CorrelationId: correlationIdFor(ctx),
		DryRun:        opts.DryRun,
		Families:      make(map[models.DocumentFamily]FamilyCount),
	}
	span.SetAttributes(attribute.String("correlation_id", result.CorrelationId), attribute.Bool("dry_run", opts.DryRun))
	logger.WithFields(logrus.Fields{
		"correlation_id": result.CorrelationId,
		"dry_run":        opts.DryRun,
	}).Info("inv.rebuild.start")

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock, err := acquireJobLock(ctx, tx, logger, "rebuild-inventory")
		if err != nil {
			return err
		}
		defer lock.release(ctx)

		res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.LedgerEntry{})
		if res.Error != nil {
			return res.Error
		}
		result.EntriesDeleted = res.RowsAffected

		w := reportWriter{tx: tx, correlationId: result.CorrelationId}
		for _, family := range models.AllFamilies {
			docs, err := models.ActiveDocuments(tx, family)
			if err != nil {
				return err
			}
			entries := make([]models.LedgerEntry, 0)
			for _, doc := range docs {
				entries = append(entries, models.CreationEntries(doc)...)
			}
			if len(entries) > 0 {
				if err := tx.CreateInBatches(&entries, rebuildBatchSize).Error; err != nil {
					return err
				}
			}
			result.Families[family] = FamilyCount{Documents: len(docs), Entries: len(entries)}
			logger.WithFields(logrus.Fields{
				"correlation_id": result.CorrelationId,
				"family":         family,
				"documents":      len(docs),
				"entries":        len(entries),
			}).Info("inv.rebuild.family")
			if err := w.write(CheckLedgerRebuilt, "LedgerEntry", 0, "family=%s documents=%d entries=%d", family, len(docs), len(entries)); err != nil {
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
		config.LogError(logger, "inventoryRebuild.go", "RebuildInventory", "rebuilding ledger", result.CorrelationId, err)
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"correlation_id":  result.CorrelationId,
		"dry_run":         opts.DryRun,
		"entries_deleted": result.EntriesDeleted,
	}).Info("inv.rebuild.end")
	return result, nil
}

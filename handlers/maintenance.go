package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stock_ledger/config"
	"github.com/mmdatafocus/stock_ledger/utils"
	"github.com/mmdatafocus/stock_ledger/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const idempotencyHeader = "Idempotency-Key"

type maintenanceJob func(ctx context.Context, db *gorm.DB, logger *logrus.Logger, dryRun bool) (any, error)

func (h *Handler) syncBalances(c *gin.Context) {
	h.runMaintenance(c, "sync-balances", func(ctx context.Context, db *gorm.DB, logger *logrus.Logger, dryRun bool) (any, error) {
		return workflow.SyncBalances(ctx, db, logger, workflow.SyncBalancesOptions{DryRun: dryRun})
	})
}

func (h *Handler) syncStock(c *gin.Context) {
	h.runMaintenance(c, "sync-stock", func(ctx context.Context, db *gorm.DB, logger *logrus.Logger, dryRun bool) (any, error) {
		return workflow.PurgeOrphanLedgerEntries(ctx, db, logger, workflow.OrphanPurgeOptions{DryRun: dryRun})
	})
}

func (h *Handler) rebuildInventory(c *gin.Context) {
	h.runMaintenance(c, "rebuild-inventory", func(ctx context.Context, db *gorm.DB, logger *logrus.Logger, dryRun bool) (any, error) {
		return workflow.RebuildInventory(ctx, db, logger, workflow.RebuildOptions{DryRun: dryRun})
	})
}

// runMaintenance applies the shared gates: the kill switch, ?dry_run= and an
// optional Idempotency-Key whose stored result is replayed on retries.
func (h *Handler) runMaintenance(c *gin.Context, name string, job maintenanceJob) {
	if config.MaintenanceEndpointsDisabled() {
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: name + " is disabled", CorrelationId: cid})
		return
	}

	dryRun := false
	if raw := strings.TrimSpace(c.Query("dry_run")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "dry_run", "dry_run must be a boolean")
			return
		}
		dryRun = v
	}

	ctx := c.Request.Context()
	db := h.db()

	handlerName := name
	if dryRun {
		handlerName += ":dry-run"
	}
	key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
	if key != "" {
		skip, stored, err := workflow.BeginIdempotency(db.WithContext(ctx), handlerName, key)
		if err != nil {
			respondError(c, h.logger, name, err)
			return
		}
		if skip {
			h.logger.WithFields(logrus.Fields{
				"field":           name,
				"idempotency_key": key,
			}).Info("maintenance.replay")
			body := "null"
			if stored != nil {
				body = *stored
			}
			c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(body))
			return
		}
	}

	result, err := job(ctx, db, h.logger, dryRun)
	if err != nil {
		if key != "" {
			if markErr := workflow.MarkIdempotencyFailed(db.WithContext(ctx), handlerName, key, err); markErr != nil {
				config.LogError(h.logger, "handlers", name, "MarkIdempotencyFailed", key, markErr)
			}
		}
		respondError(c, h.logger, name, err)
		return
	}
	if key != "" {
		if err := workflow.MarkIdempotencySucceeded(db.WithContext(ctx), handlerName, key, result); err != nil {
			config.LogError(h.logger, "handlers", name, "MarkIdempotencySucceeded", key, err)
		}
	}
	c.JSON(http.StatusOK, result)
}

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stock_ledger/models"
	"gorm.io/gorm"
)

// documentRoutes binds one document family's typed operations to its routes.
// Lifecycle transitions shared by all families go through the models dispatchers.
type documentRoutes[In any, Out any] struct {
	family models.DocumentFamily
	create func(ctx context.Context, db *gorm.DB, input In) (Out, error)
	update func(ctx context.Context, db *gorm.DB, id int, input In) (Out, error)
	get    func(ctx context.Context, db *gorm.DB, id int) (Out, error)
}

func registerDocument[In any, Out any](r gin.IRouter, h *Handler, path string, routes documentRoutes[In, Out]) {
	g := r.Group(path)

	g.POST("", func(c *gin.Context) {
		var req In
		if !bindJSON(c, &req) {
			return
		}
		doc, err := routes.create(c.Request.Context(), h.db(), req)
		if err != nil {
			respondError(c, h.logger, "create"+string(routes.family), err)
			return
		}
		c.JSON(http.StatusCreated, doc)
	})

	g.GET("/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		doc, err := routes.get(c.Request.Context(), h.db(), id)
		if err != nil {
			respondError(c, h.logger, "get"+string(routes.family), err)
			return
		}
		c.JSON(http.StatusOK, doc)
	})

	g.PUT("/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req In
		if !bindJSON(c, &req) {
			return
		}
		doc, err := routes.update(c.Request.Context(), h.db(), id, req)
		if err != nil {
			respondError(c, h.logger, "update"+string(routes.family), err)
			return
		}
		c.JSON(http.StatusOK, doc)
	})

	g.DELETE("/:id", h.lifecycle(routes.family, "softDelete", models.SoftDeleteDocument))
	g.POST("/:id/restore", h.lifecycle(routes.family, "restore", models.RestoreDocument))
	g.DELETE("/:id/permanent", h.lifecycle(routes.family, "purge", models.PurgeDocument))

	g.GET("/:id/history", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		rows, err := models.ListHistory(h.db().WithContext(c.Request.Context()), routes.family, id)
		if err != nil {
			respondError(c, h.logger, "history", err)
			return
		}
		c.JSON(http.StatusOK, rows)
	})
}

type lifecycleFunc func(ctx context.Context, db *gorm.DB, family models.DocumentFamily, id int) error

func (h *Handler) lifecycle(family models.DocumentFamily, name string, op lifecycleFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := op(c.Request.Context(), h.db(), family, id); err != nil {
			respondError(c, h.logger, name, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

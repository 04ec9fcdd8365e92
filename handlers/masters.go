package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stock_ledger/models"
)

func registerMaster[T models.Master](r gin.IRouter, h *Handler, path string) {
	r.POST(path, func(c *gin.Context) {
		var req models.NewMaster
		if !bindJSON(c, &req) {
			return
		}
		m, err := models.CreateMaster[T](c.Request.Context(), h.db(), req)
		if err != nil {
			respondError(c, h.logger, "createMaster", err)
			return
		}
		c.JSON(http.StatusCreated, m)
	})
	r.GET(path, func(c *gin.Context) {
		rows, err := models.ListMasters[T](c.Request.Context(), h.db())
		if err != nil {
			respondError(c, h.logger, "listMasters", err)
			return
		}
		c.JSON(http.StatusOK, rows)
	})
}

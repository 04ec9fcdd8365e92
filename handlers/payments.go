package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stock_ledger/models"
)

func (h *Handler) createPayment(kind models.PaymentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewPaymentRecord
		if !bindJSON(c, &req) {
			return
		}
		rec, err := models.CreatePaymentRecord(c.Request.Context(), h.db(), kind, req)
		if err != nil {
			respondError(c, h.logger, "createPayment", err)
			return
		}
		c.JSON(http.StatusCreated, rec)
	}
}

func (h *Handler) listPayments(kind models.PaymentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := models.ListPaymentRecords(c.Request.Context(), h.db(), kind)
		if err != nil {
			respondError(c, h.logger, "listPayments", err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

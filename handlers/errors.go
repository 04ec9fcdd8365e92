package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/stock_ledger/config"
	"github.com/mmdatafocus/stock_ledger/models"
	"github.com/mmdatafocus/stock_ledger/utils"
	"github.com/mmdatafocus/stock_ledger/workflow"
	"github.com/sirupsen/logrus"
)

type blockingDocument struct {
	Family models.DocumentFamily `json:"family"`
	Id     int                   `json:"id"`
	Date   *time.Time            `json:"date,omitempty"`
}

type errorResponse struct {
	Error         string             `json:"error"`
	Fields        map[string]string  `json:"fields,omitempty"`
	Blocking      *blockingDocument  `json:"blocking,omitempty"`
	WarehouseId   int                `json:"warehouse_id,omitempty"`
	Shortfalls    []models.Shortfall `json:"shortfalls,omitempty"`
	CorrelationId string             `json:"correlation_id,omitempty"`
}

// bindJSON binds the request body and writes a 400 when it does not fit.
func bindJSON(c *gin.Context, req interface{}) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	resp := errorResponse{Error: "invalid request body: " + err.Error()}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Error = "validation failed"
		resp.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			resp.Fields[fe.Field()] = fe.Tag()
		}
	}
	resp.CorrelationId, _ = utils.GetCorrelationIdFromContext(c.Request.Context())
	c.AbortWithStatusJSON(http.StatusBadRequest, resp)
	return false
}

// respondError maps the domain error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, logger *logrus.Logger, funcName string, err error) {
	var (
		ve *models.ValidationError
		ne *models.NotFoundError
		ce *models.ConflictError
		se *models.InsufficientStockError
	)
	status := http.StatusInternalServerError
	resp := errorResponse{Error: err.Error()}
	resp.CorrelationId, _ = utils.GetCorrelationIdFromContext(c.Request.Context())

	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		resp.Error = ve.Message
		if ve.Field != "" {
			resp.Fields = map[string]string{ve.Field: ve.Message}
		}
	case errors.As(err, &ne):
		status = http.StatusNotFound
	case errors.As(err, &ce):
		status = http.StatusConflict
		if ce.BlockingId != 0 {
			resp.Blocking = &blockingDocument{Family: ce.BlockingFamily, Id: ce.BlockingId, Date: ce.BlockingDate}
		}
	case errors.As(err, &se):
		status = http.StatusUnprocessableEntity
		resp.WarehouseId = se.WarehouseId
		resp.Shortfalls = se.Shortfalls
	case errors.Is(err, workflow.ErrJobRunning), errors.Is(err, workflow.ErrIdempotencyInProgress):
		status = http.StatusConflict
	default:
		config.LogError(logger, "handlers", funcName, c.Request.Method+" "+c.FullPath(), resp.CorrelationId, err)
		_ = c.Error(err)
		resp.Error = "internal error"
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, field, message string) {
	cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
		Error:         message,
		Fields:        map[string]string{field: message},
		CorrelationId: cid,
	})
}

package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stock_ledger/models"
	"github.com/mmdatafocus/stock_ledger/utils"
	"github.com/xuri/excelize/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) stockReport(c *gin.Context) {
	filter := models.StockReportFilter{GroupBy: models.StockGroupBy(c.DefaultQuery("group_by", string(models.GroupByItemWarehouse)))}
	for _, q := range []struct {
		name string
		dst  **int
	}{{"item_id", &filter.ItemId}, {"warehouse_id", &filter.WarehouseId}} {
		raw := strings.TrimSpace(c.Query(q.name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, q.name, q.name+" must be an integer")
			return
		}
		*q.dst = &n
	}
	if raw := strings.TrimSpace(c.Query("as_of")); raw != "" {
		asOf, err := utils.ParseDate(raw)
		if err != nil {
			badRequest(c, "as_of", err.Error())
			return
		}
		filter.AsOf = &asOf
	}

	rows, err := models.StockBalances(h.db().WithContext(c.Request.Context()), filter)
	if err != nil {
		respondError(c, h.logger, "stockReport", err)
		return
	}

	if strings.EqualFold(c.Query("format"), "xlsx") {
		f, err := stockReportWorkbook(rows, filter.GroupBy)
		if err != nil {
			respondError(c, h.logger, "stockReport", err)
			return
		}
		defer f.Close()
		c.Header("Content-Type", xlsxContentType)
		c.Header("Content-Disposition", "attachment; filename=stock.xlsx")
		c.Status(http.StatusOK)
		if err := f.Write(c.Writer); err != nil {
			_ = c.Error(err)
		}
		return
	}
	c.JSON(http.StatusOK, rows)
}

func stockReportWorkbook(rows []models.StockBalanceRow, groupBy models.StockGroupBy) (*excelize.File, error) {
	const sheet = "Sheet1"
	f := excelize.NewFile()

	headings := []string{"ItemId", "ItemName", "Qty"}
	if groupBy == models.GroupByItemWarehouse {
		headings = []string{"ItemId", "ItemName", "WarehouseId", "WarehouseName", "Qty"}
	}
	col := 'A'
	for _, heading := range headings {
		if err := f.SetCellValue(sheet, string(col)+"1", heading); err != nil {
			return nil, err
		}
		col++
	}

	for i, r := range rows {
		values := []interface{}{r.ItemId, r.ItemName}
		if groupBy == models.GroupByItemWarehouse {
			values = append(values, utils.DereferencePtr(r.WarehouseId, 0), r.WarehouseName)
		}
		qty, _ := r.Qty.Float64()
		values = append(values, qty)

		col := 'A'
		for _, v := range values {
			if err := f.SetCellValue(sheet, string(col)+fmt.Sprint(i+2), v); err != nil {
				return nil, err
			}
			col++
		}
	}
	return f, nil
}

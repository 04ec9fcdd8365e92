package models

import (
	"fmt"
	"time"

	"github.com/mmdatafocus/stock_ledger/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerEntry is one immutable signed quantity movement for an item in a warehouse.
// Balances are always derived from these rows; nothing caches them.
type LedgerEntry struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ItemId        int             `gorm:"index:idx_ledger_item_wh;not null" json:"item_id"`
	WarehouseId   int             `gorm:"index:idx_ledger_item_wh;not null" json:"warehouse_id"`
	Qty           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	ReferenceType ReferenceType   `gorm:"size:40;index:idx_ledger_ref;not null" json:"reference_type"`
	ReferenceId   int             `gorm:"index:idx_ledger_ref;not null" json:"reference_id"`
	EffectiveDate time.Time       `gorm:"index;not null" json:"effective_date"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// StockMovement is the signed effect a document line has on one warehouse.
type StockMovement struct {
	ItemId      int
	WarehouseId int
	Qty         decimal.Decimal
}

// AppendLedgerEntry inserts a single ledger row. It applies no business rules.
func AppendLedgerEntry(tx *gorm.DB, itemId int, warehouseId int, qty decimal.Decimal, refType ReferenceType, referenceId int, effectiveDate time.Time) (*LedgerEntry, error) {
	if tx == nil {
		return nil, fmt.Errorf("append ledger: tx is nil")
	}
	if itemId <= 0 || warehouseId <= 0 || referenceId <= 0 || refType.IsZero() || effectiveDate.IsZero() {
		return nil, fmt.Errorf("append ledger: item, warehouse, reference and date are required")
	}
	entry := &LedgerEntry{
		ItemId:        itemId,
		WarehouseId:   warehouseId,
		Qty:           qty.Round(4),
		ReferenceType: refType,
		ReferenceId:   referenceId,
		EffectiveDate: utils.DateOnly(effectiveDate),
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, wrapStoreError(err)
	}
	return entry, nil
}

// appendMovements posts movements multiplied by sign (+1 keeps, -1 reverses).
func appendMovements(tx *gorm.DB, movements []StockMovement, sign int64, refType ReferenceType, referenceId int, effectiveDate time.Time) error {
	factor := decimal.NewFromInt(sign)
	for _, m := range movements {
		if _, err := AppendLedgerEntry(tx, m.ItemId, m.WarehouseId, m.Qty.Mul(factor), refType, referenceId, effectiveDate); err != nil {
			return err
		}
	}
	return nil
}

// Balance sums the ledger for an item and warehouse, optionally as of a business date.
// Pass the open transaction to see its uncommitted appends.
func Balance(tx *gorm.DB, itemId int, warehouseId int, asOf *time.Time) (decimal.Decimal, error) {
	var t struct {
		Qty decimal.Decimal
	}
	q := tx.Model(&LedgerEntry{}).
		Select("COALESCE(SUM(qty), 0) AS qty").
		Where("item_id = ? AND warehouse_id = ?", itemId, warehouseId)
	if asOf != nil {
		q = q.Where("effective_date <= ?", utils.DateOnly(*asOf))
	}
	if err := q.Scan(&t).Error; err != nil {
		return decimal.Zero, err
	}
	return utils.Normalize(t.Qty), nil
}

type StockGroupBy string

const (
	GroupByItem          StockGroupBy = "item"
	GroupByItemWarehouse StockGroupBy = "item_warehouse"
)

type StockReportFilter struct {
	GroupBy     StockGroupBy
	ItemId      *int
	WarehouseId *int
	AsOf        *time.Time
}

type StockBalanceRow struct {
	ItemId        int             `json:"item_id"`
	ItemName      string          `json:"item_name"`
	WarehouseId   *int            `json:"warehouse_id,omitempty"`
	WarehouseName string          `json:"warehouse_name,omitempty"`
	Qty           decimal.Decimal `json:"qty"`
}

// StockBalances aggregates the ledger per item, or per item and warehouse.
func StockBalances(tx *gorm.DB, filter StockReportFilter) ([]StockBalanceRow, error) {
	groupBy := filter.GroupBy
	if groupBy == "" {
		groupBy = GroupByItemWarehouse
	}

	type row struct {
		ItemId        int
		ItemName      string
		WarehouseId   int
		WarehouseName string
		Qty           decimal.Decimal
	}

	q := tx.Table("ledger_entries AS le").
		Joins("LEFT JOIN items i ON i.id = le.item_id")
	switch groupBy {
	case GroupByItem:
		q = q.Select("le.item_id AS item_id, COALESCE(i.name, '') AS item_name, COALESCE(SUM(le.qty), 0) AS qty").
			Group("le.item_id, i.name").
			Order("le.item_id")
	case GroupByItemWarehouse:
		q = q.Joins("LEFT JOIN warehouses w ON w.id = le.warehouse_id").
			Select("le.item_id AS item_id, COALESCE(i.name, '') AS item_name, le.warehouse_id AS warehouse_id, COALESCE(w.name, '') AS warehouse_name, COALESCE(SUM(le.qty), 0) AS qty").
			Group("le.item_id, i.name, le.warehouse_id, w.name").
			Order("le.item_id, le.warehouse_id")
	default:
		return nil, &ValidationError{Field: "group_by", Message: fmt.Sprintf("unsupported grouping %q", groupBy)}
	}
	if filter.ItemId != nil {
		q = q.Where("le.item_id = ?", *filter.ItemId)
	}
	if filter.WarehouseId != nil {
		q = q.Where("le.warehouse_id = ?", *filter.WarehouseId)
	}
	if filter.AsOf != nil {
		q = q.Where("le.effective_date <= ?", utils.DateOnly(*filter.AsOf))
	}

	var rows []row
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]StockBalanceRow, 0, len(rows))
	for _, r := range rows {
		res := StockBalanceRow{
			ItemId:   r.ItemId,
			ItemName: r.ItemName,
			Qty:      utils.Normalize(r.Qty),
		}
		if groupBy == GroupByItemWarehouse {
			wh := r.WarehouseId
			res.WarehouseId = &wh
			res.WarehouseName = r.WarehouseName
		}
		out = append(out, res)
	}
	return out, nil
}

// LedgerEntriesFor lists the entries of one document in insertion order.
func LedgerEntriesFor(tx *gorm.DB, family DocumentFamily, referenceId int) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	err := tx.Where("reference_type LIKE ? AND reference_id = ?", string(family)+"%", referenceId).
		Order("id").
		Find(&entries).Error
	return entries, err
}

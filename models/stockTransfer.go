package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/stock_ledger/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockTransfer moves stock out of a source warehouse. Without a destination
// the stock is issued (consumed) rather than moved.
type StockTransfer struct {
	ID                     int                   `gorm:"primary_key" json:"id"`
	SourceWarehouseId      int                   `gorm:"index;not null" json:"source_warehouse_id"`
	DestinationWarehouseId *int                  `gorm:"index" json:"destination_warehouse_id"`
	TransferDate           time.Time             `gorm:"index;not null" json:"transfer_date"`
	Remarks                string                `gorm:"type:text" json:"remarks"`
	TotalAmount            decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	IsDeleted              bool                  `gorm:"not null;default:false;index" json:"is_deleted"`
	DeletedAt              *time.Time            `json:"deleted_at"`
	Details                []StockTransferDetail `gorm:"foreignKey:StockTransferId" json:"details"`
	CreatedAt              time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type StockTransferDetail struct {
	ID              int             `gorm:"primary_key" json:"id"`
	StockTransferId int             `gorm:"index;not null" json:"stock_transfer_id"`
	ItemId          int             `gorm:"index;not null" json:"item_id"`
	Qty             decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Rate            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

type NewStockTransfer struct {
	SourceWarehouseId      int                      `json:"source_warehouse_id" binding:"required"`
	DestinationWarehouseId *int                     `json:"destination_warehouse_id"`
	TransferDate           time.Time                `json:"transfer_date" binding:"required"`
	Remarks                string                   `json:"remarks"`
	Details                []NewStockTransferDetail `json:"details"`
}

type NewStockTransferDetail struct {
	ItemId int             `json:"item_id"`
	Qty    decimal.Decimal `json:"qty"`
	Rate   decimal.Decimal `json:"rate"`
}

func (t *StockTransfer) Family() DocumentFamily  { return FamilyTransfer }
func (t *StockTransfer) DocumentId() int         { return t.ID }
func (t *StockTransfer) DocumentDate() time.Time { return t.TransferDate }
func (t *StockTransfer) Trashed() bool           { return t.IsDeleted }
func (t *StockTransfer) upstreamItems() []int    { return nil }

func (t *StockTransfer) Movements() []StockMovement {
	out := make([]StockMovement, 0, len(t.Details)*2)
	for _, d := range t.Details {
		out = append(out, StockMovement{ItemId: d.ItemId, WarehouseId: t.SourceWarehouseId, Qty: d.Qty.Neg()})
		if t.DestinationWarehouseId != nil {
			out = append(out, StockMovement{ItemId: d.ItemId, WarehouseId: *t.DestinationWarehouseId, Qty: d.Qty})
		}
	}
	return out
}

func (t *StockTransfer) stockLines() []StockLine {
	lines := make([]StockLine, 0, len(t.Details))
	for _, d := range t.Details {
		lines = append(lines, StockLine{ItemId: d.ItemId, Qty: d.Qty})
	}
	return lines
}

func (input *NewStockTransfer) validate(tx *gorm.DB) error {
	if err := validateHeader(input.TransferDate, len(input.Details), decimal.Zero); err != nil {
		return err
	}
	if input.DestinationWarehouseId != nil && *input.DestinationWarehouseId == input.SourceWarehouseId {
		return newValidationError("destination_warehouse_id", "destination must differ from source")
	}
	itemIds := make([]int, 0, len(input.Details))
	for i, d := range input.Details {
		if err := validateLine(i, d.ItemId, d.Qty, d.Rate, lineRule{}); err != nil {
			return err
		}
		itemIds = append(itemIds, d.ItemId)
	}
	if err := requireExists[Warehouse](tx, "warehouse", input.SourceWarehouseId); err != nil {
		return err
	}
	if input.DestinationWarehouseId != nil {
		if err := requireExists[Warehouse](tx, "warehouse", *input.DestinationWarehouseId); err != nil {
			return err
		}
	}
	return requireItems(tx, utils.UniqueSlice(itemIds))
}

func (input *NewStockTransfer) apply(t *StockTransfer) {
	t.SourceWarehouseId = input.SourceWarehouseId
	t.DestinationWarehouseId = input.DestinationWarehouseId
	t.TransferDate = utils.DateOnly(input.TransferDate)
	t.Remarks = strings.TrimSpace(input.Remarks)

	total := decimal.Zero
	t.Details = make([]StockTransferDetail, 0, len(input.Details))
	for _, d := range input.Details {
		amount := lineAmount(d.Qty, d.Rate)
		t.Details = append(t.Details, StockTransferDetail{
			StockTransferId: t.ID,
			ItemId:          d.ItemId,
			Qty:             d.Qty.Round(4),
			Rate:            d.Rate.Round(4),
			Amount:          amount,
		})
		total = total.Add(amount)
	}
	t.TotalAmount = total
}

func CreateStockTransfer(ctx context.Context, db *gorm.DB, input NewStockTransfer) (*StockTransfer, error) {
	var transfer StockTransfer
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := input.validate(tx); err != nil {
			return err
		}
		input.apply(&transfer)
		if err := ensureAvailable(tx, transfer.SourceWarehouseId, transfer.stockLines(), nil); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(&transfer).Error; err != nil {
			return wrapStoreError(err)
		}
		for i := range transfer.Details {
			transfer.Details[i].StockTransferId = transfer.ID
		}
		if err := wrapStoreError(tx.Create(&transfer.Details).Error); err != nil {
			return err
		}
		if err := postDocument(tx, &transfer, OperationCreate, 1, transfer.TransferDate); err != nil {
			return err
		}
		return createHistory(tx, ActionCreate, FamilyTransfer, transfer.ID, nil, transfer, "Stock transfer created.")
	})
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

func UpdateStockTransfer(ctx context.Context, db *gorm.DB, id int, input NewStockTransfer) (*StockTransfer, error) {
	var transfer StockTransfer
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := LoadDocument(tx, FamilyTransfer, id)
		if err != nil {
			return err
		}
		old := doc.(*StockTransfer)
		if old.IsDeleted {
			return &ConflictError{Message: fmt.Sprintf("stock transfer #%d is in trash and cannot be edited", id)}
		}
		if err := input.validate(tx); err != nil {
			return err
		}

		transfer = *old
		input.apply(&transfer)
		if err := ensureAvailable(tx, transfer.SourceWarehouseId, transfer.stockLines(), old.Movements()); err != nil {
			return err
		}
		if err := replaceDocument(tx, old, &transfer); err != nil {
			return err
		}
		if err := replaceLines(tx, FamilyTransfer, id, transfer.Details); err != nil {
			return err
		}
		if err := tx.Model(&StockTransfer{}).Where("id = ?", id).Updates(map[string]interface{}{
			"source_warehouse_id":      transfer.SourceWarehouseId,
			"destination_warehouse_id": transfer.DestinationWarehouseId,
			"transfer_date":            transfer.TransferDate,
			"remarks":                  transfer.Remarks,
			"total_amount":             transfer.TotalAmount,
		}).Error; err != nil {
			return wrapStoreError(err)
		}
		return createHistory(tx, ActionUpdate, FamilyTransfer, id, old, transfer, "Stock transfer updated.")
	})
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

func GetStockTransfer(ctx context.Context, db *gorm.DB, id int) (*StockTransfer, error) {
	doc, err := LoadDocument(db.WithContext(ctx), FamilyTransfer, id)
	if err != nil {
		return nil, err
	}
	return doc.(*StockTransfer), nil
}

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

type Purchase struct {
	ID                int              `gorm:"primary_key" json:"id"`
	SupplierId        int              `gorm:"index;not null" json:"supplier_id"`
	WarehouseId       int              `gorm:"index;not null" json:"warehouse_id"`
	PurchaseDate      time.Time        `gorm:"index;not null" json:"purchase_date"`
	DueDate           *time.Time       `json:"due_date"`
	Remarks           string           `gorm:"type:text" json:"remarks"`
	TotalAmount       decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	PaidAmount        decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	InitialPaidAmount decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"initial_paid_amount"`
	IsDeleted         bool             `gorm:"not null;default:false;index" json:"is_deleted"`
	DeletedAt         *time.Time       `json:"deleted_at"`
	Details           []PurchaseDetail `gorm:"foreignKey:PurchaseId" json:"details"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseDetail struct {
	ID         int             `gorm:"primary_key" json:"id"`
	PurchaseId int             `gorm:"index;not null" json:"purchase_id"`
	ItemId     int             `gorm:"index;not null" json:"item_id"`
	Qty        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Rate       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

type NewPurchase struct {
	SupplierId        int                 `json:"supplier_id" binding:"required"`
	WarehouseId       int                 `json:"warehouse_id" binding:"required"`
	PurchaseDate      time.Time           `json:"purchase_date" binding:"required"`
	DueDate           *time.Time          `json:"due_date"`
	Remarks           string              `json:"remarks"`
	InitialPaidAmount decimal.Decimal     `json:"initial_paid_amount" binding:"gte=0"`
	Details           []NewPurchaseDetail `json:"details"`
}

type NewPurchaseDetail struct {
	ItemId int             `json:"item_id"`
	Qty    decimal.Decimal `json:"qty"`
	Rate   decimal.Decimal `json:"rate"`
}

func (p *Purchase) Family() DocumentFamily     { return FamilyPurchase }
func (p *Purchase) DocumentId() int            { return p.ID }
func (p *Purchase) DocumentDate() time.Time    { return p.PurchaseDate }
func (p *Purchase) Trashed() bool              { return p.IsDeleted }
func (p *Purchase) PaymentKind() PaymentKind   { return PaymentKindSupplier }
func (p *Purchase) PartyId() int               { return p.SupplierId }
func (p *Purchase) AmountDue() decimal.Decimal { return p.TotalAmount }
func (p *Purchase) CachedPaid() decimal.Decimal {
	return p.PaidAmount
}

func (p *Purchase) Movements() []StockMovement {
	out := make([]StockMovement, 0, len(p.Details))
	for _, d := range p.Details {
		out = append(out, StockMovement{ItemId: d.ItemId, WarehouseId: p.WarehouseId, Qty: d.Qty})
	}
	return out
}

func (p *Purchase) upstreamItems() []int {
	ids := make([]int, 0, len(p.Details))
	for _, d := range p.Details {
		ids = append(ids, d.ItemId)
	}
	return utils.UniqueSlice(ids)
}

func (input *NewPurchase) validate(tx *gorm.DB) error {
	if err := validateHeader(input.PurchaseDate, len(input.Details), input.InitialPaidAmount); err != nil {
		return err
	}
	itemIds := make([]int, 0, len(input.Details))
	for i, d := range input.Details {
		if err := validateLine(i, d.ItemId, d.Qty, d.Rate, lineRule{requirePositiveRate: true}); err != nil {
			return err
		}
		itemIds = append(itemIds, d.ItemId)
	}
	if err := requireExists[Supplier](tx, "supplier", input.SupplierId); err != nil {
		return err
	}
	if err := requireExists[Warehouse](tx, "warehouse", input.WarehouseId); err != nil {
		return err
	}
	return requireItems(tx, utils.UniqueSlice(itemIds))
}

// apply copies input onto the header and rebuilds the lines and total.
func (input *NewPurchase) apply(p *Purchase) {
	p.SupplierId = input.SupplierId
	p.WarehouseId = input.WarehouseId
	p.PurchaseDate = utils.DateOnly(input.PurchaseDate)
	p.DueDate = input.DueDate
	p.Remarks = strings.TrimSpace(input.Remarks)
	p.InitialPaidAmount = input.InitialPaidAmount.Round(4)

	total := decimal.Zero
	p.Details = make([]PurchaseDetail, 0, len(input.Details))
	for _, d := range input.Details {
		amount := lineAmount(d.Qty, d.Rate)
		p.Details = append(p.Details, PurchaseDetail{
			PurchaseId: p.ID,
			ItemId:     d.ItemId,
			Qty:        d.Qty.Round(4),
			Rate:       d.Rate.Round(4),
			Amount:     amount,
		})
		total = total.Add(amount)
	}
	p.TotalAmount = total
}

func CreatePurchase(ctx context.Context, db *gorm.DB, input NewPurchase) (*Purchase, error) {
	var purchase Purchase
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := input.validate(tx); err != nil {
			return err
		}
		input.apply(&purchase)
		purchase.PaidAmount = purchase.InitialPaidAmount

		if err := tx.Omit(clause.Associations).Create(&purchase).Error; err != nil {
			return wrapStoreError(err)
		}
		for i := range purchase.Details {
			purchase.Details[i].PurchaseId = purchase.ID
		}
		if err := wrapStoreError(tx.Create(&purchase.Details).Error); err != nil {
			return err
		}
		if err := postDocument(tx, &purchase, OperationCreate, 1, purchase.PurchaseDate); err != nil {
			return err
		}
		if err := syncInitialPayment(tx, &purchase, purchase.InitialPaidAmount); err != nil {
			return err
		}
		return createHistory(tx, ActionCreate, FamilyPurchase, purchase.ID, nil, purchase,
			fmt.Sprintf("Purchase created for %s.", purchase.TotalAmount.StringFixed(2)))
	})
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// UpdatePurchase compensates the old lines and re-posts the new ones.
func UpdatePurchase(ctx context.Context, db *gorm.DB, id int, input NewPurchase) (*Purchase, error) {
	var purchase Purchase
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := LoadDocument(tx, FamilyPurchase, id)
		if err != nil {
			return err
		}
		old := doc.(*Purchase)
		if old.IsDeleted {
			return &ConflictError{Message: fmt.Sprintf("purchase #%d is in trash and cannot be edited", id)}
		}
		if err := input.validate(tx); err != nil {
			return err
		}

		purchase = *old
		input.apply(&purchase)
		purchase.PaidAmount = old.PaidAmount.Add(purchase.InitialPaidAmount.Sub(old.InitialPaidAmount))

		if err := replaceDocument(tx, old, &purchase); err != nil {
			return err
		}
		if err := replaceLines(tx, FamilyPurchase, id, purchase.Details); err != nil {
			return err
		}
		if err := tx.Model(&Purchase{}).Where("id = ?", id).Updates(map[string]interface{}{
			"supplier_id":         purchase.SupplierId,
			"warehouse_id":        purchase.WarehouseId,
			"purchase_date":       purchase.PurchaseDate,
			"due_date":            purchase.DueDate,
			"remarks":             purchase.Remarks,
			"total_amount":        purchase.TotalAmount,
			"paid_amount":         purchase.PaidAmount,
			"initial_paid_amount": purchase.InitialPaidAmount,
		}).Error; err != nil {
			return wrapStoreError(err)
		}
		if !purchase.InitialPaidAmount.Equal(old.InitialPaidAmount) || purchase.SupplierId != old.SupplierId || !purchase.PurchaseDate.Equal(old.PurchaseDate) {
			if err := syncInitialPayment(tx, &purchase, purchase.InitialPaidAmount); err != nil {
				return err
			}
		}
		return createHistory(tx, ActionUpdate, FamilyPurchase, id, old, purchase,
			fmt.Sprintf("Purchase updated to %s.", purchase.TotalAmount.StringFixed(2)))
	})
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

func GetPurchase(ctx context.Context, db *gorm.DB, id int) (*Purchase, error) {
	doc, err := LoadDocument(db.WithContext(ctx), FamilyPurchase, id)
	if err != nil {
		return nil, err
	}
	return doc.(*Purchase), nil
}

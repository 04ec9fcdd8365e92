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

var hundred = decimal.NewFromInt(100)

type Sale struct {
	ID                    int             `gorm:"primary_key" json:"id"`
	CustomerId            int             `gorm:"index;not null" json:"customer_id"`
	WarehouseId           int             `gorm:"index;not null" json:"warehouse_id"`
	SaleDate              time.Time       `gorm:"index;not null" json:"sale_date"`
	DueDate               *time.Time      `json:"due_date"`
	Remarks               string          `gorm:"type:text" json:"remarks"`
	SubTotal              decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sub_total"`
	TaxAmount             decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	TotalAmount           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	ReceivedAmount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"received_amount"`
	InitialReceivedAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"initial_received_amount"`
	IsDeleted             bool            `gorm:"not null;default:false;index" json:"is_deleted"`
	DeletedAt             *time.Time      `json:"deleted_at"`
	Details               []SaleDetail    `gorm:"foreignKey:SaleId" json:"details"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type SaleDetail struct {
	ID        int             `gorm:"primary_key" json:"id"`
	SaleId    int             `gorm:"index;not null" json:"sale_id"`
	ItemId    int             `gorm:"index;not null" json:"item_id"`
	Qty       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Rate      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	TaxRate   decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"tax_rate"`
	TaxAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
}

type NewSale struct {
	CustomerId            int             `json:"customer_id" binding:"required"`
	WarehouseId           int             `json:"warehouse_id" binding:"required"`
	SaleDate              time.Time       `json:"sale_date" binding:"required"`
	DueDate               *time.Time      `json:"due_date"`
	Remarks               string          `json:"remarks"`
	InitialReceivedAmount decimal.Decimal `json:"initial_received_amount" binding:"gte=0"`
	Details               []NewSaleDetail `json:"details"`
}

type NewSaleDetail struct {
	ItemId  int             `json:"item_id"`
	Qty     decimal.Decimal `json:"qty"`
	Rate    decimal.Decimal `json:"rate"`
	TaxRate decimal.Decimal `json:"tax_rate"`
}

func (s *Sale) Family() DocumentFamily      { return FamilySale }
func (s *Sale) DocumentId() int             { return s.ID }
func (s *Sale) DocumentDate() time.Time     { return s.SaleDate }
func (s *Sale) Trashed() bool               { return s.IsDeleted }
func (s *Sale) PaymentKind() PaymentKind    { return PaymentKindCustomer }
func (s *Sale) PartyId() int                { return s.CustomerId }
func (s *Sale) AmountDue() decimal.Decimal  { return s.TotalAmount }
func (s *Sale) CachedPaid() decimal.Decimal { return s.ReceivedAmount }
func (s *Sale) upstreamItems() []int        { return nil }

func (s *Sale) Movements() []StockMovement {
	out := make([]StockMovement, 0, len(s.Details))
	for _, d := range s.Details {
		out = append(out, StockMovement{ItemId: d.ItemId, WarehouseId: s.WarehouseId, Qty: d.Qty.Neg()})
	}
	return out
}

func (s *Sale) stockLines() []StockLine {
	lines := make([]StockLine, 0, len(s.Details))
	for _, d := range s.Details {
		lines = append(lines, StockLine{ItemId: d.ItemId, Qty: d.Qty})
	}
	return lines
}

func (input *NewSale) validate(tx *gorm.DB) error {
	if err := validateHeader(input.SaleDate, len(input.Details), input.InitialReceivedAmount); err != nil {
		return err
	}
	itemIds := make([]int, 0, len(input.Details))
	for i, d := range input.Details {
		if err := validateLine(i, d.ItemId, d.Qty, d.Rate, lineRule{requirePositiveRate: true}); err != nil {
			return err
		}
		if d.TaxRate.IsNegative() {
			return newValidationError(fmt.Sprintf("details[%d].tax_rate", i), "tax rate cannot be negative")
		}
		itemIds = append(itemIds, d.ItemId)
	}
	if err := requireExists[Customer](tx, "customer", input.CustomerId); err != nil {
		return err
	}
	if err := requireExists[Warehouse](tx, "warehouse", input.WarehouseId); err != nil {
		return err
	}
	return requireItems(tx, utils.UniqueSlice(itemIds))
}

func (input *NewSale) apply(s *Sale) {
	s.CustomerId = input.CustomerId
	s.WarehouseId = input.WarehouseId
	s.SaleDate = utils.DateOnly(input.SaleDate)
	s.DueDate = input.DueDate
	s.Remarks = strings.TrimSpace(input.Remarks)
	s.InitialReceivedAmount = input.InitialReceivedAmount.Round(4)

	subTotal := decimal.Zero
	taxTotal := decimal.Zero
	s.Details = make([]SaleDetail, 0, len(input.Details))
	for _, d := range input.Details {
		amount := lineAmount(d.Qty, d.Rate)
		tax := amount.Mul(d.TaxRate).Div(hundred).Round(4)
		s.Details = append(s.Details, SaleDetail{
			SaleId:    s.ID,
			ItemId:    d.ItemId,
			Qty:       d.Qty.Round(4),
			Rate:      d.Rate.Round(4),
			Amount:    amount,
			TaxRate:   d.TaxRate.Round(4),
			TaxAmount: tax,
		})
		subTotal = subTotal.Add(amount)
		taxTotal = taxTotal.Add(tax)
	}
	s.SubTotal = subTotal
	s.TaxAmount = taxTotal
	s.TotalAmount = subTotal.Add(taxTotal)
}

// CreateSale refuses the whole sale when any line is short of stock.
func CreateSale(ctx context.Context, db *gorm.DB, input NewSale) (*Sale, error) {
	var sale Sale
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := input.validate(tx); err != nil {
			return err
		}
		input.apply(&sale)
		sale.ReceivedAmount = sale.InitialReceivedAmount

		if err := ensureAvailable(tx, sale.WarehouseId, sale.stockLines(), nil); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(&sale).Error; err != nil {
			return wrapStoreError(err)
		}
		for i := range sale.Details {
			sale.Details[i].SaleId = sale.ID
		}
		if err := wrapStoreError(tx.Create(&sale.Details).Error); err != nil {
			return err
		}
		if err := postDocument(tx, &sale, OperationCreate, 1, sale.SaleDate); err != nil {
			return err
		}
		if err := syncInitialPayment(tx, &sale, sale.InitialReceivedAmount); err != nil {
			return err
		}
		return createHistory(tx, ActionCreate, FamilySale, sale.ID, nil, sale,
			fmt.Sprintf("Sale created for %s.", sale.TotalAmount.StringFixed(2)))
	})
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// UpdateSale checks stock with the old lines virtually returned, then
// compensates and re-posts.
func UpdateSale(ctx context.Context, db *gorm.DB, id int, input NewSale) (*Sale, error) {
	var sale Sale
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := LoadDocument(tx, FamilySale, id)
		if err != nil {
			return err
		}
		old := doc.(*Sale)
		if old.IsDeleted {
			return &ConflictError{Message: fmt.Sprintf("sale #%d is in trash and cannot be edited", id)}
		}
		if err := input.validate(tx); err != nil {
			return err
		}

		sale = *old
		input.apply(&sale)
		sale.ReceivedAmount = old.ReceivedAmount.Add(sale.InitialReceivedAmount.Sub(old.InitialReceivedAmount))

		if err := ensureAvailable(tx, sale.WarehouseId, sale.stockLines(), old.Movements()); err != nil {
			return err
		}
		if err := replaceDocument(tx, old, &sale); err != nil {
			return err
		}
		if err := replaceLines(tx, FamilySale, id, sale.Details); err != nil {
			return err
		}
		if err := tx.Model(&Sale{}).Where("id = ?", id).Updates(map[string]interface{}{
			"customer_id":             sale.CustomerId,
			"warehouse_id":            sale.WarehouseId,
			"sale_date":               sale.SaleDate,
			"due_date":                sale.DueDate,
			"remarks":                 sale.Remarks,
			"sub_total":               sale.SubTotal,
			"tax_amount":              sale.TaxAmount,
			"total_amount":            sale.TotalAmount,
			"received_amount":         sale.ReceivedAmount,
			"initial_received_amount": sale.InitialReceivedAmount,
		}).Error; err != nil {
			return wrapStoreError(err)
		}
		if !sale.InitialReceivedAmount.Equal(old.InitialReceivedAmount) || sale.CustomerId != old.CustomerId || !sale.SaleDate.Equal(old.SaleDate) {
			if err := syncInitialPayment(tx, &sale, sale.InitialReceivedAmount); err != nil {
				return err
			}
		}
		return createHistory(tx, ActionUpdate, FamilySale, id, old, sale,
			fmt.Sprintf("Sale updated to %s.", sale.TotalAmount.StringFixed(2)))
	})
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func GetSale(ctx context.Context, db *gorm.DB, id int) (*Sale, error) {
	doc, err := LoadDocument(db.WithContext(ctx), FamilySale, id)
	if err != nil {
		return nil, err
	}
	return doc.(*Sale), nil
}

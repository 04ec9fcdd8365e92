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

type ProductionRole string

const (
	ProductionRoleOutput      ProductionRole = "OUTPUT"
	ProductionRoleConsumption ProductionRole = "CONSUMPTION"
)

// ProductionRun turns consumed materials into output items within one warehouse.
// A manual run records output the floor has physically confirmed and is not
// held back by the book stock of its materials.
type ProductionRun struct {
	ID             int                   `gorm:"primary_key" json:"id"`
	WarehouseId    int                   `gorm:"index;not null" json:"warehouse_id"`
	ProductionDate time.Time             `gorm:"index;not null" json:"production_date"`
	IsManual       bool                  `gorm:"not null;default:false" json:"is_manual"`
	Remarks        string                `gorm:"type:text" json:"remarks"`
	TotalAmount    decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	IsDeleted      bool                  `gorm:"not null;default:false;index" json:"is_deleted"`
	DeletedAt      *time.Time            `json:"deleted_at"`
	Details        []ProductionRunDetail `gorm:"foreignKey:ProductionRunId" json:"details"`
	CreatedAt      time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type ProductionRunDetail struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ProductionRunId int             `gorm:"index;not null" json:"production_run_id"`
	ItemId          int             `gorm:"index;not null" json:"item_id"`
	Role            ProductionRole  `gorm:"size:20;not null" json:"role"`
	Qty             decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Rate            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

type NewProductionRun struct {
	WarehouseId    int                      `json:"warehouse_id" binding:"required"`
	ProductionDate time.Time                `json:"production_date" binding:"required"`
	IsManual       bool                     `json:"is_manual"`
	Remarks        string                   `json:"remarks"`
	Details        []NewProductionRunDetail `json:"details"`
}

type NewProductionRunDetail struct {
	ItemId int             `json:"item_id"`
	Role   ProductionRole  `json:"role"`
	Qty    decimal.Decimal `json:"qty"`
	Rate   decimal.Decimal `json:"rate"`
}

func (r *ProductionRun) Family() DocumentFamily  { return FamilyProduction }
func (r *ProductionRun) DocumentId() int         { return r.ID }
func (r *ProductionRun) DocumentDate() time.Time { return r.ProductionDate }
func (r *ProductionRun) Trashed() bool           { return r.IsDeleted }

func (r *ProductionRun) Movements() []StockMovement {
	out := make([]StockMovement, 0, len(r.Details))
	for _, d := range r.Details {
		qty := d.Qty
		if d.Role == ProductionRoleConsumption {
			qty = qty.Neg()
		}
		out = append(out, StockMovement{ItemId: d.ItemId, WarehouseId: r.WarehouseId, Qty: qty})
	}
	return out
}

// upstreamItems are the outputs; sales of them depend on this run.
func (r *ProductionRun) upstreamItems() []int {
	ids := make([]int, 0)
	for _, d := range r.Details {
		if d.Role == ProductionRoleOutput {
			ids = append(ids, d.ItemId)
		}
	}
	return utils.UniqueSlice(ids)
}

func (r *ProductionRun) consumptionLines() []StockLine {
	lines := make([]StockLine, 0)
	for _, d := range r.Details {
		if d.Role == ProductionRoleConsumption {
			lines = append(lines, StockLine{ItemId: d.ItemId, Qty: d.Qty})
		}
	}
	return lines
}

func (input *NewProductionRun) validate(tx *gorm.DB) error {
	if err := validateHeader(input.ProductionDate, len(input.Details), decimal.Zero); err != nil {
		return err
	}
	itemIds := make([]int, 0, len(input.Details))
	outputs := 0
	for i, d := range input.Details {
		if err := validateLine(i, d.ItemId, d.Qty, d.Rate, lineRule{}); err != nil {
			return err
		}
		switch d.Role {
		case ProductionRoleOutput:
			outputs++
		case ProductionRoleConsumption:
		default:
			return newValidationError(fmt.Sprintf("details[%d].role", i), "role must be OUTPUT or CONSUMPTION")
		}
		itemIds = append(itemIds, d.ItemId)
	}
	if outputs == 0 {
		return newValidationError("details", "at least one OUTPUT line is required")
	}
	if err := requireExists[Warehouse](tx, "warehouse", input.WarehouseId); err != nil {
		return err
	}
	return requireItems(tx, utils.UniqueSlice(itemIds))
}

func (input *NewProductionRun) apply(r *ProductionRun) {
	r.WarehouseId = input.WarehouseId
	r.ProductionDate = utils.DateOnly(input.ProductionDate)
	r.IsManual = input.IsManual
	r.Remarks = strings.TrimSpace(input.Remarks)

	total := decimal.Zero
	r.Details = make([]ProductionRunDetail, 0, len(input.Details))
	for _, d := range input.Details {
		amount := lineAmount(d.Qty, d.Rate)
		r.Details = append(r.Details, ProductionRunDetail{
			ProductionRunId: r.ID,
			ItemId:          d.ItemId,
			Role:            d.Role,
			Qty:             d.Qty.Round(4),
			Rate:            d.Rate.Round(4),
			Amount:          amount,
		})
		if d.Role == ProductionRoleConsumption {
			total = total.Add(amount)
		}
	}
	r.TotalAmount = total
}

// guardConsumption checks material stock unless the run is manual.
func (r *ProductionRun) guardConsumption(tx *gorm.DB, editing []StockMovement) error {
	if r.IsManual {
		return nil
	}
	return ensureAvailable(tx, r.WarehouseId, r.consumptionLines(), editing)
}

func CreateProductionRun(ctx context.Context, db *gorm.DB, input NewProductionRun) (*ProductionRun, error) {
	var run ProductionRun
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := input.validate(tx); err != nil {
			return err
		}
		input.apply(&run)
		if err := run.guardConsumption(tx, nil); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(&run).Error; err != nil {
			return wrapStoreError(err)
		}
		for i := range run.Details {
			run.Details[i].ProductionRunId = run.ID
		}
		if err := wrapStoreError(tx.Create(&run.Details).Error); err != nil {
			return err
		}
		if err := postDocument(tx, &run, OperationCreate, 1, run.ProductionDate); err != nil {
			return err
		}
		return createHistory(tx, ActionCreate, FamilyProduction, run.ID, nil, run, "Production run recorded.")
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func UpdateProductionRun(ctx context.Context, db *gorm.DB, id int, input NewProductionRun) (*ProductionRun, error) {
	var run ProductionRun
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := LoadDocument(tx, FamilyProduction, id)
		if err != nil {
			return err
		}
		old := doc.(*ProductionRun)
		if old.IsDeleted {
			return &ConflictError{Message: fmt.Sprintf("production run #%d is in trash and cannot be edited", id)}
		}
		if err := input.validate(tx); err != nil {
			return err
		}

		run = *old
		input.apply(&run)
		if err := run.guardConsumption(tx, old.Movements()); err != nil {
			return err
		}
		if err := replaceDocument(tx, old, &run); err != nil {
			return err
		}
		if err := replaceLines(tx, FamilyProduction, id, run.Details); err != nil {
			return err
		}
		if err := tx.Model(&ProductionRun{}).Where("id = ?", id).Updates(map[string]interface{}{
			"warehouse_id":    run.WarehouseId,
			"production_date": run.ProductionDate,
			"is_manual":       run.IsManual,
			"remarks":         run.Remarks,
			"total_amount":    run.TotalAmount,
		}).Error; err != nil {
			return wrapStoreError(err)
		}
		return createHistory(tx, ActionUpdate, FamilyProduction, id, old, run, "Production run updated.")
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func GetProductionRun(ctx context.Context, db *gorm.DB, id int) (*ProductionRun, error) {
	doc, err := LoadDocument(db.WithContext(ctx), FamilyProduction, id)
	if err != nil {
		return nil, err
	}
	return doc.(*ProductionRun), nil
}

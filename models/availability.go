package models

import (
	"github.com/mmdatafocus/stock_ledger/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockLine is an outbound request for an item from one warehouse.
type StockLine struct {
	ItemId int
	Qty    decimal.Decimal
}

// CheckAvailability reports every item whose requested quantity exceeds what the
// warehouse holds. Lines for the same item reserve cumulatively.
//
// editing holds the signed movements of the document being replaced. They are
// undone before comparing, so available is the balance the new lines post
// against once the old document has been reversed.
func CheckAvailability(tx *gorm.DB, warehouseId int, requested []StockLine, editing []StockMovement) ([]Shortfall, error) {
	reserved := make(map[int]decimal.Decimal)
	for _, l := range requested {
		reserved[l.ItemId] = reserved[l.ItemId].Add(l.Qty)
	}

	undo := make(map[int]decimal.Decimal)
	for _, m := range editing {
		if m.WarehouseId != warehouseId {
			continue
		}
		undo[m.ItemId] = undo[m.ItemId].Sub(m.Qty)
	}

	shortfalls := make([]Shortfall, 0)
	for _, itemId := range utils.SortedKeys(reserved) {
		want := reserved[itemId]
		onHand, err := Balance(tx, itemId, warehouseId, nil)
		if err != nil {
			return nil, err
		}
		available := utils.Normalize(onHand.Add(undo[itemId]))
		if utils.ExceedsBy(want, available) {
			shortfalls = append(shortfalls, Shortfall{
				ItemId:    itemId,
				Available: available,
				Requested: want,
				Shortfall: want.Sub(available),
			})
		}
	}
	return shortfalls, nil
}

// ensureAvailable turns shortfalls into an InsufficientStockError.
func ensureAvailable(tx *gorm.DB, warehouseId int, requested []StockLine, editing []StockMovement) error {
	if len(requested) == 0 {
		return nil
	}
	shortfalls, err := CheckAvailability(tx, warehouseId, requested, editing)
	if err != nil {
		return err
	}
	if len(shortfalls) > 0 {
		return &InsufficientStockError{WarehouseId: warehouseId, Shortfalls: shortfalls}
	}
	return nil
}

package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/stock_ledger/config"
	"github.com/mmdatafocus/stock_ledger/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockDocument is implemented by every document family that moves stock.
type StockDocument interface {
	Family() DocumentFamily
	DocumentId() int
	DocumentDate() time.Time
	Trashed() bool
	// Movements returns the signed effect of the current lines.
	Movements() []StockMovement
	// upstreamItems lists items whose later sales depend on this document.
	// Only supply documents return anything.
	upstreamItems() []int
}

// LoadDocument dispatches on family and loads the header with its lines.
func LoadDocument(tx *gorm.DB, family DocumentFamily, id int) (StockDocument, error) {
	var (
		doc StockDocument
		err error
	)
	switch family {
	case FamilyPurchase:
		var p Purchase
		err = tx.Preload("Details", orderById).First(&p, id).Error
		doc = &p
	case FamilySale:
		var s Sale
		err = tx.Preload("Details", orderById).First(&s, id).Error
		doc = &s
	case FamilyProduction:
		var r ProductionRun
		err = tx.Preload("Details", orderById).First(&r, id).Error
		doc = &r
	case FamilyTransfer:
		var t StockTransfer
		err = tx.Preload("Details", orderById).First(&t, id).Error
		doc = &t
	default:
		return nil, newValidationError("family", "unknown document family %q", family)
	}
	if err != nil {
		return nil, notFoundOr(err, familyEntity(family), id)
	}
	return doc, nil
}

// ActiveDocuments loads every non-trashed document of a family with its lines.
func ActiveDocuments(tx *gorm.DB, family DocumentFamily) ([]StockDocument, error) {
	q := tx.Preload("Details", orderById).Where("is_deleted = ?", false).Order("id")
	var out []StockDocument
	switch family {
	case FamilyPurchase:
		var rows []Purchase
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out = append(out, &rows[i])
		}
	case FamilySale:
		var rows []Sale
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out = append(out, &rows[i])
		}
	case FamilyProduction:
		var rows []ProductionRun
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out = append(out, &rows[i])
		}
	case FamilyTransfer:
		var rows []StockTransfer
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out = append(out, &rows[i])
		}
	default:
		return nil, newValidationError("family", "unknown document family %q", family)
	}
	return out, nil
}

// CreationEntries returns the ledger rows a fresh create of doc would append.
// The rows are not saved.
func CreationEntries(doc StockDocument) []LedgerEntry {
	rt := NewReferenceType(doc.Family(), OperationCreate)
	date := utils.DateOnly(doc.DocumentDate())
	movements := doc.Movements()
	out := make([]LedgerEntry, 0, len(movements))
	for _, m := range movements {
		out = append(out, LedgerEntry{
			ItemId:        m.ItemId,
			WarehouseId:   m.WarehouseId,
			Qty:           m.Qty.Round(4),
			ReferenceType: rt,
			ReferenceId:   doc.DocumentId(),
			EffectiveDate: date,
		})
	}
	return out
}

func orderById(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}

func familyEntity(family DocumentFamily) string {
	switch family {
	case FamilyPurchase:
		return "purchase"
	case FamilySale:
		return "sale"
	case FamilyProduction:
		return "production run"
	case FamilyTransfer:
		return "stock transfer"
	}
	return "document"
}

// detailTable returns the line table and its foreign key column.
func detailTable(family DocumentFamily) (string, string) {
	switch family {
	case FamilyPurchase:
		return "purchase_details", "purchase_id"
	case FamilySale:
		return "sale_details", "sale_id"
	case FamilyProduction:
		return "production_run_details", "production_run_id"
	case FamilyTransfer:
		return "stock_transfer_details", "stock_transfer_id"
	}
	return "", ""
}

// postDocument appends one entry per movement, signed by sign.
func postDocument(tx *gorm.DB, doc StockDocument, op LedgerOperation, sign int64, effectiveDate time.Time) error {
	return appendMovements(tx, doc.Movements(), sign, NewReferenceType(doc.Family(), op), doc.DocumentId(), effectiveDate)
}

// updateReversalDate picks the date for _UPDATE_REVERSAL entries. Compensations
// carry the original business date unless the legacy flag is on.
func updateReversalDate(old StockDocument, newDate time.Time) time.Time {
	if config.LegacyUpdateReversalDating() {
		return newDate
	}
	return old.DocumentDate()
}

// replaceDocument reverses the old document's movements and posts the new ones.
func replaceDocument(tx *gorm.DB, old StockDocument, updated StockDocument) error {
	if err := postDocument(tx, old, OperationUpdateReversal, -1, updateReversalDate(old, updated.DocumentDate())); err != nil {
		return err
	}
	return postDocument(tx, updated, OperationUpdate, 1, updated.DocumentDate())
}

func replaceLines[T any](tx *gorm.DB, family DocumentFamily, documentId int, lines []T) error {
	table, fk := detailTable(family)
	if err := tx.Table(table).Where(fk+" = ?", documentId).Delete(new(T)).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	return wrapStoreError(tx.Create(&lines).Error)
}

// findDependentSale returns the earliest active sale dated on or after date that
// uses any of the given items.
func findDependentSale(tx *gorm.DB, itemIds []int, date time.Time) (*Sale, error) {
	if len(itemIds) == 0 {
		return nil, nil
	}
	var sale Sale
	res := tx.Model(&Sale{}).
		Where("sales.is_deleted = ? AND sales.sale_date >= ?", false, utils.DateOnly(date)).
		Where("EXISTS (SELECT 1 FROM sale_details sd WHERE sd.sale_id = sales.id AND sd.item_id IN ?)", itemIds).
		Order("sales.sale_date, sales.id").
		Limit(1).
		Find(&sale)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &sale, nil
}

func checkDependencies(tx *gorm.DB, doc StockDocument) error {
	blocking, err := findDependentSale(tx, doc.upstreamItems(), doc.DocumentDate())
	if err != nil || blocking == nil {
		return err
	}
	date := blocking.SaleDate
	return &ConflictError{
		Message: fmt.Sprintf("cannot delete %s #%d: sale #%d dated %s uses the same item(s)",
			familyEntity(doc.Family()), doc.DocumentId(), blocking.ID, date.Format(utils.DateLayout)),
		BlockingFamily: FamilySale,
		BlockingId:     blocking.ID,
		BlockingDate:   &date,
	}
}

func setTrashed(tx *gorm.DB, family DocumentFamily, id int, trashed bool) error {
	var deletedAt *time.Time
	if trashed {
		now := time.Now().UTC()
		deletedAt = &now
	}
	return tx.Table(family.TableName()).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_deleted": trashed,
			"deleted_at": deletedAt,
		}).Error
}

// SoftDeleteDocument reverses a document's ledger effect on its own business date
// and moves it to trash. Supply documents are refused while a later sale uses
// their items.
func SoftDeleteDocument(ctx context.Context, db *gorm.DB, family DocumentFamily, id int) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := LoadDocument(tx, family, id)
		if err != nil {
			return err
		}
		if doc.Trashed() {
			return &ConflictError{Message: fmt.Sprintf("%s #%d is already in trash", familyEntity(family), id)}
		}
		if err := checkDependencies(tx, doc); err != nil {
			return err
		}
		if err := postDocument(tx, doc, OperationReversal, -1, doc.DocumentDate()); err != nil {
			return err
		}
		if err := setTrashed(tx, family, id, true); err != nil {
			return err
		}
		return createHistory(tx, ActionDelete, family, id, doc, nil,
			fmt.Sprintf("%s moved to trash.", familyEntity(family)))
	})
}

// RestoreDocument brings a trashed document back and re-posts its lines.
func RestoreDocument(ctx context.Context, db *gorm.DB, family DocumentFamily, id int) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := LoadDocument(tx, family, id)
		if err != nil {
			return err
		}
		if !doc.Trashed() {
			return &ConflictError{Message: fmt.Sprintf("%s #%d is not in trash", familyEntity(family), id)}
		}
		if err := postDocument(tx, doc, OperationRestore, 1, doc.DocumentDate()); err != nil {
			return err
		}
		if err := setTrashed(tx, family, id, false); err != nil {
			return err
		}
		return createHistory(tx, ActionRestore, family, id, nil, doc,
			fmt.Sprintf("%s restored from trash.", familyEntity(family)))
	})
}

// PurgeDocument permanently removes a trashed document, its lines and every
// ledger entry of its family that references it.
func PurgeDocument(ctx context.Context, db *gorm.DB, family DocumentFamily, id int) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := LoadDocument(tx, family, id)
		if err != nil {
			return err
		}
		if !doc.Trashed() {
			return &ConflictError{Message: fmt.Sprintf("%s #%d must be in trash before it can be purged", familyEntity(family), id)}
		}
		if err := tx.Where("reference_type LIKE ? AND reference_id = ?", string(family)+"%", id).
			Delete(&LedgerEntry{}).Error; err != nil {
			return err
		}
		if payable, ok := doc.(PayableDocument); ok {
			if err := releasePayments(tx, payable.PaymentKind(), id); err != nil {
				return err
			}
		}
		table, fk := detailTable(family)
		if err := tx.Exec("DELETE FROM "+table+" WHERE "+fk+" = ?", id).Error; err != nil {
			return wrapStoreError(err)
		}
		if err := tx.Exec("DELETE FROM "+family.TableName()+" WHERE id = ?", id).Error; err != nil {
			return wrapStoreError(err)
		}
		return createHistory(tx, ActionPurge, family, id, doc, nil,
			fmt.Sprintf("%s permanently deleted.", familyEntity(family)))
	})
}

// lineAmount is qty * rate at ledger precision.
func lineAmount(qty, rate decimal.Decimal) decimal.Decimal {
	return qty.Mul(rate).Round(4)
}

type lineRule struct {
	requirePositiveRate bool
}

func validateLine(index int, itemId int, qty, rate decimal.Decimal, rule lineRule) error {
	field := fmt.Sprintf("details[%d]", index)
	if itemId <= 0 {
		return newValidationError(field+".item_id", "item is required")
	}
	if !qty.IsPositive() {
		return newValidationError(field+".qty", "quantity must be greater than zero")
	}
	if rule.requirePositiveRate && !rate.IsPositive() {
		return newValidationError(field+".rate", "rate must be greater than zero")
	}
	if rate.IsNegative() {
		return newValidationError(field+".rate", "rate cannot be negative")
	}
	return nil
}

func validateHeader(date time.Time, lineCount int, initialAmount decimal.Decimal) error {
	if date.IsZero() {
		return newValidationError("date", "document date is required")
	}
	if lineCount == 0 {
		return newValidationError("details", "at least one line is required")
	}
	if initialAmount.IsNegative() {
		return newValidationError("initial_amount", "initial amount cannot be negative")
	}
	return nil
}

// IsDomainError reports whether err belongs to the documented error taxonomy.
func IsDomainError(err error) bool {
	var (
		ve *ValidationError
		ne *NotFoundError
		ce *ConflictError
		se *InsufficientStockError
		ie *IntegrityError
	)
	return errors.As(err, &ve) || errors.As(err, &ne) || errors.As(err, &ce) || errors.As(err, &se) || errors.As(err, &ie)
}

package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/stock_ledger/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentKind string

const (
	PaymentKindSupplier PaymentKind = "SUPPLIER"
	PaymentKindCustomer PaymentKind = "CUSTOMER"
)

// DocumentFamily is the family a payment of this kind settles.
func (k PaymentKind) DocumentFamily() DocumentFamily {
	if k == PaymentKindSupplier {
		return FamilyPurchase
	}
	return FamilySale
}

// PaymentOrigin records who created a payment row.
type PaymentOrigin string

const (
	PaymentOriginUserEntered       PaymentOrigin = "USER_ENTERED"
	PaymentOriginInitialAtCreation PaymentOrigin = "INITIAL_AT_CREATION"
	PaymentOriginHealed            PaymentOrigin = "HEALED"
)

const (
	initialPaymentRemarks = "Initial payment at creation time"
	initialReceiptRemarks = "Initial receipt at creation time"
	HealedPaymentRemarks  = "Healed by sync-balances"
)

// PaymentRecord is a supplier payment or a customer receipt, optionally
// linked to the purchase or sale it settles.
type PaymentRecord struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Kind        PaymentKind     `gorm:"size:20;index:idx_payment_kind_party;not null" json:"kind"`
	PartyId     int             `gorm:"index:idx_payment_kind_party;not null" json:"party_id"`
	DocumentId  *int            `gorm:"index" json:"document_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	PaymentDate time.Time       `gorm:"index;not null" json:"payment_date"`
	PaidBy      string          `gorm:"size:255" json:"paid_by"`
	Remarks     string          `gorm:"type:text" json:"remarks"`
	Origin      PaymentOrigin   `gorm:"size:30;index;not null" json:"origin"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPaymentRecord struct {
	PartyId     int             `json:"party_id" binding:"required"`
	DocumentId  *int            `json:"document_id"`
	Amount      decimal.Decimal `json:"amount" binding:"gt=0"`
	PaymentDate time.Time       `json:"payment_date" binding:"required"`
	PaidBy      string          `json:"paid_by"`
	Remarks     string          `json:"remarks"`
}

// PayableDocument is a document whose cached paid total the reconciliation keeps honest.
type PayableDocument interface {
	StockDocument
	PaymentKind() PaymentKind
	PartyId() int
	AmountDue() decimal.Decimal
	CachedPaid() decimal.Decimal
}

// CreatePaymentRecord stores a user-entered payment and adds it to the linked
// document's cached total.
func CreatePaymentRecord(ctx context.Context, db *gorm.DB, kind PaymentKind, input NewPaymentRecord) (*PaymentRecord, error) {
	if !utils.ExceedsBy(input.Amount, decimal.Zero) {
		return nil, newValidationError("amount", "amount must be greater than zero")
	}
	if input.PaymentDate.IsZero() {
		return nil, newValidationError("payment_date", "payment date is required")
	}
	var record *PaymentRecord
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireParty(tx, kind, input.PartyId); err != nil {
			return err
		}
		if input.DocumentId != nil {
			doc, err := loadPayable(tx, kind, *input.DocumentId)
			if err != nil {
				return err
			}
			if doc.PartyId() != input.PartyId {
				return newValidationError("document_id", "document #%d belongs to another party", *input.DocumentId)
			}
			if doc.Trashed() {
				return &ConflictError{Message: fmt.Sprintf("document #%d is in trash", *input.DocumentId)}
			}
		}
		record = &PaymentRecord{
			Kind:        kind,
			PartyId:     input.PartyId,
			DocumentId:  input.DocumentId,
			Amount:      input.Amount.Round(4),
			PaymentDate: utils.DateOnly(input.PaymentDate),
			PaidBy:      strings.TrimSpace(input.PaidBy),
			Remarks:     input.Remarks,
			Origin:      PaymentOriginUserEntered,
		}
		if err := tx.Create(record).Error; err != nil {
			return wrapStoreError(err)
		}
		if record.DocumentId != nil {
			if err := adjustCachedPaid(tx, kind.DocumentFamily(), *record.DocumentId, record.Amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func ListPaymentRecords(ctx context.Context, db *gorm.DB, kind PaymentKind) ([]PaymentRecord, error) {
	var rows []PaymentRecord
	err := db.WithContext(ctx).Where("kind = ?", kind).Order("id").Find(&rows).Error
	return rows, err
}

func requireParty(tx *gorm.DB, kind PaymentKind, partyId int) error {
	if kind == PaymentKindSupplier {
		return requireExists[Supplier](tx, "supplier", partyId)
	}
	return requireExists[Customer](tx, "customer", partyId)
}

func loadPayable(tx *gorm.DB, kind PaymentKind, id int) (PayableDocument, error) {
	doc, err := LoadDocument(tx, kind.DocumentFamily(), id)
	if err != nil {
		return nil, err
	}
	return doc.(PayableDocument), nil
}

func cachedPaidColumn(family DocumentFamily) string {
	if family == FamilyPurchase {
		return "paid_amount"
	}
	return "received_amount"
}

// SetCachedPaid overwrites a document's cached paid/received total.
func SetCachedPaid(tx *gorm.DB, family DocumentFamily, documentId int, amount decimal.Decimal) error {
	return tx.Table(family.TableName()).
		Where("id = ?", documentId).
		Update(cachedPaidColumn(family), amount.Round(4)).Error
}

// LoadPayables returns every document (trashed included) payments of kind can settle, by id.
func LoadPayables(tx *gorm.DB, kind PaymentKind) ([]PayableDocument, error) {
	var out []PayableDocument
	if kind == PaymentKindSupplier {
		var rows []Purchase
		if err := tx.Order("id").Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out = append(out, &rows[i])
		}
		return out, nil
	}
	var rows []Sale
	if err := tx.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out = append(out, &rows[i])
	}
	return out, nil
}

func adjustCachedPaid(tx *gorm.DB, family DocumentFamily, documentId int, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	col := cachedPaidColumn(family)
	return tx.Table(family.TableName()).
		Where("id = ?", documentId).
		Update(col, gorm.Expr(col+" + ?", delta)).Error
}

// syncInitialPayment keeps the single INITIAL_AT_CREATION record in step with the
// document's upfront amount. The record is edited in place, never appended.
func syncInitialPayment(tx *gorm.DB, doc PayableDocument, amount decimal.Decimal) error {
	kind := doc.PaymentKind()
	var existing PaymentRecord
	res := tx.Where("kind = ? AND document_id = ? AND origin = ?", kind, doc.DocumentId(), PaymentOriginInitialAtCreation).
		Order("id").
		Limit(1).
		Find(&existing)
	if res.Error != nil {
		return res.Error
	}
	found := res.RowsAffected > 0
	amount = amount.Round(4)

	switch {
	case found && amount.IsPositive():
		return tx.Model(&PaymentRecord{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"amount":       amount,
				"party_id":     doc.PartyId(),
				"payment_date": utils.DateOnly(doc.DocumentDate()),
			}).Error
	case found:
		return tx.Delete(&PaymentRecord{}, existing.ID).Error
	case amount.IsPositive():
		remarks := initialPaymentRemarks
		if kind == PaymentKindCustomer {
			remarks = initialReceiptRemarks
		}
		id := doc.DocumentId()
		rec := PaymentRecord{
			Kind:        kind,
			PartyId:     doc.PartyId(),
			DocumentId:  &id,
			Amount:      amount,
			PaymentDate: utils.DateOnly(doc.DocumentDate()),
			Remarks:     remarks,
			Origin:      PaymentOriginInitialAtCreation,
		}
		return wrapStoreError(tx.Create(&rec).Error)
	}
	return nil
}

// releasePayments runs when a document is purged: its initial record goes with
// it and user payments become unlinked so sync-balances can place them again.
func releasePayments(tx *gorm.DB, kind PaymentKind, documentId int) error {
	if err := tx.Where("kind = ? AND document_id = ? AND origin IN ?", kind, documentId,
		[]PaymentOrigin{PaymentOriginInitialAtCreation, PaymentOriginHealed}).
		Delete(&PaymentRecord{}).Error; err != nil {
		return err
	}
	return tx.Model(&PaymentRecord{}).
		Where("kind = ? AND document_id = ?", kind, documentId).
		Update("document_id", nil).Error
}

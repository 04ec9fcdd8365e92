package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// DocumentFamily identifies which kind of document produced a ledger entry.
type DocumentFamily string

const (
	FamilyPurchase   DocumentFamily = "PURCHASE"
	FamilySale       DocumentFamily = "SALE"
	FamilyProduction DocumentFamily = "PRODUCTION"
	FamilyTransfer   DocumentFamily = "TRANSFER"
)

// AllFamilies in the order maintenance jobs walk them.
var AllFamilies = []DocumentFamily{FamilyPurchase, FamilySale, FamilyProduction, FamilyTransfer}

func (f DocumentFamily) Valid() bool {
	switch f {
	case FamilyPurchase, FamilySale, FamilyProduction, FamilyTransfer:
		return true
	}
	return false
}

// TableName is the header table holding documents of this family.
func (f DocumentFamily) TableName() string {
	switch f {
	case FamilyPurchase:
		return "purchases"
	case FamilySale:
		return "sales"
	case FamilyProduction:
		return "production_runs"
	case FamilyTransfer:
		return "stock_transfers"
	}
	return ""
}

// LedgerOperation is the lifecycle step that produced a ledger entry.
// The zero value is the plain create/replay posting.
type LedgerOperation string

const (
	OperationCreate         LedgerOperation = ""
	OperationUpdate         LedgerOperation = "UPDATE"
	OperationUpdateReversal LedgerOperation = "UPDATE_REVERSAL"
	OperationReversal       LedgerOperation = "REVERSAL"
	OperationRestore        LedgerOperation = "RESTORE"
)

// longest suffix first so UPDATE_REVERSAL never parses as REVERSAL
var operationSuffixes = []LedgerOperation{
	OperationUpdateReversal,
	OperationReversal,
	OperationUpdate,
	OperationRestore,
}

// ReferenceType is the structured tag of a ledger entry. It is stored as a
// single string such as "SALE_UPDATE_REVERSAL".
type ReferenceType struct {
	Family    DocumentFamily
	Operation LedgerOperation
}

func NewReferenceType(family DocumentFamily, op LedgerOperation) ReferenceType {
	return ReferenceType{Family: family, Operation: op}
}

func (r ReferenceType) String() string {
	if r.Operation == OperationCreate {
		return string(r.Family)
	}
	return string(r.Family) + "_" + string(r.Operation)
}

func (r ReferenceType) IsZero() bool {
	return r.Family == ""
}

func ParseReferenceType(s string) (ReferenceType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, f := range AllFamilies {
		if s == string(f) {
			return ReferenceType{Family: f}, nil
		}
		prefix := string(f) + "_"
		if !strings.HasPrefix(s, prefix) {
			continue
		}
		rest := strings.TrimPrefix(s, prefix)
		for _, op := range operationSuffixes {
			if rest == string(op) {
				return ReferenceType{Family: f, Operation: op}, nil
			}
		}
	}
	return ReferenceType{}, fmt.Errorf("unknown reference type %q", s)
}

func (r ReferenceType) Value() (driver.Value, error) {
	if r.IsZero() {
		return nil, fmt.Errorf("reference type is required")
	}
	return r.String(), nil
}

func (r *ReferenceType) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		*r = ReferenceType{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into ReferenceType", value)
	}
	parsed, err := ParseReferenceType(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (ReferenceType) GormDataType() string {
	return "string"
}

func (r ReferenceType) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *ReferenceType) UnmarshalText(b []byte) error {
	parsed, err := ParseReferenceType(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

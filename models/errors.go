package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/stock_ledger/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ValidationError rejects input before anything is written.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Entity string `json:"entity"`
	Id     int    `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s #%d not found", e.Entity, e.Id)
}

// ConflictError refuses a state transition. When another document blocks it,
// the blocking document is identified so the caller can resolve it.
type ConflictError struct {
	Message        string         `json:"message"`
	BlockingFamily DocumentFamily `json:"blocking_family,omitempty"`
	BlockingId     int            `json:"blocking_id,omitempty"`
	BlockingDate   *time.Time     `json:"blocking_date,omitempty"`
}

func (e *ConflictError) Error() string {
	return e.Message
}

type Shortfall struct {
	ItemId    int             `json:"item_id"`
	Available decimal.Decimal `json:"available"`
	Requested decimal.Decimal `json:"requested"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

type InsufficientStockError struct {
	WarehouseId int         `json:"warehouse_id"`
	Shortfalls  []Shortfall `json:"shortfalls"`
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("item %d (available=%s, requested=%s)", s.ItemId, s.Available, s.Requested))
	}
	return fmt.Sprintf("insufficient stock in warehouse %d: %s", e.WarehouseId, strings.Join(parts, "; "))
}

// IntegrityError wraps a store constraint violation.
type IntegrityError struct {
	Err error
}

func (e *IntegrityError) Error() string {
	return "persistence failure: " + e.Err.Error()
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// wrapStoreError maps constraint violations from MySQL, sqlite or gorm's
// translated errors into IntegrityError. Other errors pass through.
func wrapStoreError(err error) error {
	if err == nil {
		return nil
	}
	var ie *IntegrityError
	if errors.As(err, &ie) {
		return err
	}
	if IsConstraintViolation(err) {
		return &IntegrityError{Err: err}
	}
	return err
}

func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1062, 1451, 1452, 3819:
			return true
		}
		return false
	}
	return strings.Contains(err.Error(), "constraint failed")
}

// IsDuplicateKey reports a unique-index violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFoundOr(err error, entity string, id int) error {
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, utils.ErrorRecordNotFound) {
		return &NotFoundError{Entity: entity, Id: id}
	}
	return err
}

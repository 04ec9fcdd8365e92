package models

import (
	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Item{}, &Warehouse{}, &Supplier{}, &Customer{},
		&Purchase{}, &PurchaseDetail{},
		&Sale{}, &SaleDetail{},
		&ProductionRun{}, &ProductionRunDetail{},
		&StockTransfer{}, &StockTransferDetail{},
		&LedgerEntry{},
		&PaymentRecord{},
		&History{},
		&IdempotencyKey{},
		&ReconciliationReport{},
	)
}

package models

import (
	"encoding/json"
	"time"

	"github.com/mmdatafocus/stock_ledger/utils"
	"gorm.io/gorm"
)

const (
	ActionCreate  = "CREATE"
	ActionUpdate  = "UPDATE"
	ActionDelete  = "DELETE"
	ActionRestore = "RESTORE"
	ActionPurge   = "PURGE"
)

// History is the audit trail of document lifecycle actions.
type History struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ActionType    string    `gorm:"size:10;not null" json:"action_type"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceID   int       `gorm:"index" json:"reference_id"`
	ReferenceType string    `gorm:"size:40;index" json:"reference_type"`
	UserId        int       `gorm:"index;not null;default:0" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func createHistory(tx *gorm.DB,
	actionType string,
	family DocumentFamily,
	referenceId int,
	before interface{},
	after interface{},
	description string) error {

	var history History
	if before != nil {
		b, _ := json.Marshal(before)
		history.Before = string(b)
	}
	if after != nil {
		a, _ := json.Marshal(after)
		history.After = string(a)
	}

	ctx := tx.Statement.Context
	history.UserId, history.UserName = utils.ActorFromContext(ctx)
	if ctx != nil {
		history.CorrelationId, _ = utils.GetCorrelationIdFromContext(ctx)
	}
	history.ActionType = actionType
	history.Description = description
	history.ReferenceID = referenceId
	history.ReferenceType = string(family)

	return tx.Create(&history).Error
}

func ListHistory(tx *gorm.DB, family DocumentFamily, referenceId int) ([]History, error) {
	var rows []History
	err := tx.Where("reference_type = ? AND reference_id = ?", family, referenceId).Order("id").Find(&rows).Error
	return rows, err
}

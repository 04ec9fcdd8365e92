package workflow

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/mmdatafocus/stock_ledger/models"
	"gorm.io/gorm"
)

var ErrIdempotencyInProgress = errors.New("idempotency in progress")

const staleIdempotencyAfter = 5 * time.Minute

// BeginIdempotency inserts STARTED. If SUCCEEDED exists it returns the stored
// result with skip=true, meaning the caller should replay it instead of running again.
func BeginIdempotency(tx *gorm.DB, handlerName, messageId string) (skip bool, result *string, err error) {
	key := models.IdempotencyKey{
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return false, nil, nil
	} else if !models.IsDuplicateKey(err) {
		return false, nil, err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("handler_name = ? AND message_id = ?", handlerName, messageId).
		First(&existing).Error; err != nil {
		return false, nil, err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return true, existing.Result, nil
	case models.IdempotencyStatusStarted:
		// Another caller is running it; a stale row is taken over.
		if time.Since(existing.UpdatedAt) < staleIdempotencyAfter {
			return false, nil, ErrIdempotencyInProgress
		}
	}
	return false, nil, tx.Model(&models.IdempotencyKey{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
}

func MarkIdempotencySucceeded(tx *gorm.DB, handlerName, messageId string, result any) error {
	var stored *string
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return err
		}
		s := string(b)
		stored = &s
	}
	return tx.Model(&models.IdempotencyKey{}).
		Where("handler_name = ? AND message_id = ?", handlerName, messageId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "result": stored, "last_error": nil}).Error
}

func MarkIdempotencyFailed(tx *gorm.DB, handlerName, messageId string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return tx.Model(&models.IdempotencyKey{}).
		Where("handler_name = ? AND message_id = ?", handlerName, messageId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusFailed, "last_error": &msg}).Error
}

package models

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Item struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Code      string    `gorm:"size:50;index" json:"code"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Warehouse struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Supplier struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Customer struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Master is the set of reference tables documents point at.
type Master interface {
	Item | Warehouse | Supplier | Customer
}

type NewMaster struct {
	Code string `json:"code"`
	Name string `json:"name" binding:"required"`
}

func CreateMaster[T Master](ctx context.Context, db *gorm.DB, input NewMaster) (*T, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, newValidationError("name", "name is required")
	}
	var m T
	switch v := any(&m).(type) {
	case *Item:
		v.Name = name
		v.Code = strings.TrimSpace(input.Code)
	case *Warehouse:
		v.Name = name
	case *Supplier:
		v.Name = name
	case *Customer:
		v.Name = name
	}
	if err := db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, wrapStoreError(err)
	}
	return &m, nil
}

func ListMasters[T Master](ctx context.Context, db *gorm.DB) ([]T, error) {
	var rows []T
	err := db.WithContext(ctx).Order("id").Find(&rows).Error
	return rows, err
}

// requireExists returns NotFoundError when the id has no row in T's table.
func requireExists[T Master](tx *gorm.DB, entity string, id int) error {
	if id <= 0 {
		return &NotFoundError{Entity: entity, Id: id}
	}
	var count int64
	if err := tx.Model(new(T)).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return &NotFoundError{Entity: entity, Id: id}
	}
	return nil
}

func requireItems(tx *gorm.DB, itemIds []int) error {
	for _, id := range itemIds {
		if err := requireExists[Item](tx, "item", id); err != nil {
			return err
		}
	}
	return nil
}

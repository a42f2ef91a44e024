package models

import (
	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Supplier{}, &Product{},
		&Order{}, &OrderDetail{},
		&StockTransaction{}, &StockEvent{},
		&IdempotencyKey{},
	)
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is owned by the product-management collaborator.
// StockQuantity is only ever written through the stock ledger.
type Product struct {
	ID            string          `gorm:"primaryKey;size:64" json:"id"`
	Name          string          `gorm:"size:100;not null" json:"name"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	StockQuantity int             `gorm:"not null;default:0;check:chk_products_stock_quantity,stock_quantity >= 0" json:"stock_quantity"`
	SupplierId    *int            `gorm:"index" json:"supplier_id"`
	// Version is bumped on every stock write (compare-and-swap guard).
	Version   int       `gorm:"not null;default:0" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Supplier struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is either a purchase order (stock IN) or a sales order (stock OUT).
// TotalAmount is always the sum of the detail line totals.
type Order struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Type        OrderType       `gorm:"type:enum('PURCHASE','SALES');not null;index" json:"type"`
	SupplierId  *int            `gorm:"index;default:null" json:"supplier_id,omitempty"`
	OrderDate   time.Time       `gorm:"not null" json:"order_date"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Details     []OrderDetail   `gorm:"foreignKey:OrderId;constraint:OnDelete:CASCADE" json:"details"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderDetail struct {
	ID        int             `gorm:"primary_key" json:"id"`
	OrderId   int             `gorm:"index;not null" json:"order_id"`
	ProductId string          `gorm:"size:64;index;not null" json:"product_id"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	// Quantity * UnitPrice
	LineTotal decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_total"`
}

type NewOrderLine struct {
	ProductId string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type NewPurchaseOrder struct {
	SupplierId int            `json:"supplier_id" validate:"required,gt=0"`
	Items      []NewOrderLine `json:"items" validate:"required,min=1"`
}

type NewSalesOrder struct {
	Items []NewOrderLine `json:"items"`
}

// UpdateOrderInput changes an existing order.
// Nil Items means the lines were omitted and stock is untouched.
type UpdateOrderInput struct {
	SupplierId *int            `json:"supplier_id" validate:"omitempty,gt=0"`
	Items      *[]NewOrderLine `json:"items"`
}

// ProductIds returns the product of every line, duplicates included.
func (o *Order) ProductIds() []string {
	ids := make([]string, 0, len(o.Details))
	for _, d := range o.Details {
		ids = append(ids, d.ProductId)
	}
	return ids
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.SupplierId != nil {
		supplierId := *o.SupplierId
		c.SupplierId = &supplierId
	}
	c.Details = append([]OrderDetail(nil), o.Details...)
	return &c
}

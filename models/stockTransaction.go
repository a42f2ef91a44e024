package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/stock_backend/utils"
	"gorm.io/gorm"
)

type StockTransaction struct {
	ID                int                  `gorm:"primary_key" json:"id"`
	ProductId         string               `gorm:"size:64;index;not null" json:"product_id"`
	Type              StockTransactionType `gorm:"type:enum('IN','OUT');not null" json:"type"`
	Quantity          int                  `gorm:"not null" json:"quantity"`
	BalanceAfter      int                  `gorm:"not null" json:"balance_after"`
	ReferenceType     StockReferenceType   `gorm:"type:enum('PO','SO','MANUAL');not null;index:idx_stock_tx_reference,priority:1" json:"reference_type"`
	ReferenceId       int                  `gorm:"index:idx_stock_tx_reference,priority:2" json:"reference_id"`
	ReferenceDetailId int                  `gorm:"default:0" json:"reference_detail_id"`
	IsReversal        bool                 `gorm:"not null;default:false" json:"is_reversal"`
	// set on compensating entries; the original row is never edited
	ReversesTransactionId *int      `gorm:"index;default:null" json:"reverses_transaction_id"`
	Notes                 string    `gorm:"size:255;default:null" json:"notes"`
	CorrelationId         string    `gorm:"size:64;default:null" json:"correlation_id,omitempty"`
	CreatedAt             time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

type NewStockTransaction struct {
	ProductId string               `json:"product_id" validate:"required,max=64"`
	Type      StockTransactionType `json:"type" validate:"required,oneof=IN OUT"`
	Quantity  int                  `json:"quantity" validate:"gt=0"`
	Notes     string               `json:"notes" validate:"max=255"`
}

type StockTransactionFilter struct {
	ProductId     string
	Type          StockTransactionType
	ReferenceType StockReferenceType
	ReferenceId   int
}

func (f StockTransactionFilter) Match(t *StockTransaction) bool {
	if f.ProductId != "" && t.ProductId != f.ProductId {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.ReferenceType != "" && t.ReferenceType != f.ReferenceType {
		return false
	}
	if f.ReferenceId > 0 && t.ReferenceId != f.ReferenceId {
		return false
	}
	return true
}

// SignedQuantity is +Quantity for IN and -Quantity for OUT.
func (t *StockTransaction) SignedQuantity() int {
	if t.Type == StockTransactionTypeOut {
		return -t.Quantity
	}
	return t.Quantity
}

func (t *StockTransaction) validate() error {
	if t.ProductId == "" {
		return fmt.Errorf("%w: stock transaction without product", utils.ErrInvalidArgument)
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("%w: unknown stock transaction type %q", utils.ErrInvalidArgument, t.Type)
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("%w: stock transaction quantity must be positive", utils.ErrInvalidArgument)
	}
	if t.BalanceAfter < 0 {
		return fmt.Errorf("%w: balance after %d", utils.ErrInsufficientStock, t.BalanceAfter)
	}
	return nil
}

// Ledger immutability guardrails:
// stock_transactions are append-only, corrections are new reversal rows.

var ErrImmutableLedger = errors.New("immutable ledger: stock_transactions cannot be changed")

func (t *StockTransaction) BeforeCreate(tx *gorm.DB) error {
	return t.validate()
}

func (t *StockTransaction) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableLedger
}

func (t *StockTransaction) BeforeDelete(tx *gorm.DB) error {
	return ErrImmutableLedger
}

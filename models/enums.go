package models

import (
	"encoding/json"
	"errors"
	"strings"
)

type StockTransactionType string

const (
	StockTransactionTypeIn  StockTransactionType = "IN"
	StockTransactionTypeOut StockTransactionType = "OUT"
)

func (t StockTransactionType) IsValid() bool {
	return t == StockTransactionTypeIn || t == StockTransactionTypeOut
}

// Opposite is the type of the compensating entry.
func (t StockTransactionType) Opposite() StockTransactionType {
	if t == StockTransactionTypeIn {
		return StockTransactionTypeOut
	}
	return StockTransactionTypeIn
}

// accepts "in"/"out" in any case
func (t *StockTransactionType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("stock transaction type must be string")
	}
	*t = StockTransactionType(strings.ToUpper(strings.TrimSpace(str)))
	return nil
}

type OrderType string

const (
	OrderTypePurchase OrderType = "PURCHASE"
	OrderTypeSales    OrderType = "SALES"
)

func (t OrderType) IsValid() bool {
	return t == OrderTypePurchase || t == OrderTypeSales
}

// StockDirection is the ledger type applied for each line of an order of this type.
func (t OrderType) StockDirection() StockTransactionType {
	if t == OrderTypePurchase {
		return StockTransactionTypeIn
	}
	return StockTransactionTypeOut
}

func (t OrderType) ReferenceType() StockReferenceType {
	if t == OrderTypePurchase {
		return StockReferenceTypePurchaseOrder
	}
	return StockReferenceTypeSalesOrder
}

type StockReferenceType string

const (
	StockReferenceTypePurchaseOrder StockReferenceType = "PO"
	StockReferenceTypeSalesOrder    StockReferenceType = "SO"
	StockReferenceTypeManual        StockReferenceType = "MANUAL"
)

// Stock event publish statuses (StockEvent.PublishStatus).
const (
	StockEventStatusPending    = "PENDING"
	StockEventStatusProcessing = "PROCESSING"
	StockEventStatusSent       = "SENT"
	StockEventStatusFailed     = "FAILED"
	StockEventStatusDead       = "DEAD"
)

package models

import (
	"encoding/json"
	"time"
)

// StockEvent is the outbox row written next to every StockTransaction.
// It is published to the message broker after commit by the dispatcher.
type StockEvent struct {
	ID                 int    `gorm:"primary_key;index:idx_stock_event_dispatch,priority:3" json:"id"`
	StockTransactionId int    `gorm:"index;not null" json:"stock_transaction_id"`
	ProductId          string `gorm:"size:64;not null" json:"product_id"`
	Payload            []byte `gorm:"type:blob" json:"payload"`
	CorrelationId      string `gorm:"size:64;index" json:"correlation_id"`
	// PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_stock_event_dispatch,priority:1" json:"publish_status"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_stock_event_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	BrokerMessageId  *string    `gorm:"size:255" json:"broker_message_id"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// StockEventMessage is the published body.
type StockEventMessage struct {
	TransactionId         int                  `json:"transaction_id"`
	ProductId             string               `json:"product_id"`
	Type                  StockTransactionType `json:"type"`
	Quantity              int                  `json:"quantity"`
	BalanceAfter          int                  `json:"balance_after"`
	ReferenceType         StockReferenceType   `json:"reference_type"`
	ReferenceId           int                  `json:"reference_id"`
	IsReversal            bool                 `json:"is_reversal"`
	ReversesTransactionId *int                 `json:"reverses_transaction_id,omitempty"`
	OccurredAt            time.Time            `json:"occurred_at"`
	CorrelationId         string               `json:"correlation_id,omitempty"`
}

// NewStockEvent builds the pending outbox row for a stored transaction.
func NewStockEvent(t *StockTransaction) (*StockEvent, error) {
	body, err := json.Marshal(StockEventMessage{
		TransactionId:         t.ID,
		ProductId:             t.ProductId,
		Type:                  t.Type,
		Quantity:              t.Quantity,
		BalanceAfter:          t.BalanceAfter,
		ReferenceType:         t.ReferenceType,
		ReferenceId:           t.ReferenceId,
		IsReversal:            t.IsReversal,
		ReversesTransactionId: t.ReversesTransactionId,
		OccurredAt:            t.CreatedAt.UTC(),
		CorrelationId:         t.CorrelationId,
	})
	if err != nil {
		return nil, err
	}
	return &StockEvent{
		StockTransactionId: t.ID,
		ProductId:          t.ProductId,
		Payload:            body,
		CorrelationId:      t.CorrelationId,
		PublishStatus:      StockEventStatusPending,
	}, nil
}

// ClaimOptions drives one dispatcher poll.
type ClaimOptions struct {
	DispatcherId string
	Limit        int
	Now          time.Time
	// PROCESSING rows locked before this are reclaimed (crashed dispatcher)
	StaleBefore time.Time
	// rows already attempted this often go DEAD instead of being claimed; 0 disables
	MaxAttempts int
}

// StockEventFailure records a failed publish attempt.
// Nil NextAttemptAt together with Dead=true is terminal.
type StockEventFailure struct {
	Error         string
	NextAttemptAt *time.Time
	Dead          bool
}

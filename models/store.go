package models

import (
	"context"
	"time"
)

// Store is the persistence boundary injected into the workflow services.
// Every write goes through InTransaction.
type Store interface {
	// InTransaction runs fn as one unit of work. Any error returned by fn
	// rolls back every write made through tx.
	InTransaction(ctx context.Context, fn func(tx StoreTx) error) error

	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context) ([]*Product, error)
	GetOrder(ctx context.Context, id int) (*Order, error)
	ListOrders(ctx context.Context, orderType OrderType) ([]*Order, error)
	GetStockTransaction(ctx context.Context, id int) (*StockTransaction, error)
	ListStockTransactions(ctx context.Context, filter StockTransactionFilter) ([]*StockTransaction, error)

	StockEventStore
}

type StockEventStore interface {
	ClaimStockEvents(ctx context.Context, opts ClaimOptions) ([]*StockEvent, error)
	MarkStockEventSent(ctx context.Context, id int, brokerMessageId string, at time.Time) error
	MarkStockEventFailed(ctx context.Context, id int, failure StockEventFailure) error
}

type StoreTx interface {
	// GetProductForUpdate returns utils.ErrorRecordNotFound for unknown ids.
	GetProductForUpdate(ctx context.Context, id string) (*Product, error)
	// UpdateProductStock fails with utils.ErrStockConflict when the product
	// version is no longer expectedVersion.
	UpdateProductStock(ctx context.Context, id string, expectedVersion int, quantity int) error
	CreateStockTransaction(ctx context.Context, t *StockTransaction) error
	ListStockTransactionsByReference(ctx context.Context, referenceType StockReferenceType, referenceId int) ([]*StockTransaction, error)
	// FindReversal returns the compensating entry of originalId, or
	// utils.ErrorRecordNotFound when it was never reversed.
	FindReversal(ctx context.Context, originalId int) (*StockTransaction, error)
	CreateStockEvent(ctx context.Context, e *StockEvent) error

	SupplierExists(ctx context.Context, id int) (bool, error)

	// CreateOrder writes the header and its details, filling in the ids.
	CreateOrder(ctx context.Context, o *Order) error
	GetOrderForUpdate(ctx context.Context, id int) (*Order, error)
	// UpdateOrderHeader writes SupplierId and TotalAmount.
	UpdateOrderHeader(ctx context.Context, o *Order) error
	// UpdateOrderSupplier writes SupplierId only; the total stays with the lines.
	UpdateOrderSupplier(ctx context.Context, id int, supplierId *int) error
	ReplaceOrderDetails(ctx context.Context, orderId int, details []OrderDetail) ([]OrderDetail, error)
	DeleteOrder(ctx context.Context, id int) error

	// FindIdempotencyKey returns utils.ErrorRecordNotFound when the key was never used.
	FindIdempotencyKey(ctx context.Context, scope, key string) (*IdempotencyKey, error)
	// CreateIdempotencyKey fails with utils.ErrStockConflict when a concurrent
	// request stored the same key first.
	CreateIdempotencyKey(ctx context.Context, k *IdempotencyKey) error
}

package models_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/stock_backend/models"
	"github.com/mmdatafocus/stock_backend/utils"
	"github.com/shopspring/decimal"
)

func seededStore() *models.MemoryStore {
	store := models.NewMemoryStore()
	store.PutProduct(models.Product{ID: "SKU-1", Name: "Widget", StockQuantity: 10})
	store.PutSupplier(models.Supplier{ID: 1, Name: "Acme"})
	return store
}

func writeOut(ctx context.Context, tx models.StoreTx, productId string, qty int) error {
	p, err := tx.GetProductForUpdate(ctx, productId)
	if err != nil {
		return err
	}
	if err := tx.UpdateProductStock(ctx, productId, p.Version, p.StockQuantity-qty); err != nil {
		return err
	}
	return tx.CreateStockTransaction(ctx, &models.StockTransaction{
		ProductId:     productId,
		Type:          models.StockTransactionTypeOut,
		Quantity:      qty,
		BalanceAfter:  p.StockQuantity - qty,
		ReferenceType: models.StockReferenceTypeManual,
	})
}

func TestMemoryStoreRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	boom := errors.New("boom")

	err := store.InTransaction(ctx, func(tx models.StoreTx) error {
		if err := writeOut(ctx, tx, "SKU-1", 4); err != nil {
			return err
		}
		order := &models.Order{Type: models.OrderTypeSales, OrderDate: time.Now(), Details: []models.OrderDetail{{ProductId: "SKU-1", Quantity: 4}}}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	p, _ := store.GetProduct(ctx, "SKU-1")
	if p.StockQuantity != 10 {
		t.Fatalf("stock = %d after rollback", p.StockQuantity)
	}
	txs, _ := store.ListStockTransactions(ctx, models.StockTransactionFilter{})
	if len(txs) != 0 {
		t.Fatalf("ledger has %d entries after rollback", len(txs))
	}
	orders, _ := store.ListOrders(ctx, models.OrderTypeSales)
	if len(orders) != 0 {
		t.Fatalf("orders = %d after rollback", len(orders))
	}
}

func TestMemoryStoreCommitDetectsConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	store := seededStore()

	err := store.InTransaction(ctx, func(tx models.StoreTx) error {
		p, err := tx.GetProductForUpdate(ctx, "SKU-1")
		if err != nil {
			return err
		}
		// another unit of work commits first
		if err := store.InTransaction(ctx, func(inner models.StoreTx) error {
			return writeOut(ctx, inner, "SKU-1", 6)
		}); err != nil {
			t.Fatalf("inner transaction: %v", err)
		}
		return tx.UpdateProductStock(ctx, "SKU-1", p.Version, p.StockQuantity-6)
	})
	if !errors.Is(err, utils.ErrStockConflict) {
		t.Fatalf("expected ErrStockConflict, got %v", err)
	}
	p, _ := store.GetProduct(ctx, "SKU-1")
	if p.StockQuantity != 4 {
		t.Fatalf("stock = %d, want 4", p.StockQuantity)
	}
}

func TestMemoryStoreRejectsNegativeStock(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	err := store.InTransaction(ctx, func(tx models.StoreTx) error {
		return tx.UpdateProductStock(ctx, "SKU-1", 0, -1)
	})
	if !errors.Is(err, utils.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestMemoryStoreReadsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	if err := store.InTransaction(ctx, func(tx models.StoreTx) error {
		return writeOut(ctx, tx, "SKU-1", 2)
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	first, _ := store.GetProduct(ctx, "SKU-1")
	second, _ := store.GetProduct(ctx, "SKU-1")
	if first.StockQuantity != second.StockQuantity || first.Version != second.Version {
		t.Fatalf("reads differ: %+v vs %+v", first, second)
	}
	firstTxs, _ := store.ListStockTransactions(ctx, models.StockTransactionFilter{ProductId: "SKU-1"})
	secondTxs, _ := store.ListStockTransactions(ctx, models.StockTransactionFilter{ProductId: "SKU-1"})
	if len(firstTxs) != 1 || len(secondTxs) != 1 || firstTxs[0].ID != secondTxs[0].ID {
		t.Fatalf("ledger reads differ: %d vs %d", len(firstTxs), len(secondTxs))
	}
}

func TestMemoryStoreOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	supplierId := 1
	order := &models.Order{
		Type:       models.OrderTypePurchase,
		SupplierId: &supplierId,
		OrderDate:  time.Now(),
		Details:    []models.OrderDetail{{ProductId: "SKU-1", Quantity: 1}, {ProductId: "SKU-1", Quantity: 2}},
	}
	if err := store.InTransaction(ctx, func(tx models.StoreTx) error {
		return tx.CreateOrder(ctx, order)
	}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ID == 0 || order.Details[0].ID == 0 || order.Details[1].OrderId != order.ID {
		t.Fatalf("ids not assigned: %+v", order)
	}

	if err := store.InTransaction(ctx, func(tx models.StoreTx) error {
		replaced, err := tx.ReplaceOrderDetails(ctx, order.ID, []models.OrderDetail{{ProductId: "SKU-1", Quantity: 5}})
		if err != nil {
			return err
		}
		if len(replaced) != 1 || replaced[0].ID == 0 {
			t.Fatalf("replaced = %+v", replaced)
		}
		return nil
	}); err != nil {
		t.Fatalf("ReplaceOrderDetails: %v", err)
	}
	got, err := store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if len(got.Details) != 1 || got.Details[0].Quantity != 5 {
		t.Fatalf("details = %+v", got.Details)
	}

	if err := store.InTransaction(ctx, func(tx models.StoreTx) error {
		return tx.DeleteOrder(ctx, order.ID)
	}); err != nil {
		t.Fatalf("DeleteOrder: %v", err)
	}
	if _, err := store.GetOrder(ctx, order.ID); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

// A supplier change that read the order before a concurrent line update
// committed must not write back the stale total.
func TestMemoryStoreOrderWriteConflictsWithConcurrentUpdate(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	store.PutSupplier(models.Supplier{ID: 2, Name: "Globex"})
	supplierId := 1
	order := &models.Order{
		Type:        models.OrderTypePurchase,
		SupplierId:  &supplierId,
		OrderDate:   time.Now(),
		TotalAmount: decimal.NewFromInt(10),
		Details:     []models.OrderDetail{{ProductId: "SKU-1", Quantity: 1, UnitPrice: decimal.NewFromInt(10), LineTotal: decimal.NewFromInt(10)}},
	}
	if err := store.InTransaction(ctx, func(tx models.StoreTx) error {
		return tx.CreateOrder(ctx, order)
	}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	err := store.InTransaction(ctx, func(tx models.StoreTx) error {
		stale, err := tx.GetOrderForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := store.InTransaction(ctx, func(inner models.StoreTx) error {
			current, err := inner.GetOrderForUpdate(ctx, order.ID)
			if err != nil {
				return err
			}
			details := []models.OrderDetail{{ProductId: "SKU-1", Quantity: 5, UnitPrice: decimal.NewFromInt(10), LineTotal: decimal.NewFromInt(50)}}
			if current.Details, err = inner.ReplaceOrderDetails(ctx, order.ID, details); err != nil {
				return err
			}
			current.TotalAmount = decimal.NewFromInt(50)
			return inner.UpdateOrderHeader(ctx, current)
		}); err != nil {
			t.Fatalf("line update: %v", err)
		}
		newSupplier := 2
		return tx.UpdateOrderSupplier(ctx, stale.ID, &newSupplier)
	})
	if !errors.Is(err, utils.ErrStockConflict) {
		t.Fatalf("supplier change commit = %v, want ErrStockConflict", err)
	}

	got, err := store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Details[0].Quantity != 5 || !got.TotalAmount.Equal(decimal.NewFromInt(50)) || *got.SupplierId != 1 {
		t.Fatalf("order = qty %d total %s supplier %d", got.Details[0].Quantity, got.TotalAmount, *got.SupplierId)
	}

	// a fresh attempt sees the new lines and keeps their total
	if err := store.InTransaction(ctx, func(tx models.StoreTx) error {
		newSupplier := 2
		return tx.UpdateOrderSupplier(ctx, order.ID, &newSupplier)
	}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	got, _ = store.GetOrder(ctx, order.ID)
	if !got.TotalAmount.Equal(decimal.NewFromInt(50)) || *got.SupplierId != 2 {
		t.Fatalf("after retry: total %s supplier %d", got.TotalAmount, *got.SupplierId)
	}
}

func TestMemoryStoreClaimStockEvents(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	if err := store.InTransaction(ctx, func(tx models.StoreTx) error {
		for i := 0; i < 3; i++ {
			if err := tx.CreateStockEvent(ctx, &models.StockEvent{StockTransactionId: i + 1, ProductId: "SKU-1"}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed events: %v", err)
	}
	now := time.Now().UTC()
	claimed, err := store.ClaimStockEvents(ctx, models.ClaimOptions{DispatcherId: "d1", Limit: 2, Now: now, StaleBefore: now.Add(-time.Minute)})
	if err != nil {
		t.Fatalf("ClaimStockEvents: %v", err)
	}
	if len(claimed) != 2 || claimed[0].PublishAttempts != 1 {
		t.Fatalf("claimed = %+v", claimed)
	}
	again, _ := store.ClaimStockEvents(ctx, models.ClaimOptions{DispatcherId: "d2", Limit: 10, Now: now, StaleBefore: now.Add(-time.Minute)})
	if len(again) != 1 || again[0].ID != 3 {
		t.Fatalf("second claim should only see the unclaimed row, got %+v", again)
	}
	// stale PROCESSING rows are reclaimed
	later := now.Add(2 * time.Minute)
	reclaimed, _ := store.ClaimStockEvents(ctx, models.ClaimOptions{DispatcherId: "d3", Limit: 10, Now: later, StaleBefore: later.Add(-time.Minute)})
	if len(reclaimed) != 3 {
		t.Fatalf("reclaimed = %d, want 3", len(reclaimed))
	}
}

func TestStockTransactionIsImmutable(t *testing.T) {
	st := &models.StockTransaction{}
	if err := st.BeforeUpdate(nil); !errors.Is(err, models.ErrImmutableLedger) {
		t.Fatalf("BeforeUpdate = %v", err)
	}
	if err := st.BeforeDelete(nil); !errors.Is(err, models.ErrImmutableLedger) {
		t.Fatalf("BeforeDelete = %v", err)
	}
}

func TestMemoryStoreIdempotencyKeyCommitsOnce(t *testing.T) {
	ctx := context.Background()
	store := seededStore()
	key := func() *models.IdempotencyKey {
		return &models.IdempotencyKey{Scope: "stock-transaction", Key: "k-1", RequestHash: "h", ResourceId: 9}
	}

	// both transactions miss the key; the second to commit loses
	err := store.InTransaction(ctx, func(tx models.StoreTx) error {
		if _, err := tx.FindIdempotencyKey(ctx, "stock-transaction", "k-1"); !errors.Is(err, utils.ErrorRecordNotFound) {
			t.Fatalf("FindIdempotencyKey on empty store = %v", err)
		}
		if err := store.InTransaction(ctx, func(inner models.StoreTx) error {
			return inner.CreateIdempotencyKey(ctx, key())
		}); err != nil {
			t.Fatalf("inner commit: %v", err)
		}
		return tx.CreateIdempotencyKey(ctx, key())
	})
	if !errors.Is(err, utils.ErrStockConflict) {
		t.Fatalf("second commit = %v, want ErrStockConflict", err)
	}

	if err := store.InTransaction(ctx, func(tx models.StoreTx) error {
		got, err := tx.FindIdempotencyKey(ctx, "stock-transaction", "k-1")
		if err != nil {
			return err
		}
		if got.ResourceId != 9 {
			t.Fatalf("ResourceId = %d", got.ResourceId)
		}
		// already visible, so a create inside the transaction fails immediately
		if err := tx.CreateIdempotencyKey(ctx, key()); !errors.Is(err, utils.ErrStockConflict) {
			t.Fatalf("duplicate create = %v", err)
		}
		return nil
	}); err != nil {
		t.Fatalf("lookup: %v", err)
	}
}

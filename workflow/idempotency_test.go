package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/stock_backend/models"
	"github.com/mmdatafocus/stock_backend/utils"
	"github.com/mmdatafocus/stock_backend/workflow"
)

func TestCreateSalesOrderReplaysIdempotencyKey(t *testing.T) {
	h := newHarness(t, map[string]int{"SKU-1": 10})
	ctx := utils.SetIdempotencyKeyInContext(context.Background(), "checkout-42")
	input := models.NewSalesOrder{Items: []models.NewOrderLine{line("SKU-1", 3, "5")}}

	first, err := h.orders.CreateSalesOrder(ctx, input)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := h.orders.CreateSalesOrder(ctx, input)
	if err != nil {
		t.Fatalf("retried create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("retry created order %d, want replay of %d", second.ID, first.ID)
	}
	if got := h.stock(t, "SKU-1"); got != 7 {
		t.Fatalf("stock = %d, want 7 (deducted once)", got)
	}
	if n := len(h.ledgerFor(t, "SKU-1")); n != 1 {
		t.Fatalf("ledger entries = %d, want 1", n)
	}

	_, err = h.orders.CreateSalesOrder(ctx, models.NewSalesOrder{Items: []models.NewOrderLine{line("SKU-1", 4, "5")}})
	if !errors.Is(err, workflow.ErrIdempotencyMismatch) || utils.ErrorKind(err) != utils.KindValidation {
		t.Fatalf("reused key with another body: err = %v", err)
	}

	// the same key is independent per order type
	if _, err := h.orders.CreatePurchaseOrder(ctx, models.NewPurchaseOrder{SupplierId: 1, Items: []models.NewOrderLine{line("SKU-1", 1, "5")}}); err != nil {
		t.Fatalf("purchase with same key: %v", err)
	}
}

func TestRolledBackRequestDoesNotKeepKey(t *testing.T) {
	h := newHarness(t, map[string]int{"SKU-1": 1})
	ctx := utils.SetIdempotencyKeyInContext(context.Background(), "adjust-7")
	input := models.NewStockTransaction{ProductId: "SKU-1", Type: models.StockTransactionTypeOut, Quantity: 2}

	if _, err := h.ledger.RecordManual(ctx, input); !errors.Is(err, utils.ErrInsufficientStock) {
		t.Fatalf("err = %v, want insufficient stock", err)
	}
	if _, err := h.ledger.RecordManual(context.Background(), models.NewStockTransaction{ProductId: "SKU-1", Type: models.StockTransactionTypeIn, Quantity: 5}); err != nil {
		t.Fatalf("restock: %v", err)
	}

	first, err := h.ledger.RecordManual(ctx, input)
	if err != nil {
		t.Fatalf("retry after restock: %v", err)
	}
	again, err := h.ledger.RecordManual(ctx, input)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if again.ID != first.ID || h.stock(t, "SKU-1") != 4 {
		t.Fatalf("replay id %d (want %d), stock %d (want 4)", again.ID, first.ID, h.stock(t, "SKU-1"))
	}
}

func TestIdempotencyKeyTooLong(t *testing.T) {
	h := newHarness(t, map[string]int{"SKU-1": 1})
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'k'
	}
	ctx := utils.SetIdempotencyKeyInContext(context.Background(), string(long))
	_, err := h.ledger.RecordManual(ctx, models.NewStockTransaction{ProductId: "SKU-1", Type: models.StockTransactionTypeIn, Quantity: 1})
	if utils.ErrorKind(err) != utils.KindInvalidArgument {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
}

package workflow_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/stock_backend/models"
	"github.com/mmdatafocus/stock_backend/workflow"
)

func TestReconcileStockFlagsTamperedStock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]int{"SKU-1": 5, "SKU-2": 0, "SKU-3": 1})
	if _, err := h.orders.CreatePurchaseOrder(ctx, models.NewPurchaseOrder{SupplierId: 1, Items: []models.NewOrderLine{line("SKU-2", 4, "1")}}); err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}
	if _, err := h.orders.CreateSalesOrder(ctx, models.NewSalesOrder{Items: []models.NewOrderLine{line("SKU-1", 5, "1"), line("SKU-2", 1, "1")}}); err != nil {
		t.Fatalf("CreateSalesOrder: %v", err)
	}

	results, err := workflow.ReconcileStock(ctx, h.store, nil, 2)
	if err != nil {
		t.Fatalf("ReconcileStock: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for _, r := range results {
		if !r.OK() {
			t.Fatalf("%s flagged on a clean ledger: %v", r.ProductId, r.Problems)
		}
	}
	if results[1].ProductId != "SKU-2" || results[1].TotalIn != 4 || results[1].TotalOut != 1 || results[1].OpeningBalance != 0 {
		t.Fatalf("SKU-2 = %+v", results[1])
	}

	// stock written behind the ledger's back
	p, _ := h.store.GetProduct(ctx, "SKU-2")
	p.StockQuantity = 1
	h.store.PutProduct(*p)

	results, err = workflow.ReconcileStock(ctx, h.store, []string{"SKU-2"}, 1)
	if err != nil {
		t.Fatalf("ReconcileStock: %v", err)
	}
	if results[0].OK() {
		t.Fatalf("tampered stock not flagged: %+v", results[0])
	}
}

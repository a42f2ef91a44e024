package workflow_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/mmdatafocus/stock_backend/models"
	"github.com/mmdatafocus/stock_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type harness struct {
	store  *models.MemoryStore
	guard  *workflow.ConsistencyGuard
	ledger *workflow.StockLedger
	orders *workflow.OrderService
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newHarness seeds supplier 1 and the given stock levels.
func newHarness(t *testing.T, stock map[string]int) *harness {
	t.Helper()
	store := models.NewMemoryStore()
	store.PutSupplier(models.Supplier{ID: 1, Name: "Acme"})
	store.PutSupplier(models.Supplier{ID: 2, Name: "Globex"})
	for id, qty := range stock {
		store.PutProduct(models.Product{ID: id, Name: id, UnitPrice: decimal.NewFromInt(5), StockQuantity: qty})
	}
	return newHarnessWith(store, workflow.NewLocalProductLocker())
}

func newHarnessWith(store *models.MemoryStore, locker workflow.ProductLocker) *harness {
	logger := quietLogger()
	guard := workflow.NewConsistencyGuard(store, locker, logger)
	guard.LockTimeout = 2 * time.Second
	ledger := workflow.NewStockLedger(store, guard, logger)
	orders := workflow.NewOrderService(store, ledger, guard, logger)
	return &harness{store: store, guard: guard, ledger: ledger, orders: orders}
}

func (h *harness) stock(t *testing.T, productId string) int {
	t.Helper()
	p, err := h.store.GetProduct(context.Background(), productId)
	if err != nil {
		t.Fatalf("GetProduct(%s): %v", productId, err)
	}
	return p.StockQuantity
}

func (h *harness) ledgerFor(t *testing.T, productId string) []*models.StockTransaction {
	t.Helper()
	txs, err := h.store.ListStockTransactions(context.Background(), models.StockTransactionFilter{ProductId: productId})
	if err != nil {
		t.Fatalf("ListStockTransactions: %v", err)
	}
	return txs
}

func line(productId string, qty int, price string) models.NewOrderLine {
	return models.NewOrderLine{ProductId: productId, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func lines(l ...models.NewOrderLine) *[]models.NewOrderLine {
	return &l
}

// noopLocker leaves all serialization to the store's version checks.
type noopLocker struct{}

func (noopLocker) Lock(ctx context.Context, productIds []string) (func(), error) {
	return func() {}, nil
}

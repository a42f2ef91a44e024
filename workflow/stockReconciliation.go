package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/stock_backend/models"
	"golang.org/x/sync/errgroup"
)

// StockReconciliation is the ledger replay result for one product.
type StockReconciliation struct {
	ProductId     string
	StockQuantity int
	TotalIn       int
	TotalOut      int
	// stock the product must have had before its first ledger entry
	OpeningBalance    int
	MinRunningBalance int
	Entries           int
	Problems          []string
}

func (r StockReconciliation) OK() bool {
	return len(r.Problems) == 0
}

// ReconcileStock replays the ledger of each product and checks that
// stock = opening + sum(IN) - sum(OUT) with a non-negative opening balance,
// that the running balance never went negative and that every entry's
// BalanceAfter chains onto the previous one. Empty productIds checks every
// product. Products are checked concurrently.
func ReconcileStock(ctx context.Context, store models.Store, productIds []string, concurrency int) ([]StockReconciliation, error) {
	if len(productIds) == 0 {
		products, err := store.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			productIds = append(productIds, p.ID)
		}
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	results := make([]StockReconciliation, len(productIds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, productId := range productIds {
		g.Go(func() error {
			result, err := reconcileProduct(gctx, store, productId)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", productId, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func reconcileProduct(ctx context.Context, store models.Store, productId string) (StockReconciliation, error) {
	product, err := store.GetProduct(ctx, productId)
	if err != nil {
		return StockReconciliation{}, err
	}
	entries, err := store.ListStockTransactions(ctx, models.StockTransactionFilter{ProductId: productId})
	if err != nil {
		return StockReconciliation{}, err
	}

	result := StockReconciliation{
		ProductId:     productId,
		StockQuantity: product.StockQuantity,
		Entries:       len(entries),
	}
	net := 0
	for _, st := range entries {
		if st.Type == models.StockTransactionTypeIn {
			result.TotalIn += st.Quantity
		} else {
			result.TotalOut += st.Quantity
		}
		net += st.SignedQuantity()
	}
	result.OpeningBalance = product.StockQuantity - net
	if result.OpeningBalance < 0 {
		result.Problems = append(result.Problems, fmt.Sprintf("stock %d is below ledger net %d", product.StockQuantity, net))
	}

	running := result.OpeningBalance
	result.MinRunningBalance = running
	for i, st := range entries {
		running += st.SignedQuantity()
		if running < result.MinRunningBalance {
			result.MinRunningBalance = running
		}
		if running < 0 {
			result.Problems = append(result.Problems, fmt.Sprintf("running balance %d after transaction %d", running, st.ID))
		}
		if i > 0 && st.BalanceAfter != entries[i-1].BalanceAfter+st.SignedQuantity() {
			result.Problems = append(result.Problems, fmt.Sprintf("transaction %d balance_after %d does not follow transaction %d (%d)", st.ID, st.BalanceAfter, entries[i-1].ID, entries[i-1].BalanceAfter))
		}
	}
	if n := len(entries); n > 0 && entries[n-1].BalanceAfter != product.StockQuantity {
		result.Problems = append(result.Problems, fmt.Sprintf("last balance_after %d differs from stock %d", entries[n-1].BalanceAfter, product.StockQuantity))
	}
	return result, nil
}

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/stock_backend/config"
)

// stock-ledger-debug prints the stock ledger of one product with its running
// balance so you can see exactly which row makes stock go negative or where
// balance_after stops matching.
//
// Example:
//
//	go run ./cmd/stock-ledger-debug/ -product-id=SKU-1 -limit=200
func main() {
	productID := flag.String("product-id", "", "Required: product id")
	hideReversed := flag.Bool("hide-reversed", false, "Skip reversals and the rows they reverse")
	limit := flag.Int("limit", 500, "Max rows to print (0 = no limit)")
	flag.Parse()

	if strings.TrimSpace(*productID) == "" {
		fmt.Fprintln(os.Stderr, "--product-id is required")
		os.Exit(1)
	}

	settings := config.Load()
	db := config.ConnectDatabaseWithRetry(settings.Database)

	var stock int
	if err := db.Raw("SELECT stock_quantity FROM products WHERE id = ?", *productID).Scan(&stock).Error; err != nil {
		fmt.Fprintf(os.Stderr, "product lookup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("product_id=%s stock_quantity=%d\n", *productID, stock)

	type row struct {
		ID            int
		CreatedAt     time.Time
		Type          string
		Quantity      int
		BalanceAfter  int
		RefType       string
		RefID         int
		IsReversal    bool
		Reverses      *int
		RunningNet    int
		CorrelationId string
	}

	whereExtra := ""
	if *hideReversed {
		whereExtra = ` AND is_reversal = 0
  AND id NOT IN (SELECT reverses_transaction_id FROM stock_transactions WHERE reverses_transaction_id IS NOT NULL)`
	}
	limitSQL := ""
	if *limit > 0 {
		limitSQL = fmt.Sprintf(" LIMIT %d ", *limit)
	}

	sql := fmt.Sprintf(`
SELECT
  id,
  created_at,
  type,
  quantity,
  balance_after,
  reference_type AS ref_type,
  reference_id   AS ref_id,
  is_reversal,
  reverses_transaction_id AS reverses,
  correlation_id,
  SUM(CASE WHEN type = 'IN' THEN quantity ELSE -quantity END) OVER (
    ORDER BY id
    ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW
  ) AS running_net
FROM stock_transactions
WHERE product_id = ?
%s
ORDER BY id
%s
`, whereExtra, limitSQL)

	var rows []row
	if err := db.Raw(sql, *productID).Scan(&rows).Error; err != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Println("no rows found")
		return
	}

	// the opening balance is whatever stock the ledger does not explain
	opening := rows[len(rows)-1].BalanceAfter - rows[len(rows)-1].RunningNet
	fmt.Printf("rows=%d opening_balance=%d\n", len(rows), opening)

	firstBad := 0
	for i, r := range rows {
		running := opening + r.RunningNet
		fmt.Printf("id=%d at=%s %s qty=%d balance_after=%d running=%d ref=%s/%d reversal=%v reverses=%d cid=%s\n",
			r.ID,
			r.CreatedAt.Format(time.RFC3339),
			r.Type,
			r.Quantity,
			r.BalanceAfter,
			running,
			r.RefType,
			r.RefID,
			r.IsReversal,
			intPtr(r.Reverses),
			r.CorrelationId,
		)
		if firstBad == 0 && (running < 0 || (!*hideReversed && i > 0 && running != r.BalanceAfter)) {
			firstBad = r.ID
		}
	}
	if firstBad != 0 {
		fmt.Printf("FIRST_MISMATCH: id=%d\n", firstBad)
		fmt.Println("Run ./cmd/stock-reconcile for the full check across products.")
	} else {
		fmt.Println("OK: running balance never negative and balance_after chain intact in printed rows.")
	}
}

func intPtr(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

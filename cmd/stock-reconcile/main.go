package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/stock_backend/config"
	"github.com/mmdatafocus/stock_backend/models"
	"github.com/mmdatafocus/stock_backend/workflow"
)

// stock-reconcile replays the stock ledger of every product (or the given
// ones) and reports products whose stock does not follow from the ledger.
//
// Example:
//
//	go run ./cmd/stock-reconcile/ \
//	  -products=SKU-1,SKU-2 \
//	  -concurrency=8 \
//	  -xlsx=reconciliation.xlsx
func main() {
	products := flag.String("products", "", "Comma separated product ids (default: all products)")
	concurrency := flag.Int("concurrency", 4, "Products checked in parallel")
	xlsxPath := flag.String("xlsx", "", "Write the report to this .xlsx file")
	onlyProblems := flag.Bool("only-problems", false, "Print only products with problems")
	flag.Parse()

	settings := config.Load()
	db := config.ConnectDatabaseWithRetry(settings.Database)
	store := models.NewGormStore(db)

	var productIds []string
	for _, id := range strings.Split(*products, ",") {
		if id = strings.TrimSpace(id); id != "" {
			productIds = append(productIds, id)
		}
	}

	results, err := workflow.ReconcileStock(context.Background(), store, productIds, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile failed: %v\n", err)
		os.Exit(1)
	}

	bad := 0
	for _, r := range results {
		if !r.OK() {
			bad++
		} else if *onlyProblems {
			continue
		}
		fmt.Printf("product=%s stock=%d in=%d out=%d opening=%d min_running=%d entries=%d ok=%v\n",
			r.ProductId, r.StockQuantity, r.TotalIn, r.TotalOut, r.OpeningBalance, r.MinRunningBalance, r.Entries, r.OK())
		for _, p := range r.Problems {
			fmt.Printf("  - %s\n", p)
		}
	}
	fmt.Printf("products=%d problems=%d\n", len(results), bad)

	if *xlsxPath != "" {
		if err := writeReport(results, *xlsxPath); err != nil {
			fmt.Fprintf(os.Stderr, "write report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("report written to %s\n", *xlsxPath)
	}
	if bad > 0 {
		os.Exit(2)
	}
}

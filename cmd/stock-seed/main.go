// stock-seed migrates the schema and creates or updates development
// suppliers and products. Existing stock quantities are left alone unless
// -reset-stock is given, and then only for products without ledger rows.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_NAME=... go run ./cmd/stock-seed
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/stock_backend/config"
	"github.com/mmdatafocus/stock_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var seedSuppliers = []models.Supplier{
	{ID: 1, Name: "Acme Wholesale"},
	{ID: 2, Name: "Globex Trading"},
}

var seedProducts = []models.Product{
	{ID: "SKU-1", Name: "Widget", UnitPrice: decimal.RequireFromString("5.00"), StockQuantity: 10},
	{ID: "SKU-2", Name: "Gadget", UnitPrice: decimal.RequireFromString("12.50"), StockQuantity: 0},
	{ID: "SKU-3", Name: "Sprocket", UnitPrice: decimal.RequireFromString("0.75"), StockQuantity: 2},
}

func main() {
	resetStock := flag.Bool("reset-stock", false, "Reset stock of seeded products that have no ledger rows")
	flag.Parse()

	ctx := context.Background()
	settings := config.Load()
	db := config.ConnectDatabaseWithRetry(settings.Database)
	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
		os.Exit(1)
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, s := range seedSuppliers {
			if err := tx.Save(&s).Error; err != nil {
				return fmt.Errorf("supplier %d: %w", s.ID, err)
			}
		}
		for _, p := range seedProducts {
			if err := seedProduct(tx, p, *resetStock); err != nil {
				return fmt.Errorf("product %s: %w", p.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded suppliers=%d products=%d\n", len(seedSuppliers), len(seedProducts))
}

func seedProduct(tx *gorm.DB, p models.Product, resetStock bool) error {
	var existing models.Product
	err := tx.Where("id = ?", p.ID).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&p).Error
	} else if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"name":       p.Name,
		"unit_price": p.UnitPrice,
	}
	if resetStock {
		var entries int64
		if err := tx.Model(&models.StockTransaction{}).Where("product_id = ?", p.ID).Count(&entries).Error; err != nil {
			return err
		}
		if entries == 0 {
			updates["stock_quantity"] = p.StockQuantity
			updates["version"] = gorm.Expr("version + 1")
		} else {
			fmt.Printf("product %s has %d ledger rows; stock left at %d\n", p.ID, entries, existing.StockQuantity)
		}
	}
	return tx.Model(&models.Product{}).Where("id = ?", p.ID).Updates(updates).Error
}

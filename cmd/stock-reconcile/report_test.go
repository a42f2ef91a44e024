package main

import (
	"path/filepath"
	"testing"

	"github.com/mmdatafocus/stock_backend/workflow"
	"github.com/xuri/excelize/v2"
)

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	results := []workflow.StockReconciliation{
		{ProductId: "SKU-1", StockQuantity: 4, TotalIn: 10, TotalOut: 6, Entries: 2},
		{ProductId: "SKU-2", StockQuantity: 1, TotalIn: 3, OpeningBalance: -2, Entries: 1, Problems: []string{"stock 1 is below ledger net 3"}},
	}
	if err := writeReport(results, path); err != nil {
		t.Fatalf("writeReport: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(reportSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0][0] != "ProductId" || rows[1][0] != "SKU-1" || rows[2][8] != "stock 1 is below ledger net 3" {
		t.Fatalf("rows = %v", rows)
	}
	if rows[1][7] != "yes" || rows[2][7] != "no" {
		t.Fatalf("ok column = %q, %q", rows[1][7], rows[2][7])
	}
}

package main

import (
	"fmt"
	"strings"

	"github.com/mmdatafocus/stock_backend/workflow"
	"github.com/xuri/excelize/v2"
)

const reportSheet = "Reconciliation"

var reportHeadings = []string{"ProductId", "Stock", "TotalIn", "TotalOut", "OpeningBalance", "MinRunningBalance", "Entries", "OK", "Problems"}

func writeReport(results []workflow.StockReconciliation, filename string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return err
	}
	for i, h := range reportHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(reportSheet, cell, h); err != nil {
			return err
		}
	}

	for i, r := range results {
		ok := "yes"
		if !r.OK() {
			ok = "no"
		}
		row := []any{r.ProductId, r.StockQuantity, r.TotalIn, r.TotalOut, r.OpeningBalance, r.MinRunningBalance, r.Entries, ok, strings.Join(r.Problems, "; ")}
		if err := f.SetSheetRow(reportSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}
	return f.SaveAs(filename)
}

package models_test

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/stock_backend/models"
	"github.com/mmdatafocus/stock_backend/utils"
	"github.com/shopspring/decimal"
)

func TestCalculateOrderLinesTotals(t *testing.T) {
	cases := []struct {
		name  string
		lines []models.NewOrderLine
		total string
	}{
		{
			name:  "single line",
			lines: []models.NewOrderLine{{ProductId: "SKU-1", Quantity: 3, UnitPrice: decimal.NewFromInt(5)}},
			total: "15",
		},
		{
			name: "no float drift",
			lines: []models.NewOrderLine{
				{ProductId: "SKU-1", Quantity: 3, UnitPrice: decimal.RequireFromString("0.1")},
				{ProductId: "SKU-2", Quantity: 1, UnitPrice: decimal.RequireFromString("0.2")},
			},
			total: "0.5",
		},
		{
			name: "zero price line",
			lines: []models.NewOrderLine{
				{ProductId: "SKU-1", Quantity: 2, UnitPrice: decimal.Zero},
				{ProductId: "SKU-2", Quantity: 4, UnitPrice: decimal.RequireFromString("2.5025")},
			},
			total: "10.01",
		},
		{
			name: "same product twice",
			lines: []models.NewOrderLine{
				{ProductId: "SKU-1", Quantity: 1, UnitPrice: decimal.NewFromInt(7)},
				{ProductId: "SKU-1", Quantity: 2, UnitPrice: decimal.NewFromInt(7)},
			},
			total: "21",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := models.CalculateOrderLines(tc.lines)
			if err != nil {
				t.Fatalf("CalculateOrderLines: %v", err)
			}
			if !got.Total.Equal(decimal.RequireFromString(tc.total)) {
				t.Fatalf("total = %s, want %s", got.Total, tc.total)
			}
			if len(got.Details) != len(tc.lines) {
				t.Fatalf("details = %d, want %d", len(got.Details), len(tc.lines))
			}
			sum := decimal.Zero
			for i, d := range got.Details {
				want := tc.lines[i].UnitPrice.Mul(decimal.NewFromInt(int64(tc.lines[i].Quantity)))
				if !d.LineTotal.Equal(want) {
					t.Fatalf("line %d total = %s, want %s", i, d.LineTotal, want)
				}
				sum = sum.Add(d.LineTotal)
			}
			if !sum.Equal(got.Total) {
				t.Fatalf("sum of lines %s != total %s", sum, got.Total)
			}
		})
	}
}

func TestCalculateOrderLinesTrimsProductId(t *testing.T) {
	got, err := models.CalculateOrderLines([]models.NewOrderLine{{ProductId: "  SKU-9 ", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}})
	if err != nil {
		t.Fatalf("CalculateOrderLines: %v", err)
	}
	if got.Details[0].ProductId != "SKU-9" {
		t.Fatalf("product id = %q", got.Details[0].ProductId)
	}
}

func TestCalculateOrderLinesRejects(t *testing.T) {
	valid := models.NewOrderLine{ProductId: "SKU-1", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}
	cases := []struct {
		name      string
		lines     []models.NewOrderLine
		wantIndex int
	}{
		{"zero quantity", []models.NewOrderLine{valid, {ProductId: "SKU-2", Quantity: 0, UnitPrice: decimal.NewFromInt(1)}}, 1},
		{"negative quantity", []models.NewOrderLine{{ProductId: "SKU-2", Quantity: -4, UnitPrice: decimal.NewFromInt(1)}}, 0},
		{"negative price", []models.NewOrderLine{valid, valid, {ProductId: "SKU-3", Quantity: 1, UnitPrice: decimal.NewFromInt(-1)}}, 2},
		{"too many decimals", []models.NewOrderLine{{ProductId: "SKU-2", Quantity: 1, UnitPrice: decimal.RequireFromString("1.00001")}}, 0},
		{"blank product", []models.NewOrderLine{{ProductId: "   ", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := models.CalculateOrderLines(tc.lines)
			if !errors.Is(err, utils.ErrInvalidLine) {
				t.Fatalf("expected ErrInvalidLine, got %v", err)
			}
			if !errors.Is(err, utils.ErrValidation) {
				t.Fatalf("expected a validation error, got %v", err)
			}
			var lineErr *utils.LineError
			if !errors.As(err, &lineErr) {
				t.Fatalf("expected *utils.LineError, got %T", err)
			}
			if lineErr.Index != tc.wantIndex {
				t.Fatalf("index = %d, want %d", lineErr.Index, tc.wantIndex)
			}
		})
	}
}

func TestCalculateOrderLinesEmpty(t *testing.T) {
	_, err := models.CalculateOrderLines(nil)
	if !errors.Is(err, utils.ErrEmptyOrder) {
		t.Fatalf("expected ErrEmptyOrder, got %v", err)
	}
	if utils.ErrorKind(err) != utils.KindValidation {
		t.Fatalf("kind = %s", utils.ErrorKind(err))
	}
}

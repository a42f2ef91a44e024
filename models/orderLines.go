package models

import (
	"fmt"
	"strings"

	"github.com/mmdatafocus/stock_backend/utils"
	"github.com/shopspring/decimal"
)

// storage scale of decimal(20,4) money columns
const priceScale = 4

type OrderLines struct {
	Details []OrderDetail
	Total   decimal.Decimal
}

// ProductIds returns the product of every line, in line order.
func (l OrderLines) ProductIds() []string {
	ids := make([]string, len(l.Details))
	for i, d := range l.Details {
		ids[i] = d.ProductId
	}
	return ids
}

// CalculateOrderLines validates raw order lines and prices them.
// It performs no I/O.
func CalculateOrderLines(lines []NewOrderLine) (OrderLines, error) {
	if len(lines) == 0 {
		return OrderLines{}, utils.ErrEmptyOrder
	}
	details := make([]OrderDetail, 0, len(lines))
	total := decimal.Zero
	for i, line := range lines {
		productId := strings.TrimSpace(line.ProductId)
		if err := checkOrderLine(productId, line); err != nil {
			return OrderLines{}, utils.NewLineError(i, productId, err)
		}
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		details = append(details, OrderDetail{
			ProductId: productId,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: lineTotal,
		})
		total = total.Add(lineTotal)
	}
	return OrderLines{Details: details, Total: total}, nil
}

func checkOrderLine(productId string, line NewOrderLine) error {
	switch {
	case productId == "":
		return fmt.Errorf("%w: product id is required", utils.ErrInvalidLine)
	case line.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be a positive integer", utils.ErrInvalidLine)
	case line.UnitPrice.IsNegative():
		return fmt.Errorf("%w: unit price must not be negative", utils.ErrInvalidLine)
	case !line.UnitPrice.Equal(line.UnitPrice.Truncate(priceScale)):
		return fmt.Errorf("%w: unit price has more than %d decimal places", utils.ErrInvalidLine, priceScale)
	}
	return nil
}

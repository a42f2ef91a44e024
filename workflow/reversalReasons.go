package workflow

import "github.com/mmdatafocus/stock_backend/models"

// Standardized reasons for stock reversals.
// They are appended to the compensating entry's notes.
const (
	ReversalReasonPurchaseOrderUpdate = "Purchase order update"
	ReversalReasonPurchaseOrderDelete = "Purchase order delete"
	ReversalReasonSalesOrderUpdate    = "Sales order update"
	ReversalReasonSalesOrderDelete    = "Sales order delete"
	ReversalReasonManual              = "Manual correction"
)

func orderReversalReason(orderType models.OrderType, deleting bool) string {
	switch {
	case orderType == models.OrderTypePurchase && deleting:
		return ReversalReasonPurchaseOrderDelete
	case orderType == models.OrderTypePurchase:
		return ReversalReasonPurchaseOrderUpdate
	case deleting:
		return ReversalReasonSalesOrderDelete
	}
	return ReversalReasonSalesOrderUpdate
}

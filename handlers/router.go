package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stock_backend/models"
	"github.com/mmdatafocus/stock_backend/workflow"
)

// RegisterRoutes mounts the order and stock-transaction endpoints.
func RegisterRoutes(r gin.IRouter, orders *workflow.OrderService, ledger *workflow.StockLedger) {
	purchase := &OrderHandler{Orders: orders, Type: models.OrderTypePurchase}
	purchase.Register(r.Group("/purchase-orders"))

	sales := &OrderHandler{Orders: orders, Type: models.OrderTypeSales}
	sales.Register(r.Group("/sales-orders"))

	stock := &StockTransactionHandler{Ledger: ledger}
	stock.Register(r.Group("/stock-transactions"))
}

func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, Response{Success: false, Message: "route not found"})
}

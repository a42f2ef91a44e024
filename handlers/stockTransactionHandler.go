package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stock_backend/models"
	"github.com/mmdatafocus/stock_backend/utils"
	"github.com/mmdatafocus/stock_backend/workflow"
)

type StockTransactionHandler struct {
	Ledger *workflow.StockLedger
}

func (h *StockTransactionHandler) Register(r gin.IRouter) {
	r.GET("", h.List)
	r.POST("", h.Create)
	r.GET("/:id", h.Get)
	r.POST("/:id/reverse", h.Reverse)
}

// List accepts the optional query filters product_id, type and reference_type.
func (h *StockTransactionHandler) List(c *gin.Context) {
	filter := models.StockTransactionFilter{
		ProductId:     strings.TrimSpace(c.Query("product_id")),
		Type:          models.StockTransactionType(strings.ToUpper(strings.TrimSpace(c.Query("type")))),
		ReferenceType: models.StockReferenceType(strings.ToUpper(strings.TrimSpace(c.Query("reference_type")))),
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		respondError(c, fmt.Errorf("%w: type must be IN or OUT", utils.ErrInvalidArgument))
		return
	}
	transactions, err := h.Ledger.ListStockTransactions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, transactions)
}

func (h *StockTransactionHandler) Get(c *gin.Context) {
	id, err := paramId(c)
	if err != nil {
		respondError(c, err)
		return
	}
	transaction, err := h.Ledger.GetStockTransaction(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, transaction)
}

// Create records a manual IN/OUT movement.
func (h *StockTransactionHandler) Create(c *gin.Context) {
	var input models.NewStockTransaction
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	transaction, err := h.Ledger.RecordManual(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, transaction)
}

// Reverse backs out a manual movement.
func (h *StockTransactionHandler) Reverse(c *gin.Context) {
	id, err := paramId(c)
	if err != nil {
		respondError(c, err)
		return
	}
	reversal, err := h.Ledger.ReverseManual(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, reversal)
}

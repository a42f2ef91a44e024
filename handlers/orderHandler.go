package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/stock_backend/models"
	"github.com/mmdatafocus/stock_backend/workflow"
)

// OrderHandler serves one order type (purchase or sales).
type OrderHandler struct {
	Orders *workflow.OrderService
	Type   models.OrderType
}

func (h *OrderHandler) Register(r gin.IRouter) {
	r.GET("", h.List)
	r.POST("", h.Create)
	r.GET("/:id", h.Get)
	r.PUT("/:id", h.Update)
	r.DELETE("/:id", h.Delete)
}

func (h *OrderHandler) List(c *gin.Context) {
	orders, err := h.Orders.ListOrders(c.Request.Context(), h.Type)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, orders)
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, err := paramId(c)
	if err != nil {
		respondError(c, err)
		return
	}
	order, err := h.Orders.GetOrder(c.Request.Context(), h.Type, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, order)
}

func (h *OrderHandler) Create(c *gin.Context) {
	var (
		order *models.Order
		err   error
	)
	ctx := c.Request.Context()
	if h.Type == models.OrderTypePurchase {
		var input models.NewPurchaseOrder
		if err = bindJSON(c, &input); err == nil {
			order, err = h.Orders.CreatePurchaseOrder(ctx, input)
		}
	} else {
		var input models.NewSalesOrder
		if err = bindJSON(c, &input); err == nil {
			order, err = h.Orders.CreateSalesOrder(ctx, input)
		}
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, order)
}

func (h *OrderHandler) Update(c *gin.Context) {
	id, err := paramId(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var input models.UpdateOrderInput
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	var order *models.Order
	if h.Type == models.OrderTypePurchase {
		order, err = h.Orders.UpdatePurchaseOrder(c.Request.Context(), id, input)
	} else {
		order, err = h.Orders.UpdateSalesOrder(c.Request.Context(), id, input)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, order)
}

func (h *OrderHandler) Delete(c *gin.Context) {
	id, err := paramId(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if h.Type == models.OrderTypePurchase {
		err = h.Orders.DeletePurchaseOrder(c.Request.Context(), id)
	} else {
		err = h.Orders.DeleteSalesOrder(c.Request.Context(), id)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "order deleted")
}

package handler

import (
	"github.com/gin-gonic/gin"

	apporder "github.com/carelink/backend/internal/application/order"
	"github.com/carelink/backend/internal/domain/order"
)

// OrderHandler handles order lifecycle API endpoints
type OrderHandler struct {
	BaseHandler
	orders *apporder.Service
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders *apporder.Service) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// RegisterRoutes registers order routes
func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	orders := rg.Group("/orders")
	orders.POST("", h.Create)
	orders.GET("", h.List)
	orders.GET("/:id", h.GetByID)
	orders.PATCH("/:id/status", h.Transition)
	orders.POST("/:id/cancel", h.Cancel)
	orders.POST("/:id/refund", h.Refund)
}

// Create creates a new order
func (h *OrderHandler) Create(c *gin.Context) {
	var req apporder.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	o, err := h.orders.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, o)
}

// GetByID retrieves an order by ID
func (h *OrderHandler) GetByID(c *gin.Context) {
	orderID, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	o, err := h.orders.GetByID(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, o)
}

// List retrieves orders with filtering and pagination
func (h *OrderHandler) List(c *gin.Context) {
	var filter apporder.ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	page, err := h.orders.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Transition moves an order to a new status
func (h *OrderHandler) Transition(c *gin.Context) {
	orderID, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	var req apporder.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	o, err := h.orders.Transition(c.Request.Context(), orderID, order.Status(req.Status), req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, o)
}

// Cancel cancels an order with a reason
func (h *OrderHandler) Cancel(c *gin.Context) {
	orderID, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	var req apporder.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	o, err := h.orders.Cancel(c.Request.Context(), orderID, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, o)
}

// Refund refunds a completed order with a reason
func (h *OrderHandler) Refund(c *gin.Context) {
	orderID, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	var req apporder.RefundOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	o, err := h.orders.Refund(c.Request.Context(), orderID, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, o)
}

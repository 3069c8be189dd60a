package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tradepost/tradepost/internal/middleware"
	"github.com/tradepost/tradepost/internal/services"
	"github.com/tradepost/tradepost/pkg/response"
)

// OrderHandler exposes checkout and fulfilment.
type OrderHandler struct {
	orders *services.OrderService
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type checkoutRequest struct {
	ListingID       string         `json:"listing_id" validate:"required,uuid"`
	ShippingAddress map[string]any `json:"shipping_address"`
}

// Checkout reserves a listing and opens a pending order.
func (h *OrderHandler) Checkout(c *gin.Context) {
	req, ok := bindJSON[checkoutRequest](c)
	if !ok {
		return
	}

	order, err := h.orders.Checkout(c.Request.Context(), services.CheckoutInput{
		ListingID:       req.ListingID,
		BuyerID:         middleware.UserID(c),
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusCreated, order)
}

// List returns the caller's orders on both sides of the trade.
func (h *OrderHandler) List(c *gin.Context) {
	orders, err := h.orders.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, http.StatusOK, orders)
}

// Get returns a single order the caller is party to.
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, http.StatusOK, order)
}

// Pay charges the buyer and marks the order paid.
func (h *OrderHandler) Pay(c *gin.Context) {
	order, err := h.orders.Pay(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, http.StatusOK, order)
}

type shipRequest struct {
	TrackingCode string `json:"tracking_code" validate:"omitempty,max=64"`
}

// Ship records the seller's dispatch.
func (h *OrderHandler) Ship(c *gin.Context) {
	req, ok := bindJSON[shipRequest](c)
	if !ok {
		return
	}

	order, err := h.orders.Ship(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.TrackingCode)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, http.StatusOK, order)
}

// ConfirmDelivery records the buyer's receipt and closes the trade.
func (h *OrderHandler) ConfirmDelivery(c *gin.Context) {
	order, err := h.orders.ConfirmDelivery(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, http.StatusOK, order)
}

// Cancel aborts a pending or paid order.
func (h *OrderHandler) Cancel(c *gin.Context) {
	order, err := h.orders.Cancel(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.Success(c, http.StatusOK, order)
}

package api

import (
	"net/http"

	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
)

type checkoutRequest struct {
	service.CheckoutRequest
	Payment *payment.Card `json:"payment,omitempty"`
}

type advanceStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// checkout places the order and, when card details are given, pays for it in the same call.
// A failed payment leaves the order UNPAID and reports it next to the error.
func (h *Handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	order, err := h.orders.Checkout(ctx, ownerFrom(c), &req.CheckoutRequest)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if req.Payment == nil {
		c.JSON(http.StatusCreated, gin.H{"order": order})
		return
	}

	record, err := h.orders.ProcessPayment(ctx, order.ID, order.UserID, *req.Payment)
	if err != nil {
		status, body := errorBody(err)
		body["order"] = order
		c.JSON(status, body)
		return
	}
	order.PaymentStatus = record.Status

	c.JSON(http.StatusCreated, gin.H{
		"order":   order,
		"payment": record,
	})
}

func (h *Handler) listOrders(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) payOrder(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var card payment.Card
	if !bindJSON(c, &card) {
		return
	}

	record, err := h.orders.ProcessPayment(c.Request.Context(), orderID, userID, card)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.Cancel(c.Request.Context(), orderID, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// advanceOrder is the fulfillment hook; it is not scoped to the buyer
func (h *Handler) advanceOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req advanceStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	target, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": err.Error(),
			"field":   "status",
		})
		return
	}

	order, err := h.orders.AdvanceStatus(c.Request.Context(), orderID, target)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) listNotifications(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	list, err := h.notifications.List(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.notifications.MarkRead(c.Request.Context(), userID, id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_read": true})
}

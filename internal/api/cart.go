package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type addCartItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type applyPromotionRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *Handler) getCart(c *gin.Context) {
	view, err := h.carts.GetCart(c.Request.Context(), ownerFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.carts.AddItem(c.Request.Context(), ownerFrom(c), req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	productID, ok := pathID(c, "product_id")
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.carts.UpdateItemQuantity(c.Request.Context(), ownerFrom(c), productID, *req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	productID, ok := pathID(c, "product_id")
	if !ok {
		return
	}

	view, err := h.carts.RemoveItem(c.Request.Context(), ownerFrom(c), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) applyPromotion(c *gin.Context) {
	var req applyPromotionRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.promotions.Preview(c.Request.Context(), ownerFrom(c), req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

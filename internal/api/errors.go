package api

import (
	"errors"
	"net/http"

	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// errorStatus maps a service error kind to an HTTP status and stable error code
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, service.ErrInvalidStateTransition):
		return http.StatusConflict, "invalid_state_transition"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrEmptyCart):
		return http.StatusUnprocessableEntity, "empty_cart"
	case errors.Is(err, service.ErrPaymentDeclined):
		return http.StatusPaymentRequired, "payment_declined"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// errorBody builds the JSON error payload; internal errors never expose their message
func errorBody(err error) (int, gin.H) {
	status, code := errorStatus(err)
	body := gin.H{"error": code, "details": err.Error()}
	if status == http.StatusInternalServerError {
		body["details"] = "internal server error"
	}

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		body["field"] = verr.Field
	}
	var serr *service.StockError
	if errors.As(err, &serr) {
		body["product_id"] = serr.ProductID
		body["requested"] = serr.Requested
		body["available"] = serr.Available
	}
	return status, body
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, body := errorBody(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, body)
}

package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	headerUserID       = "X-User-ID"
	headerSessionToken = "X-Session-Token"
	ownerKey           = "owner"
)

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	carts         *service.CartService
	promotions    *service.PromotionService
	orders        *service.OrderService
	notifications *service.NotificationService
	checks        map[string]ReadinessCheck
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	carts *service.CartService,
	promotions *service.PromotionService,
	orders *service.OrderService,
	notifications *service.NotificationService,
	checks map[string]ReadinessCheck,
) *Handler {
	return &Handler{
		carts:         carts,
		promotions:    promotions,
		orders:        orders,
		notifications: notifications,
		checks:        checks,
		logger:        util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(h.requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(ownerMiddleware())
	{
		v1.GET("/cart", h.getCart)
		v1.POST("/cart/items", h.addCartItem)
		v1.PUT("/cart/items/:product_id", h.updateCartItem)
		v1.DELETE("/cart/items/:product_id", h.removeCartItem)

		v1.POST("/promotions/apply", h.applyPromotion)

		v1.POST("/checkout", h.checkout)

		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/pay", h.payOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/status", h.advanceOrder)

		v1.GET("/notifications", h.listNotifications)
		v1.POST("/notifications/:id/read", h.markNotificationRead)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck runs every dependency check
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// ownerMiddleware resolves the caller's cart owner from identity headers.
// Identity is taken as given; a malformed user id is rejected.
func ownerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var owner models.CartOwner
		if raw := strings.TrimSpace(c.GetHeader(headerUserID)); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":   "validation_failed",
					"details": headerUserID + " must be a positive integer",
					"field":   "user_id",
				})
				return
			}
			owner = models.UserOwner(id)
		} else if token := strings.TrimSpace(c.GetHeader(headerSessionToken)); token != "" {
			owner = models.SessionOwner(token)
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

func ownerFrom(c *gin.Context) models.CartOwner {
	if v, ok := c.Get(ownerKey); ok {
		if owner, ok := v.(models.CartOwner); ok {
			return owner
		}
	}
	return models.CartOwner{}
}

// requireUser returns the signed-in user id or writes 401
func requireUser(c *gin.Context) (int64, bool) {
	owner := ownerFrom(c)
	if !owner.IsUser() {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"details": headerUserID + " header is required",
		})
		return 0, false
	}
	return owner.UserID, true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": "invalid " + name,
			"field":   name,
		})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// requestLogger logs one structured line per request
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

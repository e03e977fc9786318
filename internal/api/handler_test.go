package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/service"
	"checkout-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *gin.Engine
	store  *store.MemoryStore
}

func newTestServer(t *testing.T, checks map[string]ReadinessCheck) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemoryStore()
	locker := service.NewLocalLocker()
	pricing := service.DefaultPricing()
	inventory := service.NewInventoryClient(st)
	carts := service.NewCartService(st, inventory, locker, pricing, time.Second)
	promotions := service.NewPromotionService(st, carts)
	payments := service.NewPaymentService(st, payment.NewSimulatedGateway([]string{"4000000000000002"}, 0, 1))
	notifications := service.NewNotificationService(st)
	orders := service.NewOrderService(st, inventory, payments, promotions, service.NewDirectPublisher(notifications), locker,
		service.OrderServiceConfig{Pricing: pricing, LockTTL: time.Second})

	if checks == nil {
		checks = map[string]ReadinessCheck{"storage": st.Ping}
	}
	router := gin.New()
	NewHandler(carts, promotions, orders, notifications, checks).SetupRoutes(router)
	return &testServer{router: router, store: st}
}

func (s *testServer) product(t *testing.T, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{SKU: "SKU", Name: "Widget", Price: models.MustMoney(price), Stock: stock, SellerID: 50}
	require.NoError(t, s.store.CreateProduct(context.Background(), p))
	return p
}

func (s *testServer) do(t *testing.T, method, path string, headers map[string]string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func user(id int64) map[string]string {
	return map[string]string{headerUserID: fmt.Sprint(id)}
}

var (
	shippingBody = map[string]string{"address": "1 Main St", "city": "Springfield", "country": "US", "postal_code": "12345"}
	cardBody     = map[string]string{"card_number": "4111111111111111", "expiry_date": "12/30", "cvv": "123", "name_on_card": "Jane"}
)

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := s.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", body["status"])

	down := newTestServer(t, map[string]ReadinessCheck{
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	})
	w, body = down.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, body["failed"], "redis")
}

func TestCheckoutFlow(t *testing.T) {
	s := newTestServer(t, nil)
	p := s.product(t, "10.00", 5)

	w, body := s.do(t, http.MethodPost, "/api/v1/cart/items", user(1), map[string]interface{}{"product_id": p.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, "26.60", summary["total"])

	w, body = s.do(t, http.MethodPost, "/api/v1/checkout", user(1), map[string]interface{}{
		"shipping": shippingBody,
		"payment":  cardBody,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := body["order"].(map[string]interface{})
	assert.Equal(t, "26.60", order["total_amount"])
	assert.Equal(t, "PAID", order["payment_status"])
	orderID := int64(order["id"].(float64))

	w, body = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", orderID), user(1), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PENDING", body["order_status"])

	w, _ = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", orderID), user(2), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/cancel", orderID), user(1), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CANCELLED", body["order_status"])
	assert.Equal(t, "REFUNDED", body["payment_status"])

	w, body = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/cancel", orderID), user(1), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state_transition", body["error"])

	w, body = s.do(t, http.MethodGet, "/api/v1/notifications", user(1), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["notifications"], 3)

	w, body = s.do(t, http.MethodGet, "/api/v1/notifications", user(50), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["notifications"], 3)
}

func TestCheckoutErrors(t *testing.T) {
	s := newTestServer(t, nil)
	p := s.product(t, "10.00", 1)

	w, body := s.do(t, http.MethodPost, "/api/v1/checkout", user(1), map[string]interface{}{"shipping": shippingBody})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "empty_cart", body["error"])

	w, body = s.do(t, http.MethodPost, "/api/v1/cart/items", user(1), map[string]interface{}{"product_id": p.ID, "quantity": 3})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "insufficient_stock", body["error"])
	assert.Equal(t, float64(3), body["requested"])
	assert.Equal(t, float64(1), body["available"])

	w, _ = s.do(t, http.MethodPost, "/api/v1/cart/items", user(1), map[string]interface{}{"product_id": p.ID, "quantity": 1})
	require.Equal(t, http.StatusOK, w.Code)

	declined := map[string]string{"card_number": "4000000000000002", "expiry_date": "12/30", "cvv": "123", "name_on_card": "Jane"}
	w, body = s.do(t, http.MethodPost, "/api/v1/checkout", user(1), map[string]interface{}{
		"shipping": shippingBody,
		"payment":  declined,
	})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "payment_declined", body["error"])
	order := body["order"].(map[string]interface{})
	assert.Equal(t, "UNPAID", order["payment_status"])

	orderID := int64(order["id"].(float64))
	w, body = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/pay", orderID), user(1), cardBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "PAID", body["status"])
}

func TestIdentityHandling(t *testing.T) {
	s := newTestServer(t, nil)
	p := s.product(t, "1.00", 5)

	w, body := s.do(t, http.MethodPost, "/api/v1/cart/items", map[string]string{headerSessionToken: "guest-1"},
		map[string]interface{}{"product_id": p.ID, "quantity": 1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["items"], 1)

	w, body = s.do(t, http.MethodPost, "/api/v1/checkout", map[string]string{headerSessionToken: "guest-1"},
		map[string]interface{}{"shipping": shippingBody})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "user_id", body["field"])

	w, _ = s.do(t, http.MethodGet, "/api/v1/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/cart", map[string]string{headerUserID: "abc"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/cart", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "a cart needs an owner")
}

func TestCartItemRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	p := s.product(t, "2.00", 5)
	path := fmt.Sprintf("/api/v1/cart/items/%d", p.ID)

	w, _ := s.do(t, http.MethodPut, path, user(1), map[string]int{"quantity": 2})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/cart/items", user(1), map[string]interface{}{"product_id": p.ID, "quantity": 1})
	require.Equal(t, http.StatusOK, w.Code)

	w, body := s.do(t, http.MethodPut, path, user(1), map[string]int{"quantity": 4})
	require.Equal(t, http.StatusOK, w.Code)
	items := body["items"].([]interface{})
	assert.Equal(t, float64(4), items[0].(map[string]interface{})["quantity"])

	w, _ = s.do(t, http.MethodPut, path, user(1), map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "quantity is required")

	w, body = s.do(t, http.MethodDelete, path, user(1), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["items"])

	w, _ = s.do(t, http.MethodDelete, path, user(1), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(t, http.MethodPost, "/api/v1/cart/items", user(1), map[string]interface{}{"product_id": p.ID, "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "quantity", body["field"])
}

func TestApplyPromotion(t *testing.T) {
	s := newTestServer(t, nil)
	p := s.product(t, "10.00", 5)
	ctx := context.Background()
	require.NoError(t, s.store.CreatePromotion(ctx, &models.Promotion{
		DiscountCode: "SAVE10", DiscountPercentage: models.MustMoney("10"), ExpiryDate: time.Now().Add(time.Hour),
	}))
	require.NoError(t, s.store.CreatePromotion(ctx, &models.Promotion{
		DiscountCode: "OLD", DiscountPercentage: models.MustMoney("10"), ExpiryDate: time.Now().Add(-time.Hour),
	}))

	w, _ := s.do(t, http.MethodPost, "/api/v1/cart/items", user(1), map[string]interface{}{"product_id": p.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code)

	w, body := s.do(t, http.MethodPost, "/api/v1/promotions/apply", user(1), map[string]string{"code": "SAVE10"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "24.60", body["summary"].(map[string]interface{})["total"])

	w, body = s.do(t, http.MethodPost, "/api/v1/promotions/apply", user(1), map[string]string{"code": "OLD"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", body["error"])

	w, body = s.do(t, http.MethodPost, "/api/v1/promotions/apply", user(1), map[string]string{"code": "NOPE"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestAdvanceOrderStatus(t *testing.T) {
	s := newTestServer(t, nil)
	p := s.product(t, "10.00", 5)

	w, _ := s.do(t, http.MethodPost, "/api/v1/cart/items", user(1), map[string]interface{}{"product_id": p.ID, "quantity": 1})
	require.Equal(t, http.StatusOK, w.Code)
	w, body := s.do(t, http.MethodPost, "/api/v1/checkout", user(1), map[string]interface{}{"shipping": shippingBody, "payment": cardBody})
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := int64(body["order"].(map[string]interface{})["id"].(float64))
	path := fmt.Sprintf("/api/v1/orders/%d/status", orderID)

	w, _ = s.do(t, http.MethodPost, path, nil, map[string]string{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, http.MethodPost, path, nil, map[string]string{"status": "SHIPPED"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state_transition", body["error"])

	w, body = s.do(t, http.MethodPost, path, nil, map[string]string{"status": "PROCESSING"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PROCESSING", body["order_status"])
}

func TestErrorBodyHidesInternalErrors(t *testing.T) {
	status, body := errorBody(errors.New("pq: relation \"orders\" does not exist"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", body["error"])
	assert.Equal(t, "internal server error", body["details"])
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IdempotencyCache remembers completed payments so repeats skip the database lock
type IdempotencyCache interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetIdempotencyKey(ctx context.Context, key string) (string, bool, error)
}

// OrderService handles checkout and the order lifecycle
type OrderService struct {
	store      store.Storage
	inventory  *InventoryClient
	payments   *PaymentService
	promotions *PromotionService
	publisher  EventPublisher
	locker     Locker
	cache      IdempotencyCache
	pricing    Pricing
	cacheTTL   time.Duration
	lockTTL    time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// OrderServiceConfig carries the optional collaborators and tunables of an OrderService
type OrderServiceConfig struct {
	Pricing  Pricing
	Cache    IdempotencyCache
	CacheTTL time.Duration
	LockTTL  time.Duration
}

// NewOrderService creates a new order service
func NewOrderService(
	store store.Storage,
	inventory *InventoryClient,
	payments *PaymentService,
	promotions *PromotionService,
	publisher EventPublisher,
	locker Locker,
	cfg OrderServiceConfig,
) *OrderService {
	return &OrderService{
		store:      store,
		inventory:  inventory,
		payments:   payments,
		promotions: promotions,
		publisher:  publisher,
		locker:     locker,
		cache:      cfg.Cache,
		pricing:    cfg.Pricing,
		cacheTTL:   cfg.CacheTTL,
		lockTTL:    cfg.LockTTL,
		now:        time.Now,
		logger:     util.GetLogger(),
	}
}

// ShippingRequest is the delivery address captured at checkout
type ShippingRequest struct {
	Address    string `json:"address" validate:"required,max=255"`
	City       string `json:"city" validate:"required,max=100"`
	Country    string `json:"country" validate:"required,max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
}

func (r ShippingRequest) validate() error {
	trimmed := ShippingRequest{
		Address:    strings.TrimSpace(r.Address),
		City:       strings.TrimSpace(r.City),
		Country:    strings.TrimSpace(r.Country),
		PostalCode: strings.TrimSpace(r.PostalCode),
	}
	return validateStruct(trimmed, ErrValidation)
}

// CheckoutRequest represents a request to turn a cart into an order
type CheckoutRequest struct {
	Shipping      ShippingRequest `json:"shipping"`
	PromotionCode string          `json:"promotion_code,omitempty"`
}

// Checkout converts the owner's cart into a PENDING, UNPAID order and clears the cart.
// Nothing is written unless every step succeeds.
func (s *OrderService) Checkout(ctx context.Context, owner models.CartOwner, req *CheckoutRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Checkout")
	defer span.End()

	if !owner.Valid() || !owner.IsUser() {
		return nil, newValidationError("user_id", "checkout requires a signed-in user")
	}
	if err := req.Shipping.validate(); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_shipping").Inc()
		return nil, err
	}

	discountPercent := models.ZeroMoney()
	code := strings.TrimSpace(req.PromotionCode)
	if code != "" {
		promotion, err := s.promotions.ValidateNow(ctx, code)
		if err != nil {
			util.OrdersFailedTotal.WithLabelValues("invalid_promotion").Inc()
			return nil, err
		}
		discountPercent = promotion.DiscountPercentage
		code = promotion.DiscountCode
	}

	release, err := s.locker.Acquire(ctx, "cart:"+owner.Key(), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("cart is busy: %w", ErrConflict)
	}
	defer release()

	var order *models.Order
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		cart, err := repo.GetOrCreateCart(ctx, owner)
		if err != nil {
			return fmt.Errorf("failed to load cart: %w", err)
		}
		lines, err := repo.GetCartItems(ctx, cart.ID)
		if err != nil {
			return fmt.Errorf("failed to load cart items: %w", err)
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		ids := make([]int64, len(lines))
		for i, line := range lines {
			ids[i] = line.ProductID
		}
		inventory := s.inventory.In(repo)
		products, err := inventory.GetProducts(ctx, ids)
		if err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(lines))
		subtotal := models.ZeroMoney()
		for _, line := range lines {
			product := products[line.ProductID]
			if err := inventory.CheckAvailable(product, line.Quantity); err != nil {
				return err
			}
			item := models.OrderItem{ProductID: product.ID, Quantity: line.Quantity, UnitPrice: product.Price}
			subtotal = subtotal.Add(item.LineTotal())
			items = append(items, item)
		}

		shipping := &models.ShippingInfo{
			Address:    strings.TrimSpace(req.Shipping.Address),
			City:       strings.TrimSpace(req.Shipping.City),
			Country:    strings.TrimSpace(req.Shipping.Country),
			PostalCode: strings.TrimSpace(req.Shipping.PostalCode),
		}
		if err := repo.CreateShippingInfo(ctx, shipping); err != nil {
			return fmt.Errorf("failed to create shipping info: %w", err)
		}

		order = &models.Order{
			UserID:         owner.UserID,
			ShippingInfoID: shipping.ID,
			PromotionCode:  code,
			PaymentStatus:  models.PaymentStatusUnpaid,
			OrderStatus:    models.OrderStatusPending,
		}
		s.pricing.Quote(subtotal, discountPercent).apply(order)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i := range items {
			items[i].OrderID = order.ID
			if err := repo.CreateOrderItem(ctx, &items[i]); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}

		if err := repo.ClearCart(ctx, cart.ID); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}

		order.Items = items
		order.Shipping = shipping
		return nil
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.String("total", order.TotalAmount.String()))

	s.publish(ctx, models.EventTypeOrderPlaced, order, "")
	return order, nil
}

// ProcessPayment charges an UNPAID order and commits its stock.
// Paying an already PAID order returns the existing payment without side effects.
func (s *OrderService) ProcessPayment(ctx context.Context, orderID, userID int64, card payment.Card) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ProcessPayment")
	defer span.End()

	if err := ValidateCard(card); err != nil {
		return nil, err
	}

	if existing := s.cachedPayment(ctx, orderID, userID); existing != nil {
		s.logger.Info("Duplicate payment request detected", zap.Int64("order_id", orderID))
		return existing, nil
	}

	var (
		order    *models.Order
		record   *models.Payment
		captured string
		repeated bool
	)
	err := s.store.WithTx(ctx, func(repo store.Repository) error {
		var err error
		order, err = s.lockOwnedOrder(ctx, repo, orderID, userID)
		if err != nil {
			return err
		}

		if order.PaymentStatus == models.PaymentStatusPaid {
			record, err = repo.GetPaymentByOrderID(ctx, orderID)
			if err != nil {
				return fromStore(err)
			}
			repeated = true
			return nil
		}
		if !order.CanPay() {
			return fmt.Errorf("order %d is %s/%s: %w", orderID, order.OrderStatus, order.PaymentStatus, ErrInvalidStateTransition)
		}

		items, err := repo.GetOrderItemsByOrderID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}
		if err := s.inventory.In(repo).DecrementAll(ctx, items); err != nil {
			return err
		}
		order.Items = items

		record, err = s.payments.Charge(ctx, repo, order, card)
		if record != nil {
			captured = record.TransactionID
		}
		if err != nil {
			return err
		}

		if err := repo.UpdateOrderPaymentStatus(ctx, orderID, models.PaymentStatusPaid); err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}
		order.PaymentStatus = models.PaymentStatusPaid
		return nil
	})
	if err != nil {
		if captured != "" {
			s.reverseCharge(ctx, orderID, captured, err)
		}
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}
	if repeated {
		s.logger.Info("Order already paid", zap.Int64("order_id", orderID))
		return record, nil
	}

	s.rememberPayment(ctx, orderID)
	util.OrdersPaidTotal.Inc()
	s.logger.Info("Order paid",
		zap.Int64("order_id", orderID),
		zap.String("tx_id", record.TransactionID))

	s.publish(ctx, models.EventTypeOrderPaid, order, record.TransactionID)
	return record, nil
}

// AdvanceStatus moves a paid order one step along PENDING, PROCESSING, SHIPPED, DELIVERED
func (s *OrderService) AdvanceStatus(ctx context.Context, orderID int64, target models.OrderStatus) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AdvanceStatus")
	defer span.End()

	var order *models.Order
	err := s.store.WithTx(ctx, func(repo store.Repository) error {
		var err error
		order, err = repo.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return fromStore(err)
		}
		if !order.CanAdvance(target) {
			return fmt.Errorf("order %d cannot move from %s to %s: %w", orderID, order.OrderStatus, target, ErrInvalidStateTransition)
		}
		if err := repo.UpdateOrderStatus(ctx, orderID, target); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		order.OrderStatus = target

		order.Items, err = repo.GetOrderItemsByOrderID(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order status changed",
		zap.Int64("order_id", orderID),
		zap.String("status", target.String()))

	s.publish(ctx, models.EventTypeOrderStatusChanged, order, "")
	return order, nil
}

// Cancel refunds a paid, undelivered order and returns its stock to the catalog
func (s *OrderService) Cancel(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel")
	defer span.End()

	var (
		order  *models.Order
		record *models.Payment
		issued bool
	)
	err := s.store.WithTx(ctx, func(repo store.Repository) error {
		var err error
		order, err = s.lockOwnedOrder(ctx, repo, orderID, userID)
		if err != nil {
			return err
		}
		if !order.CanCancel() {
			return fmt.Errorf("order %d is %s/%s: %w", orderID, order.OrderStatus, order.PaymentStatus, ErrInvalidStateTransition)
		}

		record, err = repo.GetPaymentByOrderID(ctx, orderID)
		if err != nil {
			return fromStore(err)
		}
		issued, err = s.payments.Refund(ctx, repo, record)
		if err != nil {
			return err
		}

		items, err := repo.GetOrderItemsByOrderID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}
		if err := s.inventory.In(repo).IncrementAll(ctx, items); err != nil {
			return err
		}
		order.Items = items

		if err := repo.UpdateOrderStatus(ctx, orderID, models.OrderStatusCancelled); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		if err := repo.UpdateOrderPaymentStatus(ctx, orderID, models.PaymentStatusRefunded); err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}
		order.OrderStatus = models.OrderStatusCancelled
		order.PaymentStatus = models.PaymentStatusRefunded
		return nil
	})
	if err != nil {
		if issued {
			s.recordCompensation(ctx, orderID, models.CompensationRefundIssued,
				fmt.Sprintf("refund of %s issued but cancellation not committed: %v", record.TransactionID, err))
		}
		return nil, err
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled", zap.Int64("order_id", orderID))

	s.publish(ctx, models.EventTypeOrderCancelled, order, record.TransactionID)
	return order, nil
}

// GetOrder retrieves one of the user's orders with its items and shipping
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fromStore(err)
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}

	if order.Items, err = s.store.GetOrderItemsByOrderID(ctx, orderID); err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	if order.Shipping, err = s.store.GetShippingInfo(ctx, order.ShippingInfoID); err != nil {
		return nil, fromStore(err)
	}
	return order, nil
}

// ListOrders returns the user's orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	orders, err := s.store.GetOrdersByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	for i := range orders {
		if orders[i].Items, err = s.store.GetOrderItemsByOrderID(ctx, orders[i].ID); err != nil {
			return nil, fmt.Errorf("failed to load order items: %w", err)
		}
	}
	return orders, nil
}

func (s *OrderService) lockOwnedOrder(ctx context.Context, repo store.Repository, orderID, userID int64) (*models.Order, error) {
	order, err := repo.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return nil, fromStore(err)
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	return order, nil
}

func paymentCacheKey(orderID int64) string {
	return "payment:order:" + strconv.FormatInt(orderID, 10)
}

// cachedPayment answers a repeat payment from the cache; any miss or error defers to the database
func (s *OrderService) cachedPayment(ctx context.Context, orderID, userID int64) *models.Payment {
	if s.cache == nil {
		return nil
	}
	if _, ok, err := s.cache.GetIdempotencyKey(ctx, paymentCacheKey(orderID)); err != nil || !ok {
		if err != nil {
			s.logger.Warn("Idempotency cache lookup failed", zap.Int64("order_id", orderID), zap.Error(err))
		}
		return nil
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil || order.UserID != userID || order.PaymentStatus != models.PaymentStatusPaid {
		return nil
	}
	record, err := s.payments.GetPayment(ctx, orderID)
	if err != nil || record.Status != models.PaymentStatusPaid {
		return nil
	}
	return record
}

func (s *OrderService) rememberPayment(ctx context.Context, orderID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetIdempotencyKey(ctx, paymentCacheKey(orderID), "paid", s.cacheTTL); err != nil {
		s.logger.Warn("Failed to set idempotency key", zap.Int64("order_id", orderID), zap.Error(err))
	}
}

// reverseCharge refunds a capture whose order state was rolled back and leaves a trail either way
func (s *OrderService) reverseCharge(ctx context.Context, orderID int64, txID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := s.payments.Reverse(ctx, txID); err != nil {
		s.logger.Error("Failed to reverse orphaned charge",
			zap.Int64("order_id", orderID),
			zap.String("tx_id", txID),
			zap.Error(err))
		s.recordCompensation(ctx, orderID, models.CompensationChargeOrphaned,
			fmt.Sprintf("charge %s captured, reversal failed (%v), cause: %v", txID, err, cause))
		return
	}
	s.recordCompensation(ctx, orderID, models.CompensationChargeReversed,
		fmt.Sprintf("charge %s reversed, cause: %v", txID, cause))
}

func (s *OrderService) recordCompensation(ctx context.Context, orderID int64, action, detail string) {
	util.CompensationsTotal.WithLabelValues(action).Inc()
	s.logger.Warn("Recording compensation",
		zap.Int64("order_id", orderID),
		zap.String("action", action),
		zap.String("detail", detail))

	c := &models.Compensation{OrderID: orderID, Action: action, Detail: detail}
	if err := s.store.CreateCompensation(context.WithoutCancel(ctx), c); err != nil {
		s.logger.Error("Failed to record compensation",
			zap.Int64("order_id", orderID),
			zap.String("action", action),
			zap.Error(err))
	}
}

// publish emits a lifecycle event after commit; delivery failures are logged, never returned
func (s *OrderService) publish(ctx context.Context, eventType string, order *models.Order, txID string) {
	event := &models.OrderEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: s.now(),
		},
		OrderID:       order.ID,
		UserID:        order.UserID,
		TotalAmount:   order.TotalAmount,
		OrderStatus:   order.OrderStatus,
		PaymentStatus: order.PaymentStatus,
		TransactionID: txID,
		Items:         make([]models.OrderItemData, 0, len(order.Items)),
	}

	ids := make([]int64, 0, len(order.Items))
	for _, item := range order.Items {
		event.Items = append(event.Items, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
		ids = append(ids, item.ProductID)
	}
	event.SellerIDs = s.sellerIDs(ctx, ids)

	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		util.EventPublishFailuresTotal.WithLabelValues(eventType).Inc()
		s.logger.Error("Failed to publish order event",
			zap.String("event_type", eventType),
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}

func (s *OrderService) sellerIDs(ctx context.Context, productIDs []int64) []int64 {
	products, err := s.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		s.logger.Warn("Failed to resolve sellers", zap.Error(err))
		return nil
	}
	seen := make(map[int64]bool)
	var sellers []int64
	for _, p := range products {
		if p.SellerID > 0 && !seen[p.SellerID] {
			seen[p.SellerID] = true
			sellers = append(sellers, p.SellerID)
		}
	}
	return sellers
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrPaymentDeclined):
		return "payment_declined"
	case errors.Is(err, ErrValidation):
		return "invalid_request"
	case errors.Is(err, ErrInvalidStateTransition):
		return "invalid_state"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}

package store

import (
	"context"
	"fmt"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateShippingInfo inserts the address snapshot for a checkout
func (q *queries) CreateShippingInfo(ctx context.Context, info *models.ShippingInfo) error {
	query := `
		INSERT INTO shipping_info (address, city, country, postal_code)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, q.ext, info, query,
		info.Address, info.City, info.Country, info.PostalCode)
}

// GetShippingInfo retrieves a shipping snapshot
func (q *queries) GetShippingInfo(ctx context.Context, id int64) (*models.ShippingInfo, error) {
	var info models.ShippingInfo
	err := sqlx.GetContext(ctx, q.ext, &info, "SELECT * FROM shipping_info WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "shipping info", id)
	}
	return &info, nil
}

// CreateOrder creates a new order
func (q *queries) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, shipping_info_id, subtotal, discount_amount, promotion_code,
			tax_rate, tax_amount, shipping_cost, total_amount, payment_status, order_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, q.ext, order, query,
		order.UserID, order.ShippingInfoID, order.Subtotal, order.DiscountAmount, order.PromotionCode,
		order.TaxRate, order.TaxAmount, order.ShippingCost, order.TotalAmount,
		order.PaymentStatus, order.OrderStatus)
}

// CreateOrderItem creates a new order item
func (q *queries) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return sqlx.GetContext(ctx, q.ext, &item.ID, query,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice)
}

// GetOrderByID retrieves an order by ID
func (q *queries) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q.ext, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return &order, nil
}

// GetOrderForUpdate retrieves an order and holds its row lock until the transaction ends
func (q *queries) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q.ext, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user
func (q *queries) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	orders := []models.Order{}
	err := sqlx.SelectContext(ctx, q.ext, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
	return orders, err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (q *queries) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := sqlx.SelectContext(ctx, q.ext, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY product_id", orderID)
	return items, err
}

// UpdateOrderStatus updates the fulfillment status
func (q *queries) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	res, err := q.ext.ExecContext(ctx,
		"UPDATE orders SET order_status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return err
	}
	return expectAffected(res, "order", orderID)
}

// UpdateOrderPaymentStatus updates the payment status mirrored on the order
func (q *queries) UpdateOrderPaymentStatus(ctx context.Context, orderID int64, status models.PaymentStatus) error {
	res, err := q.ext.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return err
	}
	return expectAffected(res, "order", orderID)
}

// CreatePayment creates a new payment record
func (q *queries) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, amount, status, transaction_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, q.ext, payment, query,
		payment.OrderID, payment.Amount, payment.Status, payment.TransactionID)
}

// GetPaymentByOrderID retrieves payment for an order
func (q *queries) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, q.ext, &payment,
		"SELECT * FROM payments WHERE order_id = $1", orderID)
	if err != nil {
		return nil, notFound(err, "payment for order", orderID)
	}
	return &payment, nil
}

// UpdatePaymentStatus updates payment status
func (q *queries) UpdatePaymentStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error {
	res, err := q.ext.ExecContext(ctx,
		"UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2",
		status, paymentID)
	if err != nil {
		return err
	}
	return expectAffected(res, "payment", paymentID)
}

// CreateNotification persists a user-facing message
func (q *queries) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, message, is_read)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, q.ext, n, query, n.UserID, n.Message, n.IsRead)
}

// GetNotificationsByUserID retrieves a user's notifications, newest first
func (q *queries) GetNotificationsByUserID(ctx context.Context, userID int64) ([]models.Notification, error) {
	notifications := []models.Notification{}
	err := sqlx.SelectContext(ctx, q.ext, &notifications,
		"SELECT * FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
	return notifications, err
}

// MarkNotificationRead flags a notification owned by userID as read
func (q *queries) MarkNotificationRead(ctx context.Context, userID, notificationID int64) error {
	res, err := q.ext.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2",
		notificationID, userID)
	if err != nil {
		return err
	}
	return expectAffected(res, "notification", notificationID)
}

// IsEventProcessed checks if an event has been processed
func (q *queries) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q.ext, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed inserts the event id; a concurrent claimant blocks on the key and then sees 0 rows
func (q *queries) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	res, err := q.ext.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CreateCompensation records a side effect that needs operator attention
func (q *queries) CreateCompensation(ctx context.Context, c *models.Compensation) error {
	query := `
		INSERT INTO compensations (order_id, action, detail)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, q.ext, c, query, c.OrderID, c.Action, c.Detail)
}

package models

import "time"

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderPaid          = "ORDER_PAID"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderEvent is published after every committed lifecycle change
type OrderEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	UserID        int64           `json:"user_id"`
	TotalAmount   Money           `json:"total_amount"`
	OrderStatus   OrderStatus     `json:"order_status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Items         []OrderItemData `json:"items"`
	SellerIDs     []int64         `json:"seller_ids,omitempty"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice Money `json:"unit_price"`
}

package models

import (
	"time"
)

// Product is the catalog reference consumed by cart and order logic
type Product struct {
	ID        int64     `db:"id" json:"id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Price     Money     `db:"price" json:"price"`
	Stock     int       `db:"stock" json:"stock"`
	SellerID  int64     `db:"seller_id" json:"seller_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Cart holds pre-purchase line items for one owner
type Cart struct {
	ID           int64      `db:"id" json:"id"`
	UserID       *int64     `db:"user_id" json:"user_id,omitempty"`
	SessionToken *string    `db:"session_token" json:"-"`
	Items        []CartItem `db:"-" json:"items"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Owner returns the owner key the cart was created for
func (c *Cart) Owner() CartOwner {
	if c.UserID != nil {
		return UserOwner(*c.UserID)
	}
	if c.SessionToken != nil {
		return SessionOwner(*c.SessionToken)
	}
	return CartOwner{}
}

// CartItem is a single cart line; (cart_id, product_id) is unique
type CartItem struct {
	ID        int64     `db:"id" json:"id"`
	CartID    int64     `db:"cart_id" json:"cart_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	UnitPrice Money     `db:"unit_price" json:"unit_price"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ShippingInfo is the address snapshot attached to an order
type ShippingInfo struct {
	ID         int64     `db:"id" json:"id"`
	Address    string    `db:"address" json:"address"`
	City       string    `db:"city" json:"city"`
	Country    string    `db:"country" json:"country"`
	PostalCode string    `db:"postal_code" json:"postal_code"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Order is a customer order; amounts are frozen at checkout
type Order struct {
	ID             int64         `db:"id" json:"id"`
	UserID         int64         `db:"user_id" json:"user_id"`
	ShippingInfoID int64         `db:"shipping_info_id" json:"-"`
	Subtotal       Money         `db:"subtotal" json:"subtotal"`
	DiscountAmount Money         `db:"discount_amount" json:"discount_amount"`
	PromotionCode  string        `db:"promotion_code" json:"promotion_code,omitempty"`
	TaxRate        Money         `db:"tax_rate" json:"tax_rate"`
	TaxAmount      Money         `db:"tax_amount" json:"tax_amount"`
	ShippingCost   Money         `db:"shipping_cost" json:"shipping_cost"`
	TotalAmount    Money         `db:"total_amount" json:"total_amount"`
	PaymentStatus  PaymentStatus `db:"payment_status" json:"payment_status"`
	OrderStatus    OrderStatus   `db:"order_status" json:"order_status"`
	Items          []OrderItem   `db:"-" json:"items"`
	Shipping       *ShippingInfo `db:"-" json:"shipping,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// OrderItem is an immutable purchase-time snapshot of a cart line
type OrderItem struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	UnitPrice Money `db:"unit_price" json:"unit_price"`
}

// LineTotal returns unit price times quantity
func (i OrderItem) LineTotal() Money {
	return i.UnitPrice.MulInt(i.Quantity)
}

// Payment is the monetary transaction bound 1:1 to an order
type Payment struct {
	ID            int64         `db:"id" json:"id"`
	OrderID       int64         `db:"order_id" json:"order_id"`
	Amount        Money         `db:"amount" json:"amount"`
	Status        PaymentStatus `db:"status" json:"status"`
	TransactionID string        `db:"transaction_id" json:"transaction_id"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// Promotion is a time-bounded discount code
type Promotion struct {
	ID                 int64     `db:"id" json:"id"`
	DiscountCode       string    `db:"discount_code" json:"discount_code"`
	DiscountPercentage Money     `db:"discount_percentage" json:"discount_percentage"`
	ExpiryDate         time.Time `db:"expiry_date" json:"expiry_date"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// Notification is a user-facing message produced from lifecycle events
type Notification struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Message   string    `db:"message" json:"message"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Compensation records an external side effect whose local state change was not committed
type Compensation struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   int64     `db:"order_id" json:"order_id"`
	Action    string    `db:"action" json:"action"`
	Detail    string    `db:"detail" json:"detail"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Compensation actions
const (
	CompensationRefundIssued   = "REFUND_ISSUED"
	CompensationChargeReversed = "CHARGE_REVERSED"
	CompensationChargeOrphaned = "CHARGE_ORPHANED"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

package models

import (
	"fmt"
	"strings"
)

// OrderStatus is the fulfillment state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

func (s OrderStatus) String() string {
	return string(s)
}

// PaymentStatus is shared by orders and payments
type PaymentStatus string

// Payment statuses
const (
	PaymentStatusUnpaid   PaymentStatus = "UNPAID"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) String() string {
	return string(s)
}

// forwardTransitions lists the single forward step allowed from each fulfillment state.
// Cancellation is not a forward step and is guarded by CanCancel.
var forwardTransitions = map[OrderStatus]OrderStatus{
	OrderStatusPending:    OrderStatusProcessing,
	OrderStatusProcessing: OrderStatusShipped,
	OrderStatusShipped:    OrderStatusDelivered,
}

// ParseOrderStatus parses a case-insensitive status name
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// CanAdvance reports whether the order may move to target as a fulfillment step
func (o *Order) CanAdvance(target OrderStatus) bool {
	if o.PaymentStatus != PaymentStatusPaid {
		return false
	}
	next, ok := forwardTransitions[o.OrderStatus]
	return ok && next == target
}

// CanCancel reports whether the order may be cancelled and refunded
func (o *Order) CanCancel() bool {
	return o.PaymentStatus == PaymentStatusPaid &&
		o.OrderStatus != OrderStatusDelivered &&
		o.OrderStatus != OrderStatusCancelled
}

// CanPay reports whether the order is still awaiting payment
func (o *Order) CanPay() bool {
	return o.PaymentStatus == PaymentStatusUnpaid && o.OrderStatus == OrderStatusPending
}

// RecomputeTotal returns subtotal - discount + tax + shipping from the stored parts
func (o *Order) RecomputeTotal() Money {
	return o.Subtotal.Sub(o.DiscountAmount).Add(o.TaxAmount).Add(o.ShippingCost)
}

// ItemsSubtotal sums the frozen order lines
func (o *Order) ItemsSubtotal() Money {
	total := ZeroMoney()
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// CartOwner keys a cart by exactly one of an authenticated user or an anonymous session
type CartOwner struct {
	UserID       int64
	SessionToken string
}

// UserOwner returns the owner key for an authenticated user
func UserOwner(userID int64) CartOwner {
	return CartOwner{UserID: userID}
}

// SessionOwner returns the owner key for an anonymous session
func SessionOwner(token string) CartOwner {
	return CartOwner{SessionToken: token}
}

// IsUser reports whether the owner is an authenticated user
func (o CartOwner) IsUser() bool {
	return o.UserID > 0 && o.SessionToken == ""
}

// Valid reports whether exactly one owner key is set
func (o CartOwner) Valid() bool {
	hasUser := o.UserID > 0
	hasSession := strings.TrimSpace(o.SessionToken) != ""
	return hasUser != hasSession
}

// Key is a stable string form usable for lock names
func (o CartOwner) Key() string {
	if o.UserID > 0 {
		return fmt.Sprintf("user:%d", o.UserID)
	}
	return "session:" + o.SessionToken
}

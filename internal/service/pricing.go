package service

import (
	"checkout-service/internal/models"
)

// Pricing holds the order-level charges applied at checkout
type Pricing struct {
	TaxRatePercent models.Money
	FlatShipping   models.Money
}

// DefaultPricing is 8% tax and 5.00 flat shipping
func DefaultPricing() Pricing {
	return Pricing{
		TaxRatePercent: models.MustMoney("8"),
		FlatShipping:   models.MustMoney("5.00"),
	}
}

// Quote is a priced breakdown of a set of lines
type Quote struct {
	Subtotal       models.Money `json:"subtotal"`
	DiscountAmount models.Money `json:"discount_amount"`
	TaxRate        models.Money `json:"tax_rate"`
	TaxAmount      models.Money `json:"tax_amount"`
	ShippingCost   models.Money `json:"shipping_cost"`
	Total          models.Money `json:"total"`
}

// Quote prices subtotal with an optional discount percentage.
// Tax is charged on the pre-discount subtotal; shipping only applies to a non-zero subtotal.
func (p Pricing) Quote(subtotal, discountPercent models.Money) Quote {
	q := Quote{
		Subtotal:       subtotal,
		DiscountAmount: subtotal.Percent(discountPercent),
		TaxRate:        p.TaxRatePercent,
		TaxAmount:      subtotal.Percent(p.TaxRatePercent),
		ShippingCost:   models.ZeroMoney(),
	}
	if subtotal.IsPositive() {
		q.ShippingCost = p.FlatShipping
	}
	q.Total = q.Subtotal.Sub(q.DiscountAmount).Add(q.TaxAmount).Add(q.ShippingCost)
	return q
}

// apply copies the quote onto an order
func (q Quote) apply(order *models.Order) {
	order.Subtotal = q.Subtotal
	order.DiscountAmount = q.DiscountAmount
	order.TaxRate = q.TaxRate
	order.TaxAmount = q.TaxAmount
	order.ShippingCost = q.ShippingCost
	order.TotalAmount = q.Total
}

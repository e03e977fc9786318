package service

import (
	"testing"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestPricingQuote(t *testing.T) {
	p := DefaultPricing()

	tests := []struct {
		name, subtotal, discount                   string
		wantDiscount, wantTax, wantShip, wantTotal string
	}{
		{"two units at 10.00", "20.00", "0", "0.00", "1.60", "5.00", "26.60"},
		{"ten percent off", "20.00", "10", "2.00", "1.60", "5.00", "24.60"},
		{"rounds half up", "0.19", "0", "0.00", "0.02", "5.00", "5.21"},
		{"empty cart ships free", "0.00", "0", "0.00", "0.00", "0.00", "0.00"},
		{"full discount", "20.00", "100", "20.00", "1.60", "5.00", "6.60"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := p.Quote(models.MustMoney(tt.subtotal), models.MustMoney(tt.discount))
			assertMoney(t, tt.wantDiscount, q.DiscountAmount)
			assertMoney(t, tt.wantTax, q.TaxAmount)
			assertMoney(t, tt.wantShip, q.ShippingCost)
			assertMoney(t, tt.wantTotal, q.Total)
			assertMoney(t, "8", q.TaxRate)
		})
	}
}

func TestQuoteApplyKeepsTotalInvariant(t *testing.T) {
	var order models.Order
	DefaultPricing().Quote(models.MustMoney("33.33"), models.MustMoney("15")).apply(&order)
	assert.True(t, order.TotalAmount.Equal(order.RecomputeTotal()))
}

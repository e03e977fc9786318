package service

import (
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) promotion(t *testing.T, code, pct string, expiry time.Time) {
	t.Helper()
	require.NoError(t, f.promotions.CreatePromotion(f.ctx, &models.Promotion{
		DiscountCode:       code,
		DiscountPercentage: models.MustMoney(pct),
		ExpiryDate:         expiry,
	}))
}

func TestPromotionService_Validate(t *testing.T) {
	f := newFixture(t)
	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	f.promotion(t, "SAVE10", "10", expiry)

	promo, err := f.promotions.Validate(f.ctx, "SAVE10", expiry.Add(-time.Second))
	require.NoError(t, err)
	assertMoney(t, "10", promo.DiscountPercentage)

	fraction, err := f.promotions.DiscountFraction(f.ctx, "SAVE10", expiry.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "0.1", fraction.String())

	_, err = f.promotions.Validate(f.ctx, "SAVE10", expiry)
	assert.ErrorIs(t, err, ErrPromotionExpired, "expiry instant itself is expired")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.promotions.Validate(f.ctx, "NOPE", expiry.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrPromotionNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPromotionService_CreatePromotionRejectsBadPercentage(t *testing.T) {
	f := newFixture(t)
	expiry := time.Now().Add(time.Hour)

	for _, pct := range []string{"0", "-5", "100.01"} {
		err := f.promotions.CreatePromotion(f.ctx, &models.Promotion{
			DiscountCode:       "BAD" + pct,
			DiscountPercentage: models.MustMoney(pct),
			ExpiryDate:         expiry,
		})
		assert.ErrorIs(t, err, ErrValidation, pct)
	}
	f.promotion(t, "ALL", "100", expiry)
}

func TestPromotionService_PreviewLeavesCartUnchanged(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "10.00", 5, 0)
	owner := models.UserOwner(1)
	f.promotion(t, "SAVE10", "10", time.Now().Add(time.Hour))
	f.promotion(t, "OLD", "50", time.Now().Add(-time.Hour))

	_, err := f.carts.AddItem(f.ctx, owner, p.ID, 2)
	require.NoError(t, err)

	view, err := f.promotions.Preview(f.ctx, owner, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", view.PromotionCode)
	assertMoney(t, "2.00", view.Summary.DiscountAmount)
	assertMoney(t, "24.60", view.Summary.Total)

	_, err = f.promotions.Preview(f.ctx, owner, "OLD")
	assert.ErrorIs(t, err, ErrPromotionExpired)

	cart, err := f.carts.GetCart(f.ctx, owner)
	require.NoError(t, err)
	assertMoney(t, "26.60", cart.Summary.Total)
	assert.Empty(t, cart.PromotionCode)
}

func TestPromotionService_PreviewAndCheckoutShareClock(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "10.00", 5, 0)
	owner := models.UserOwner(1)
	expiry := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	f.promotion(t, "SUMMER", "10", expiry)

	_, err := f.carts.AddItem(f.ctx, owner, p.ID, 2)
	require.NoError(t, err)

	f.promotions.now = func() time.Time { return expiry }
	_, err = f.promotions.Preview(f.ctx, owner, "SUMMER")
	assert.ErrorIs(t, err, ErrPromotionExpired)
	_, err = f.orders.Checkout(f.ctx, owner, &CheckoutRequest{Shipping: testShipping(), PromotionCode: "SUMMER"})
	assert.ErrorIs(t, err, ErrPromotionExpired)

	f.promotions.now = func() time.Time { return expiry.Add(-time.Minute) }
	view, err := f.promotions.Preview(f.ctx, owner, "SUMMER")
	require.NoError(t, err)
	order, err := f.orders.Checkout(f.ctx, owner, &CheckoutRequest{Shipping: testShipping(), PromotionCode: "SUMMER"})
	require.NoError(t, err)
	assertMoney(t, view.Summary.Total.String(), order.TotalAmount)
	assertMoney(t, "24.60", order.TotalAmount)
}

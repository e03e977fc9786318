package payment

import (
	"context"
	"testing"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCard() Card {
	return Card{
		Number:     "4111 1111 1111 1111",
		ExpiryDate: "12/2025",
		CVV:        "123",
		NameOnCard: "Test User",
	}
}

func TestValidExpiry(t *testing.T) {
	for _, s := range []string{"12/2025", "01/27", "09/30"} {
		assert.True(t, ValidExpiry(s), s)
	}
	for _, s := range []string{"", "2025-12", "13/2025", "00/25", "1/25", "12/025"} {
		assert.False(t, ValidExpiry(s), s)
	}
}

func TestCardNormalized(t *testing.T) {
	c := Card{Number: " 4111-1111 1111-1111 ", ExpiryDate: " 12/30", CVV: "123 ", NameOnCard: "  Jane "}
	assert.Equal(t, Card{Number: "4111111111111111", ExpiryDate: "12/30", CVV: "123", NameOnCard: "Jane"}, c.Normalized())
}

func TestCardLast4(t *testing.T) {
	assert.Equal(t, "1111", validCard().Last4())
}

func TestSimulatedGateway_ChargeAndRefund(t *testing.T) {
	g := NewSimulatedGateway(nil, 0, 1)
	ctx := context.Background()

	txID, err := g.Charge(ctx, models.MustMoney("26.60"), validCard())
	require.NoError(t, err)
	assert.Regexp(t, `^TXN-[0-9A-F]{8}$`, txID)

	require.NoError(t, g.Refund(ctx, txID))
	assert.True(t, g.Refunded(txID))
	assert.Error(t, g.Refund(ctx, txID), "double refund must fail")
	assert.Error(t, g.Refund(ctx, "TXN-UNKNOWN"))
}

func TestSimulatedGateway_DeclineList(t *testing.T) {
	g := NewSimulatedGateway([]string{"4000 0000 0000 0002"}, 0, 1)
	card := validCard()
	card.Number = "4000000000000002"

	_, err := g.Charge(context.Background(), models.MustMoney("1.00"), card)
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestSimulatedGateway_DeclineRate(t *testing.T) {
	g := NewSimulatedGateway(nil, 1, 1)
	_, err := g.Charge(context.Background(), models.MustMoney("1.00"), validCard())
	assert.ErrorIs(t, err, ErrDeclined)
}

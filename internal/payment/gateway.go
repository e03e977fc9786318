package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"checkout-service/internal/models"

	"github.com/google/uuid"
)

// ErrDeclined is returned by a gateway that refuses the charge
var ErrDeclined = errors.New("payment declined")

// Gateway is the external payment provider boundary
type Gateway interface {
	// Charge captures amount from the instrument and returns the provider transaction id
	Charge(ctx context.Context, amount models.Money, card Card) (string, error)
	// Refund reverses a previously captured transaction
	Refund(ctx context.Context, transactionID string) error
}

// SimulatedGateway approves every valid card except the configured decline list,
// and optionally declines a random fraction of charges
type SimulatedGateway struct {
	declineCards map[string]bool
	declineRate  float64

	mu       sync.Mutex
	rnd      *rand.Rand
	captured map[string]models.Money
	refunded map[string]bool
}

// NewSimulatedGateway creates a simulated gateway
func NewSimulatedGateway(declineCards []string, declineRate float64, seed int64) *SimulatedGateway {
	decline := make(map[string]bool, len(declineCards))
	for _, c := range declineCards {
		if c = normalizeNumber(c); c != "" {
			decline[c] = true
		}
	}
	return &SimulatedGateway{
		declineCards: decline,
		declineRate:  declineRate,
		rnd:          rand.New(rand.NewSource(seed)),
		captured:     make(map[string]models.Money),
		refunded:     make(map[string]bool),
	}
}

// Charge simulates a capture
func (g *SimulatedGateway) Charge(ctx context.Context, amount models.Money, card Card) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.declineCards[normalizeNumber(card.Number)] {
		return "", fmt.Errorf("%w: card refused by issuer", ErrDeclined)
	}
	if g.declineRate > 0 && g.rnd.Float64() < g.declineRate {
		return "", fmt.Errorf("%w: mock_payment_declined", ErrDeclined)
	}

	txID := fmt.Sprintf("TXN-%s", strings.ToUpper(uuid.New().String()[:8]))
	g.captured[txID] = amount
	return txID, nil
}

// Refund simulates a reversal; unknown or already refunded transactions fail
func (g *SimulatedGateway) Refund(ctx context.Context, transactionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.captured[transactionID]; !ok {
		return fmt.Errorf("unknown transaction %s", transactionID)
	}
	if g.refunded[transactionID] {
		return fmt.Errorf("transaction %s already refunded", transactionID)
	}
	g.refunded[transactionID] = true
	return nil
}

// Refunded reports whether a transaction was reversed
func (g *SimulatedGateway) Refunded(transactionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunded[transactionID]
}

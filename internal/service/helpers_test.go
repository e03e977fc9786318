package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/store"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const declinedCardNumber = "4000000000000002"

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType
	}
	return out
}

func (p *recordingPublisher) last() *models.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

// memoryCache is an IdempotencyCache backed by a map
type memoryCache struct {
	mu     sync.Mutex
	keys   map[string]string
	gets   int
	getErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{keys: make(map[string]string)}
}

func (c *memoryCache) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key] = fmt.Sprint(value)
	return nil
}

func (c *memoryCache) GetIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.keys[key]
	return v, ok, nil
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.keys[key]
	return ok
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Charge(ctx context.Context, amount models.Money, card payment.Card) (string, error) {
	args := m.Called(ctx, amount, card)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) Refund(ctx context.Context, transactionID string) error {
	return m.Called(ctx, transactionID).Error(0)
}

type fixture struct {
	ctx           context.Context
	store         *store.MemoryStore
	publisher     *recordingPublisher
	inventory     *InventoryClient
	carts         *CartService
	promotions    *PromotionService
	payments      *PaymentService
	orders        *OrderService
	notifications *NotificationService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithGateway(t, payment.NewSimulatedGateway([]string{declinedCardNumber}, 0, 1))
}

func newFixtureWithGateway(t *testing.T, gateway payment.Gateway) *fixture {
	t.Helper()

	st := store.NewMemoryStore()
	locker := NewLocalLocker()
	pricing := DefaultPricing()

	f := &fixture{
		ctx:       context.Background(),
		store:     st,
		publisher: &recordingPublisher{},
		inventory: NewInventoryClient(st),
	}
	f.carts = NewCartService(st, f.inventory, locker, pricing, time.Second)
	f.promotions = NewPromotionService(st, f.carts)
	f.payments = NewPaymentService(st, gateway)
	f.notifications = NewNotificationService(st)
	f.orders = NewOrderService(st, f.inventory, f.payments, f.promotions, f.publisher, locker, OrderServiceConfig{
		Pricing: pricing,
		LockTTL: time.Second,
	})
	return f
}

func (f *fixture) product(t *testing.T, price string, stock int, sellerID int64) *models.Product {
	t.Helper()
	p := &models.Product{
		SKU:      "SKU-" + price,
		Name:     "Product " + price,
		Price:    models.MustMoney(price),
		Stock:    stock,
		SellerID: sellerID,
	}
	require.NoError(t, f.store.CreateProduct(f.ctx, p))
	return p
}

func (f *fixture) stock(t *testing.T, productID int64) int {
	t.Helper()
	p, err := f.store.GetProductByID(f.ctx, productID)
	require.NoError(t, err)
	return p.Stock
}

// placeOrder fills the user's cart with qty units of product and checks out
func (f *fixture) placeOrder(t *testing.T, userID int64, product *models.Product, qty int) *models.Order {
	t.Helper()
	owner := models.UserOwner(userID)
	_, err := f.carts.AddItem(f.ctx, owner, product.ID, qty)
	require.NoError(t, err)
	order, err := f.orders.Checkout(f.ctx, owner, &CheckoutRequest{Shipping: testShipping()})
	require.NoError(t, err)
	return order
}

func testShipping() ShippingRequest {
	return ShippingRequest{Address: "1 Main St", City: "Springfield", Country: "US", PostalCode: "12345"}
}

func testCard() payment.Card {
	return payment.Card{Number: "4111 1111 1111 1111", ExpiryDate: "12/2030", CVV: "123", NameOnCard: "Jane Buyer"}
}

func assertMoney(t *testing.T, want string, got models.Money) {
	t.Helper()
	require.True(t, models.MustMoney(want).Equal(got), "want %s, got %s", want, got)
}

// withCache puts an idempotency cache in front of payments
func (f *fixture) withCache(c IdempotencyCache) {
	f.orders.cache = c
	f.orders.cacheTTL = time.Minute
}

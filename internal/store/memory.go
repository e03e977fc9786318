package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"checkout-service/internal/models"
)

// MemoryStore is an in-process Storage for local runs and tests.
// A transaction holds the write lock for its whole duration and restores a snapshot on error.
type MemoryStore struct {
	*memRepo

	mu    sync.RWMutex
	state *memState

	// BeforeCommit, when set, runs after a transaction body succeeds; an error aborts the commit.
	BeforeCommit func() error
}

var _ Storage = (*MemoryStore)(nil)

type memState struct {
	seq           int64
	products      map[int64]models.Product
	carts         map[int64]models.Cart
	cartItems     map[int64]map[int64]models.CartItem
	promotions    map[string]models.Promotion
	shipping      map[int64]models.ShippingInfo
	orders        map[int64]models.Order
	orderItems    map[int64][]models.OrderItem
	payments      map[int64]models.Payment
	notifications map[int64]models.Notification
	processed     map[string]models.ProcessedEvent
	compensations []models.Compensation
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		state: &memState{
			products:      make(map[int64]models.Product),
			carts:         make(map[int64]models.Cart),
			cartItems:     make(map[int64]map[int64]models.CartItem),
			promotions:    make(map[string]models.Promotion),
			shipping:      make(map[int64]models.ShippingInfo),
			orders:        make(map[int64]models.Order),
			orderItems:    make(map[int64][]models.OrderItem),
			payments:      make(map[int64]models.Payment),
			notifications: make(map[int64]models.Notification),
			processed:     make(map[string]models.ProcessedEvent),
		},
	}
	m.memRepo = &memRepo{m: m}
	return m
}

func (s *memState) clone() *memState {
	c := &memState{
		seq:           s.seq,
		products:      make(map[int64]models.Product, len(s.products)),
		carts:         make(map[int64]models.Cart, len(s.carts)),
		cartItems:     make(map[int64]map[int64]models.CartItem, len(s.cartItems)),
		promotions:    make(map[string]models.Promotion, len(s.promotions)),
		shipping:      make(map[int64]models.ShippingInfo, len(s.shipping)),
		orders:        make(map[int64]models.Order, len(s.orders)),
		orderItems:    make(map[int64][]models.OrderItem, len(s.orderItems)),
		payments:      make(map[int64]models.Payment, len(s.payments)),
		notifications: make(map[int64]models.Notification, len(s.notifications)),
		processed:     make(map[string]models.ProcessedEvent, len(s.processed)),
		compensations: append([]models.Compensation(nil), s.compensations...),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for k, lines := range s.cartItems {
		cp := make(map[int64]models.CartItem, len(lines))
		for pid, item := range lines {
			cp[pid] = item
		}
		c.cartItems[k] = cp
	}
	for k, v := range s.promotions {
		c.promotions[k] = v
	}
	for k, v := range s.shipping {
		c.shipping[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderItems {
		c.orderItems[k] = append([]models.OrderItem(nil), v...)
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.notifications {
		c.notifications[k] = v
	}
	for k, v := range s.processed {
		c.processed[k] = v
	}
	return c
}

// WithTx serializes fn against every other transaction and write
func (m *MemoryStore) WithTx(ctx context.Context, fn func(repo Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := m.state.clone()
	if err := fn(&memRepo{m: m, inTx: true}); err != nil {
		m.state = snapshot
		return err
	}

	if m.BeforeCommit != nil {
		if err := m.BeforeCommit(); err != nil {
			m.state = snapshot
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
	}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// Compensations returns the recorded compensation trail
func (m *MemoryStore) Compensations() []models.Compensation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Compensation(nil), m.state.compensations...)
}

// memRepo skips locking when it runs inside WithTx, which already holds the write lock
type memRepo struct {
	m    *MemoryStore
	inTx bool
}

func (r *memRepo) rlock() func() {
	if r.inTx {
		return func() {}
	}
	r.m.mu.RLock()
	return r.m.mu.RUnlock
}

func (r *memRepo) wlock() func() {
	if r.inTx {
		return func() {}
	}
	r.m.mu.Lock()
	return r.m.mu.Unlock
}

func (r *memRepo) st() *memState { return r.m.state }

func (r *memRepo) nextID() int64 {
	r.st().seq++
	return r.st().seq
}

func (r *memRepo) CreateProduct(ctx context.Context, product *models.Product) error {
	defer r.wlock()()
	now := time.Now().UTC()
	product.ID = r.nextID()
	product.CreatedAt, product.UpdatedAt = now, now
	r.st().products[product.ID] = *product
	return nil
}

func (r *memRepo) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	defer r.rlock()()
	p, ok := r.st().products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (r *memRepo) GetProducts(ctx context.Context) ([]models.Product, error) {
	defer r.rlock()()
	out := make([]models.Product, 0, len(r.st().products))
	for _, p := range r.st().products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	defer r.rlock()()
	out := make([]models.Product, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if p, ok := r.st().products[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("product %d: requested=%d: %w", productID, quantity, ErrInvalidQuantity)
	}
	defer r.wlock()()
	p, ok := r.st().products[productID]
	if !ok {
		return fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}
	if p.Stock < quantity {
		return fmt.Errorf("product %d: available=%d, requested=%d: %w", productID, p.Stock, quantity, ErrInsufficientStock)
	}
	p.Stock -= quantity
	p.UpdatedAt = time.Now().UTC()
	r.st().products[productID] = p
	return nil
}

func (r *memRepo) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("product %d: restored=%d: %w", productID, quantity, ErrInvalidQuantity)
	}
	defer r.wlock()()
	p, ok := r.st().products[productID]
	if !ok {
		return fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}
	p.Stock += quantity
	p.UpdatedAt = time.Now().UTC()
	r.st().products[productID] = p
	return nil
}

func (r *memRepo) GetOrCreateCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	defer r.wlock()()
	for _, c := range r.st().carts {
		if c.Owner() == owner {
			cart := c
			return &cart, nil
		}
	}
	now := time.Now().UTC()
	cart := models.Cart{ID: r.nextID(), CreatedAt: now, UpdatedAt: now}
	if owner.UserID > 0 {
		uid := owner.UserID
		cart.UserID = &uid
	} else {
		token := owner.SessionToken
		cart.SessionToken = &token
	}
	r.st().carts[cart.ID] = cart
	return &cart, nil
}

func (r *memRepo) GetCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	defer r.rlock()()
	items := make([]models.CartItem, 0, len(r.st().cartItems[cartID]))
	for _, item := range r.st().cartItems[cartID] {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items, nil
}

func (r *memRepo) GetCartItem(ctx context.Context, cartID, productID int64) (*models.CartItem, error) {
	defer r.rlock()()
	item, ok := r.st().cartItems[cartID][productID]
	if !ok {
		return nil, fmt.Errorf("cart item for product %d: %w", productID, ErrNotFound)
	}
	return &item, nil
}

func (r *memRepo) UpsertCartItem(ctx context.Context, item *models.CartItem) error {
	defer r.wlock()()
	lines, ok := r.st().cartItems[item.CartID]
	if !ok {
		lines = make(map[int64]models.CartItem)
		r.st().cartItems[item.CartID] = lines
	}
	now := time.Now().UTC()
	if existing, ok := lines[item.ProductID]; ok {
		item.ID, item.CreatedAt = existing.ID, existing.CreatedAt
	} else {
		item.ID, item.CreatedAt = r.nextID(), now
	}
	item.UpdatedAt = now
	lines[item.ProductID] = *item
	return nil
}

func (r *memRepo) DeleteCartItem(ctx context.Context, cartID, productID int64) error {
	defer r.wlock()()
	delete(r.st().cartItems[cartID], productID)
	return nil
}

func (r *memRepo) ClearCart(ctx context.Context, cartID int64) error {
	defer r.wlock()()
	delete(r.st().cartItems, cartID)
	return nil
}

func (r *memRepo) CreatePromotion(ctx context.Context, promotion *models.Promotion) error {
	defer r.wlock()()
	if _, ok := r.st().promotions[promotion.DiscountCode]; ok {
		return fmt.Errorf("promotion %s already exists", promotion.DiscountCode)
	}
	promotion.ID = r.nextID()
	promotion.CreatedAt = time.Now().UTC()
	r.st().promotions[promotion.DiscountCode] = *promotion
	return nil
}

func (r *memRepo) GetPromotionByCode(ctx context.Context, code string) (*models.Promotion, error) {
	defer r.rlock()()
	p, ok := r.st().promotions[code]
	if !ok {
		return nil, fmt.Errorf("promotion %s: %w", code, ErrNotFound)
	}
	return &p, nil
}

func (r *memRepo) CreateShippingInfo(ctx context.Context, info *models.ShippingInfo) error {
	defer r.wlock()()
	info.ID = r.nextID()
	info.CreatedAt = time.Now().UTC()
	r.st().shipping[info.ID] = *info
	return nil
}

func (r *memRepo) GetShippingInfo(ctx context.Context, id int64) (*models.ShippingInfo, error) {
	defer r.rlock()()
	info, ok := r.st().shipping[id]
	if !ok {
		return nil, fmt.Errorf("shipping info %d: %w", id, ErrNotFound)
	}
	return &info, nil
}

func (r *memRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	defer r.wlock()()
	now := time.Now().UTC()
	order.ID = r.nextID()
	order.CreatedAt, order.UpdatedAt = now, now
	stored := *order
	stored.Items, stored.Shipping = nil, nil
	r.st().orders[order.ID] = stored
	return nil
}

func (r *memRepo) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	defer r.wlock()()
	if _, ok := r.st().orders[item.OrderID]; !ok {
		return fmt.Errorf("order %d: %w", item.OrderID, ErrNotFound)
	}
	item.ID = r.nextID()
	r.st().orderItems[item.OrderID] = append(r.st().orderItems[item.OrderID], *item)
	return nil
}

func (r *memRepo) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	defer r.rlock()()
	o, ok := r.st().orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return &o, nil
}

// GetOrderForUpdate needs no extra locking: a memory transaction already excludes all writers
func (r *memRepo) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return r.GetOrderByID(ctx, id)
}

func (r *memRepo) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	defer r.rlock()()
	out := make([]models.Order, 0)
	for _, o := range r.st().orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memRepo) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	defer r.rlock()()
	items := append([]models.OrderItem{}, r.st().orderItems[orderID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items, nil
}

func (r *memRepo) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	defer r.wlock()()
	o, ok := r.st().orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	o.OrderStatus = status
	o.UpdatedAt = time.Now().UTC()
	r.st().orders[orderID] = o
	return nil
}

func (r *memRepo) UpdateOrderPaymentStatus(ctx context.Context, orderID int64, status models.PaymentStatus) error {
	defer r.wlock()()
	o, ok := r.st().orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	o.PaymentStatus = status
	o.UpdatedAt = time.Now().UTC()
	r.st().orders[orderID] = o
	return nil
}

func (r *memRepo) CreatePayment(ctx context.Context, payment *models.Payment) error {
	defer r.wlock()()
	if _, ok := r.st().payments[payment.OrderID]; ok {
		return fmt.Errorf("payment for order %d already exists", payment.OrderID)
	}
	now := time.Now().UTC()
	payment.ID = r.nextID()
	payment.CreatedAt, payment.UpdatedAt = now, now
	r.st().payments[payment.OrderID] = *payment
	return nil
}

func (r *memRepo) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	defer r.rlock()()
	p, ok := r.st().payments[orderID]
	if !ok {
		return nil, fmt.Errorf("payment for order %d: %w", orderID, ErrNotFound)
	}
	return &p, nil
}

func (r *memRepo) UpdatePaymentStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error {
	defer r.wlock()()
	for orderID, p := range r.st().payments {
		if p.ID == paymentID {
			p.Status = status
			p.UpdatedAt = time.Now().UTC()
			r.st().payments[orderID] = p
			return nil
		}
	}
	return fmt.Errorf("payment %d: %w", paymentID, ErrNotFound)
}

func (r *memRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	defer r.wlock()()
	n.ID = r.nextID()
	n.CreatedAt = time.Now().UTC()
	r.st().notifications[n.ID] = *n
	return nil
}

func (r *memRepo) GetNotificationsByUserID(ctx context.Context, userID int64) ([]models.Notification, error) {
	defer r.rlock()()
	out := make([]models.Notification, 0)
	for _, n := range r.st().notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memRepo) MarkNotificationRead(ctx context.Context, userID, notificationID int64) error {
	defer r.wlock()()
	n, ok := r.st().notifications[notificationID]
	if !ok || n.UserID != userID {
		return fmt.Errorf("notification %d: %w", notificationID, ErrNotFound)
	}
	n.IsRead = true
	r.st().notifications[notificationID] = n
	return nil
}

func (r *memRepo) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	defer r.rlock()()
	_, ok := r.st().processed[eventID]
	return ok, nil
}

func (r *memRepo) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	defer r.wlock()()
	if _, ok := r.st().processed[eventID]; ok {
		return false, nil
	}
	r.st().processed[eventID] = models.ProcessedEvent{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now().UTC(),
	}
	return true, nil
}

func (r *memRepo) CreateCompensation(ctx context.Context, c *models.Compensation) error {
	defer r.wlock()()
	c.ID = r.nextID()
	c.CreatedAt = time.Now().UTC()
	r.st().compensations = append(r.st().compensations, *c)
	return nil
}

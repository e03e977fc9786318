package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// CartService handles cart mutations for users and anonymous sessions
type CartService struct {
	store     store.Storage
	inventory *InventoryClient
	locker    Locker
	pricing   Pricing
	lockTTL   time.Duration
	logger    *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store store.Storage, inventory *InventoryClient, locker Locker, pricing Pricing, lockTTL time.Duration) *CartService {
	return &CartService{
		store:     store,
		inventory: inventory,
		locker:    locker,
		pricing:   pricing,
		lockTTL:   lockTTL,
		logger:    util.GetLogger(),
	}
}

// CartLine is a cart item as shown to the owner
type CartLine struct {
	ProductID int64        `json:"product_id"`
	Name      string       `json:"name"`
	Quantity  int          `json:"quantity"`
	UnitPrice models.Money `json:"unit_price"`
	LineTotal models.Money `json:"line_total"`
}

// CartView is a cart with its priced summary
type CartView struct {
	CartID        int64      `json:"cart_id"`
	Lines         []CartLine `json:"items"`
	PromotionCode string     `json:"promotion_code,omitempty"`
	Summary       Quote      `json:"summary"`
}

// IsEmpty reports whether the cart has no lines
func (v *CartView) IsEmpty() bool {
	return len(v.Lines) == 0
}

// AddItem adds quantity units of a product, merging into an existing line
func (s *CartService) AddItem(ctx context.Context, owner models.CartOwner, productID int64, quantity int) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if quantity <= 0 {
		return nil, newValidationError("quantity", "must be at least 1")
	}

	var view *CartView
	err := s.withOwnerLock(ctx, owner, func(cart *models.Cart) error {
		combined := quantity
		existing, err := s.store.GetCartItem(ctx, cart.ID, productID)
		switch {
		case err == nil:
			combined = addQuantity(existing.Quantity, quantity)
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("failed to load cart item: %w", err)
		}

		if err := s.inventory.CheckStock(ctx, productID, combined); err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				util.CartOperationsTotal.WithLabelValues("add", "insufficient_stock").Inc()
			}
			return err
		}

		item := &models.CartItem{CartID: cart.ID, ProductID: productID, Quantity: combined}
		if existing != nil {
			item.UnitPrice = existing.UnitPrice
		} else if item.UnitPrice, err = s.inventory.GetPrice(ctx, productID); err != nil {
			return err
		}
		if err := s.store.UpsertCartItem(ctx, item); err != nil {
			return fmt.Errorf("failed to save cart item: %w", err)
		}

		view, err = s.view(ctx, cart)
		return err
	})
	if err != nil {
		return nil, err
	}

	util.CartOperationsTotal.WithLabelValues("add", "ok").Inc()
	s.logger.Info("Cart item added",
		zap.String("owner", owner.Key()),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity))
	return view, nil
}

// RemoveItem deletes a line; removing an absent line is a no-op
func (s *CartService) RemoveItem(ctx context.Context, owner models.CartOwner, productID int64) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	var view *CartView
	err := s.withOwnerLock(ctx, owner, func(cart *models.Cart) error {
		if err := s.store.DeleteCartItem(ctx, cart.ID, productID); err != nil {
			return fmt.Errorf("failed to delete cart item: %w", err)
		}
		var err error
		view, err = s.view(ctx, cart)
		return err
	})
	if err != nil {
		return nil, err
	}

	util.CartOperationsTotal.WithLabelValues("remove", "ok").Inc()
	return view, nil
}

// UpdateItemQuantity overwrites a line's quantity; zero or less removes the line
func (s *CartService) UpdateItemQuantity(ctx context.Context, owner models.CartOwner, productID int64, quantity int) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItemQuantity")
	defer span.End()

	var view *CartView
	err := s.withOwnerLock(ctx, owner, func(cart *models.Cart) error {
		existing, err := s.store.GetCartItem(ctx, cart.ID, productID)
		if err != nil {
			return fromStore(err)
		}

		if quantity <= 0 {
			if err := s.store.DeleteCartItem(ctx, cart.ID, productID); err != nil {
				return fmt.Errorf("failed to delete cart item: %w", err)
			}
		} else {
			if err := s.inventory.CheckStock(ctx, productID, quantity); err != nil {
				if errors.Is(err, ErrInsufficientStock) {
					util.CartOperationsTotal.WithLabelValues("update", "insufficient_stock").Inc()
				}
				return err
			}
			existing.Quantity = quantity
			if err := s.store.UpsertCartItem(ctx, existing); err != nil {
				return fmt.Errorf("failed to save cart item: %w", err)
			}
		}

		view, err = s.view(ctx, cart)
		return err
	})
	if err != nil {
		return nil, err
	}

	util.CartOperationsTotal.WithLabelValues("update", "ok").Inc()
	return view, nil
}

// GetCart returns the owner's cart, creating an empty one on first access
func (s *CartService) GetCart(ctx context.Context, owner models.CartOwner) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	if !owner.Valid() {
		return nil, newValidationError("owner", "must be exactly one of user or session")
	}

	cart, err := s.store.GetOrCreateCart(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return s.view(ctx, cart)
}

func (s *CartService) withOwnerLock(ctx context.Context, owner models.CartOwner, fn func(cart *models.Cart) error) error {
	if !owner.Valid() {
		return newValidationError("owner", "must be exactly one of user or session")
	}

	release, err := s.locker.Acquire(ctx, "cart:"+owner.Key(), s.lockTTL)
	if err != nil {
		return fmt.Errorf("cart is busy: %w", ErrConflict)
	}
	defer release()

	cart, err := s.store.GetOrCreateCart(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to load cart: %w", err)
	}
	return fn(cart)
}

func (s *CartService) view(ctx context.Context, cart *models.Cart) (*CartView, error) {
	items, err := s.store.GetCartItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	return s.buildView(ctx, cart.ID, items, models.ZeroMoney())
}

func (s *CartService) buildView(ctx context.Context, cartID int64, items []models.CartItem, discountPercent models.Money) (*CartView, error) {
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	names := make(map[int64]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}

	view := &CartView{CartID: cartID, Lines: make([]CartLine, 0, len(items))}
	subtotal := models.ZeroMoney()
	for _, item := range items {
		line := CartLine{
			ProductID: item.ProductID,
			Name:      names[item.ProductID],
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.UnitPrice.MulInt(item.Quantity),
		}
		subtotal = subtotal.Add(line.LineTotal)
		view.Lines = append(view.Lines, line)
	}
	view.Summary = s.pricing.Quote(subtotal, discountPercent)
	return view, nil
}

// addQuantity sums two line quantities, saturating at math.MaxInt instead of wrapping
func addQuantity(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

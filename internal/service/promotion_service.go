package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PromotionService looks up and validates discount codes
type PromotionService struct {
	store  store.Repository
	carts  *CartService
	now    func() time.Time
	logger *zap.Logger
}

// NewPromotionService creates a new promotion service
func NewPromotionService(store store.Repository, carts *CartService) *PromotionService {
	return &PromotionService{
		store:  store,
		carts:  carts,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// CreatePromotion registers a discount code
func (s *PromotionService) CreatePromotion(ctx context.Context, promotion *models.Promotion) error {
	promotion.DiscountCode = strings.TrimSpace(promotion.DiscountCode)
	if promotion.DiscountCode == "" {
		return newValidationError("discount_code", "is required")
	}
	pct := promotion.DiscountPercentage
	if !pct.IsPositive() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return newValidationError("discount_percentage", "must be in (0, 100]")
	}
	if err := s.store.CreatePromotion(ctx, promotion); err != nil {
		return fmt.Errorf("failed to create promotion: %w", err)
	}
	return nil
}

// Validate returns the promotion for code if it is still active at the given instant.
// A promotion is expired from its expiry instant onward.
func (s *PromotionService) Validate(ctx context.Context, code string, at time.Time) (*models.Promotion, error) {
	ctx, span := util.StartSpan(ctx, "PromotionService.Validate")
	defer span.End()

	promotion, err := s.store.GetPromotionByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%q: %w", code, ErrPromotionNotFound)
		}
		return nil, fmt.Errorf("failed to load promotion: %w", err)
	}

	if !at.Before(promotion.ExpiryDate) {
		return nil, fmt.Errorf("%q expired at %s: %w", code, promotion.ExpiryDate.Format(time.RFC3339), ErrPromotionExpired)
	}
	return promotion, nil
}

// DiscountFraction returns the validated discount as a fraction of the subtotal
func (s *PromotionService) DiscountFraction(ctx context.Context, code string, at time.Time) (decimal.Decimal, error) {
	promotion, err := s.Validate(ctx, code, at)
	if err != nil {
		return decimal.Zero, err
	}
	return promotion.DiscountPercentage.Div(decimal.NewFromInt(100)), nil
}

// ValidateNow validates code against the service clock
func (s *PromotionService) ValidateNow(ctx context.Context, code string) (*models.Promotion, error) {
	return s.Validate(ctx, code, s.now())
}

// Preview prices the owner's cart with code applied; the cart itself is not changed
func (s *PromotionService) Preview(ctx context.Context, owner models.CartOwner, code string) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "PromotionService.Preview")
	defer span.End()

	promotion, err := s.ValidateNow(ctx, code)
	if err != nil {
		util.PromotionRejectionsTotal.Inc()
		return nil, err
	}

	view, err := s.carts.GetCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	view.PromotionCode = promotion.DiscountCode
	view.Summary = s.carts.pricing.Quote(view.Summary.Subtotal, promotion.DiscountPercentage)

	s.logger.Info("Promotion previewed",
		zap.String("owner", owner.Key()),
		zap.String("code", promotion.DiscountCode))
	return view, nil
}

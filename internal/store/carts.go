package store

import (
	"context"
	"fmt"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetOrCreateCart returns the owner's cart, creating it on first access
func (q *queries) GetOrCreateCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	var (
		userID  interface{}
		session interface{}
		where   string
		key     interface{}
	)
	if owner.UserID > 0 {
		userID, where, key = owner.UserID, "user_id = $1", owner.UserID
	} else {
		session, where, key = owner.SessionToken, "session_token = $1", owner.SessionToken
	}

	_, err := q.ext.ExecContext(ctx,
		"INSERT INTO carts (user_id, session_token) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		userID, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}

	var cart models.Cart
	if err := sqlx.GetContext(ctx, q.ext, &cart, "SELECT * FROM carts WHERE "+where, key); err != nil {
		return nil, notFound(err, "cart for", owner.Key())
	}
	return &cart, nil
}

// GetCartItems retrieves all lines of a cart
func (q *queries) GetCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	items := []models.CartItem{}
	err := sqlx.SelectContext(ctx, q.ext, &items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY product_id", cartID)
	return items, err
}

// GetCartItem retrieves the line for one product
func (q *queries) GetCartItem(ctx context.Context, cartID, productID int64) (*models.CartItem, error) {
	var item models.CartItem
	err := sqlx.GetContext(ctx, q.ext, &item,
		"SELECT * FROM cart_items WHERE cart_id = $1 AND product_id = $2", cartID, productID)
	if err != nil {
		return nil, notFound(err, "cart item for product", productID)
	}
	return &item, nil
}

// UpsertCartItem writes the line, overwriting quantity and price for an existing product
func (q *queries) UpsertCartItem(ctx context.Context, item *models.CartItem) error {
	query := `
		INSERT INTO cart_items (cart_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, unit_price = EXCLUDED.unit_price, updated_at = NOW()
		RETURNING id, created_at, updated_at`

	row := q.ext.QueryRowxContext(ctx, query, item.CartID, item.ProductID, item.Quantity, item.UnitPrice)
	if err := row.Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert cart item: %w", err)
	}

	_, err := q.ext.ExecContext(ctx, "UPDATE carts SET updated_at = NOW() WHERE id = $1", item.CartID)
	return err
}

// DeleteCartItem removes a line; removing an absent line is not an error
func (q *queries) DeleteCartItem(ctx context.Context, cartID, productID int64) error {
	_, err := q.ext.ExecContext(ctx,
		"DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2", cartID, productID)
	return err
}

// ClearCart removes every line of a cart
func (q *queries) ClearCart(ctx context.Context, cartID int64) error {
	_, err := q.ext.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID)
	return err
}

// CreatePromotion inserts a discount code
func (q *queries) CreatePromotion(ctx context.Context, promotion *models.Promotion) error {
	query := `
		INSERT INTO promotions (discount_code, discount_percentage, expiry_date)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, q.ext, promotion, query,
		promotion.DiscountCode, promotion.DiscountPercentage, promotion.ExpiryDate)
}

// GetPromotionByCode retrieves a promotion by its unique code
func (q *queries) GetPromotionByCode(ctx context.Context, code string) (*models.Promotion, error) {
	var promotion models.Promotion
	err := sqlx.GetContext(ctx, q.ext, &promotion,
		"SELECT * FROM promotions WHERE discount_code = $1", code)
	if err != nil {
		return nil, notFound(err, "promotion", code)
	}
	return &promotion, nil
}

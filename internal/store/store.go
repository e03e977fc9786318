package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock is returned when a conditional stock decrement matches no row
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidQuantity is returned when a stock change is not a positive number of units
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// Repository is the set of queries usable both inside and outside a transaction
type Repository interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetProducts(ctx context.Context) ([]models.Product, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	IncrementStock(ctx context.Context, productID int64, quantity int) error

	GetOrCreateCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error)
	GetCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error)
	GetCartItem(ctx context.Context, cartID, productID int64) (*models.CartItem, error)
	UpsertCartItem(ctx context.Context, item *models.CartItem) error
	DeleteCartItem(ctx context.Context, cartID, productID int64) error
	ClearCart(ctx context.Context, cartID int64) error

	CreatePromotion(ctx context.Context, promotion *models.Promotion) error
	GetPromotionByCode(ctx context.Context, code string) (*models.Promotion, error)

	CreateShippingInfo(ctx context.Context, info *models.ShippingInfo) error
	GetShippingInfo(ctx context.Context, id int64) (*models.ShippingInfo, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error
	UpdateOrderPaymentStatus(ctx context.Context, orderID int64, status models.PaymentStatus) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error

	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotificationsByUserID(ctx context.Context, userID int64) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID int64) error

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	// MarkEventProcessed claims an event id; claimed is false when it was already recorded
	MarkEventProcessed(ctx context.Context, eventID, eventType string) (claimed bool, err error)

	CreateCompensation(ctx context.Context, c *models.Compensation) error
}

// Storage is a Repository that can also open transactions
type Storage interface {
	Repository
	// WithTx runs fn against a transaction-scoped Repository; fn's error rolls everything back
	WithTx(ctx context.Context, fn func(repo Repository) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Store is the PostgreSQL Storage
type Store struct {
	*queries
	db *sqlx.DB
}

var _ Storage = (*Store)(nil)

// queries runs against either the pool or an open transaction
type queries struct {
	ext sqlx.ExtContext
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{queries: &queries{ext: db}, db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// WithTx runs fn inside a single database transaction
func (s *Store) WithTx(ctx context.Context, fn func(repo Repository) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{ext: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func notFound(err error, what string, id interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return err
}

func expectAffected(res sql.Result, what string, id interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return nil
}

// CreateProduct inserts a catalog product
func (q *queries) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (sku, name, price, stock, seller_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, q.ext, product, query,
		product.SKU, product.Name, product.Price, product.Stock, product.SellerID)
}

// GetProductByID retrieves a product by ID
func (q *queries) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q.ext, &product, "SELECT * FROM products WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &product, nil
}

// GetProducts retrieves all products
func (q *queries) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := sqlx.SelectContext(ctx, q.ext, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// GetProductsByIDs retrieves multiple products by IDs
func (q *queries) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, err
	}
	query = q.ext.Rebind(query)

	var products []models.Product
	err = sqlx.SelectContext(ctx, q.ext, &products, query, args...)
	return products, err
}

// DecrementStock locks the product row and decrements stock only if enough remains
func (q *queries) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("product %d: requested=%d: %w", productID, quantity, ErrInvalidQuantity)
	}
	var stock int
	err := sqlx.GetContext(ctx, q.ext, &stock,
		"SELECT stock FROM products WHERE id = $1 FOR UPDATE", productID)
	if err != nil {
		return notFound(err, "product", productID)
	}

	if stock < quantity {
		return fmt.Errorf("product %d: available=%d, requested=%d: %w", productID, stock, quantity, ErrInsufficientStock)
	}

	res, err := q.ext.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
		quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("product %d: %w", productID, ErrInsufficientStock)
	}
	return nil
}

// IncrementStock restores stock for a product
func (q *queries) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("product %d: restored=%d: %w", productID, quantity, ErrInvalidQuantity)
	}
	res, err := q.ext.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
		quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	return expectAffected(res, "product", productID)
}

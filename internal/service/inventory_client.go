package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// InventoryClient is the catalog boundary: live price and stock reads, stock mutations
type InventoryClient struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client
func NewInventoryClient(repo store.Repository) *InventoryClient {
	return &InventoryClient{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

// In returns a client bound to a transaction-scoped repository
func (ic *InventoryClient) In(repo store.Repository) *InventoryClient {
	return &InventoryClient{repo: repo, logger: ic.logger}
}

// GetProduct returns the live catalog entry
func (ic *InventoryClient) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	product, err := ic.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, fromStore(err)
	}
	return product, nil
}

// GetStock returns the live stock of a product
func (ic *InventoryClient) GetStock(ctx context.Context, productID int64) (int, error) {
	product, err := ic.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	return product.Stock, nil
}

// GetPrice returns the live price of a product
func (ic *InventoryClient) GetPrice(ctx context.Context, productID int64) (models.Money, error) {
	product, err := ic.GetProduct(ctx, productID)
	if err != nil {
		return models.Money{}, err
	}
	return product.Price, nil
}

// GetProducts returns the live catalog entries for ids keyed by id; any missing id is ErrNotFound
func (ic *InventoryClient) GetProducts(ctx context.Context, ids []int64) (map[int64]*models.Product, error) {
	products, err := ic.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
	}
	return byID, nil
}

// CheckAvailable fails with a StockError when quantity exceeds live stock
func (ic *InventoryClient) CheckAvailable(product *models.Product, quantity int) error {
	if quantity <= 0 {
		return newValidationError("quantity", "must be at least 1")
	}
	if quantity > product.Stock {
		return &StockError{ProductID: product.ID, Requested: quantity, Available: product.Stock}
	}
	return nil
}

// CheckStock reads live stock and checks quantity against it
func (ic *InventoryClient) CheckStock(ctx context.Context, productID int64, quantity int) error {
	stock, err := ic.GetStock(ctx, productID)
	if err != nil {
		return err
	}
	return ic.CheckAvailable(&models.Product{ID: productID, Stock: stock}, quantity)
}

// DecrementStock commits quantity units; it never drives stock negative
func (ic *InventoryClient) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "InventoryClient.DecrementStock")
	defer span.End()

	err := ic.repo.DecrementStock(ctx, productID, quantity)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrInsufficientStock) {
		return fromStore(err)
	}

	util.StockConflictsTotal.Inc()
	stockErr := &StockError{ProductID: productID, Requested: quantity}
	if product, getErr := ic.repo.GetProductByID(ctx, productID); getErr == nil {
		stockErr.Available = product.Stock
	}
	return stockErr
}

// IncrementStock returns quantity units to the catalog
func (ic *InventoryClient) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "InventoryClient.IncrementStock")
	defer span.End()

	return fromStore(ic.repo.IncrementStock(ctx, productID, quantity))
}

// DecrementAll commits every item in ascending product order so concurrent payments lock rows consistently
func (ic *InventoryClient) DecrementAll(ctx context.Context, items []models.OrderItem) error {
	for _, item := range sortedByProduct(items) {
		if err := ic.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// IncrementAll restores every item in ascending product order
func (ic *InventoryClient) IncrementAll(ctx context.Context, items []models.OrderItem) error {
	for _, item := range sortedByProduct(items) {
		if err := ic.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("failed to restore stock for product %d: %w", item.ProductID, err)
		}
	}
	return nil
}

func sortedByProduct(items []models.OrderItem) []models.OrderItem {
	sorted := append([]models.OrderItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	return sorted
}

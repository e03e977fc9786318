package store

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, s *MemoryStore, stock int) *models.Product {
	t.Helper()
	p := &models.Product{SKU: "SKU-1", Name: "Widget", Price: models.MustMoney("10.00"), Stock: stock}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func TestMemoryStore_WithTxRollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p := seedProduct(t, s, 5)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(repo Repository) error {
		require.NoError(t, repo.DecrementStock(ctx, p.ID, 3))
		info := &models.ShippingInfo{Address: "1 Main", City: "X", Country: "US", PostalCode: "1"}
		require.NoError(t, repo.CreateShippingInfo(ctx, info))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
}

func TestMemoryStore_BeforeCommitFailureRollsBack(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p := seedProduct(t, s, 5)
	s.BeforeCommit = func() error { return errors.New("disk full") }

	err := s.WithTx(ctx, func(repo Repository) error {
		return repo.DecrementStock(ctx, p.ID, 1)
	})
	require.Error(t, err)

	got, _ := s.GetProductByID(ctx, p.ID)
	assert.Equal(t, 5, got.Stock)
}

func TestMemoryStore_DecrementStockNeverNegative(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p := seedProduct(t, s, 3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, failed := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(repo Repository) error {
				return repo.DecrementStock(ctx, p.ID, 1)
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else {
				assert.ErrorIs(t, err, ErrInsufficientStock)
				failed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	assert.Equal(t, 7, failed)
	got, _ := s.GetProductByID(ctx, p.ID)
	assert.Equal(t, 0, got.Stock)
}

func TestMemoryStore_CartPerOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a, err := s.GetOrCreateCart(ctx, models.UserOwner(1))
	require.NoError(t, err)
	b, err := s.GetOrCreateCart(ctx, models.UserOwner(1))
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	anon, err := s.GetOrCreateCart(ctx, models.SessionOwner("tok"))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, anon.ID)
	assert.Nil(t, anon.UserID)

	p := seedProduct(t, s, 10)
	item := &models.CartItem{CartID: a.ID, ProductID: p.ID, Quantity: 2, UnitPrice: p.Price}
	require.NoError(t, s.UpsertCartItem(ctx, item))
	item.Quantity = 4
	require.NoError(t, s.UpsertCartItem(ctx, item))

	items, err := s.GetCartItems(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Quantity)

	require.NoError(t, s.DeleteCartItem(ctx, a.ID, p.ID))
	require.NoError(t, s.DeleteCartItem(ctx, a.ID, p.ID))
	_, err = s.GetCartItem(ctx, a.ID, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_MarkNotificationReadScopedToOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	n := &models.Notification{UserID: 1, Message: "hi"}
	require.NoError(t, s.CreateNotification(ctx, n))

	assert.ErrorIs(t, s.MarkNotificationRead(ctx, 2, n.ID), ErrNotFound)
	require.NoError(t, s.MarkNotificationRead(ctx, 1, n.ID))

	list, err := s.GetNotificationsByUserID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsRead)
}

func TestMemoryStore_StockChangesMustBePositive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p := seedProduct(t, s, 5)

	for _, qty := range []int{0, -1, math.MinInt} {
		assert.ErrorIs(t, s.DecrementStock(ctx, p.ID, qty), ErrInvalidQuantity)
		assert.ErrorIs(t, s.IncrementStock(ctx, p.ID, qty), ErrInvalidQuantity)
	}

	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
}

func TestMemoryStore_MarkEventProcessedClaimsOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	claimed, err := s.MarkEventProcessed(ctx, "evt-1", models.EventTypeOrderPlaced)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = s.MarkEventProcessed(ctx, "evt-1", models.EventTypeOrderPlaced)
	require.NoError(t, err)
	assert.False(t, claimed)

	err = s.WithTx(ctx, func(repo Repository) error {
		claimed, err := repo.MarkEventProcessed(ctx, "evt-2", models.EventTypeOrderPaid)
		require.NoError(t, err)
		require.True(t, claimed)
		return errors.New("notification insert failed")
	})
	require.Error(t, err)

	processed, err := s.IsEventProcessed(ctx, "evt-2")
	require.NoError(t, err)
	assert.False(t, processed, "a rolled back claim frees the event for redelivery")
}

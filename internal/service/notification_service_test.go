package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placedEvent(id string) *models.OrderEvent {
	return &models.OrderEvent{
		BaseEvent:   models.BaseEvent{EventID: id, EventType: models.EventTypeOrderPlaced, Timestamp: time.Now()},
		OrderID:     7,
		UserID:      1,
		TotalAmount: models.MustMoney("26.60"),
		SellerIDs:   []int64{10, 11, 1},
	}
}

func TestNotificationService_BuyerAndSellers(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.notifications.HandleEvent(f.ctx, placedEvent("evt-1")))

	buyer, err := f.notifications.List(f.ctx, 1)
	require.NoError(t, err)
	require.Len(t, buyer, 1, "a buyer selling to themselves gets one message")
	assert.Equal(t, "Your order #7 has been placed successfully. Total amount: $26.60.", buyer[0].Message)

	for _, seller := range []int64{10, 11} {
		list, err := f.notifications.List(f.ctx, seller)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Contains(t, list[0].Message, "New order #7 received from user #1")
	}
}

func TestNotificationService_DuplicateEventIsIgnored(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.notifications.HandleEvent(f.ctx, placedEvent("evt-1")))
	require.NoError(t, f.notifications.HandleEvent(f.ctx, placedEvent("evt-1")))

	list, err := f.notifications.List(f.ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNotificationService_ConcurrentDeliveriesWriteOnce(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.notifications.HandleEvent(f.ctx, placedEvent("evt-race")))
		}()
	}
	wg.Wait()

	for _, userID := range []int64{1, 10, 11} {
		list, err := f.notifications.List(f.ctx, userID)
		require.NoError(t, err)
		assert.Len(t, list, 1, "user %d", userID)
	}
}

func TestNotificationService_FailedInsertReleasesClaim(t *testing.T) {
	f := newFixture(t)
	f.store.BeforeCommit = func() error { return errors.New("disk full") }
	require.Error(t, f.notifications.HandleEvent(f.ctx, placedEvent("evt-retry")))

	f.store.BeforeCommit = nil
	require.NoError(t, f.notifications.HandleEvent(f.ctx, placedEvent("evt-retry")))

	list, err := f.notifications.List(f.ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNotificationService_StatusChangeNotifiesBuyerOnly(t *testing.T) {
	f := newFixture(t)
	event := placedEvent("evt-2")
	event.EventType = models.EventTypeOrderStatusChanged
	event.OrderStatus = models.OrderStatusShipped

	require.NoError(t, f.notifications.HandleEvent(f.ctx, event))

	buyer, err := f.notifications.List(f.ctx, 1)
	require.NoError(t, err)
	require.Len(t, buyer, 1)
	assert.Equal(t, "Your order #7 is now SHIPPED.", buyer[0].Message)

	seller, err := f.notifications.List(f.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, seller)
}

func TestNotificationService_MarkReadIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.notifications.HandleEvent(f.ctx, placedEvent("evt-3")))

	list, err := f.notifications.List(f.ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)

	assert.ErrorIs(t, f.notifications.MarkRead(f.ctx, 10, list[0].ID), ErrNotFound)
	require.NoError(t, f.notifications.MarkRead(f.ctx, 1, list[0].ID))

	list, err = f.notifications.List(f.ctx, 1)
	require.NoError(t, err)
	assert.True(t, list[0].IsRead)
}

func TestDirectPublisher_LifecycleProducesNotifications(t *testing.T) {
	f := newFixture(t)
	f.orders.publisher = NewDirectPublisher(f.notifications)
	p := f.product(t, "10.00", 5, 99)

	order := f.placeOrder(t, 1, p, 2)
	_, err := f.orders.ProcessPayment(f.ctx, order.ID, 1, testCard())
	require.NoError(t, err)
	_, err = f.orders.Cancel(f.ctx, order.ID, 1)
	require.NoError(t, err)

	buyer, err := f.notifications.List(f.ctx, 1)
	require.NoError(t, err)
	require.Len(t, buyer, 3)
	assert.Contains(t, buyer[0].Message, "has been cancelled and payment refunded")

	seller, err := f.notifications.List(f.ctx, 99)
	require.NoError(t, err)
	assert.Len(t, seller, 3)
}

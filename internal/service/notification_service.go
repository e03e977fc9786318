package service

import (
	"context"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// NotificationService turns lifecycle events into user-facing notifications
type NotificationService struct {
	store  store.Storage
	logger *zap.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(store store.Storage) *NotificationService {
	return &NotificationService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// HandleEvent writes the buyer and seller notifications for an event exactly once per event id
func (s *NotificationService) HandleEvent(ctx context.Context, event *models.OrderEvent) error {
	ctx, span := util.StartSpan(ctx, "NotificationService.HandleEvent")
	defer span.End()

	processed, err := s.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if processed {
		s.logger.Info("Event already processed, skipping", zap.String("event_id", event.EventID))
		return nil
	}

	messages := notificationsFor(event)

	claimed := false
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		// the claim comes first so a concurrent delivery of the same event writes nothing
		var err error
		claimed, err = repo.MarkEventProcessed(ctx, event.EventID, event.EventType)
		if err != nil || !claimed {
			return err
		}
		for i := range messages {
			if err := repo.CreateNotification(ctx, &messages[i]); err != nil {
				return fmt.Errorf("failed to create notification: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !claimed {
		s.logger.Info("Event claimed by a concurrent delivery, skipping", zap.String("event_id", event.EventID))
		return nil
	}

	util.NotificationsCreatedTotal.WithLabelValues(event.EventType).Add(float64(len(messages)))
	s.logger.Info("Notifications dispatched",
		zap.String("event_type", event.EventType),
		zap.Int64("order_id", event.OrderID),
		zap.Int("count", len(messages)))
	return nil
}

func notificationsFor(event *models.OrderEvent) []models.Notification {
	var buyer, seller string

	switch event.EventType {
	case models.EventTypeOrderPlaced:
		buyer = fmt.Sprintf("Your order #%d has been placed successfully. Total amount: $%s.", event.OrderID, event.TotalAmount)
		seller = fmt.Sprintf("New order #%d received from user #%d. Please check your orders.", event.OrderID, event.UserID)
	case models.EventTypeOrderPaid:
		buyer = fmt.Sprintf("Payment for order #%d was received. Transaction: %s.", event.OrderID, event.TransactionID)
		seller = fmt.Sprintf("Order #%d has been paid and is ready to process.", event.OrderID)
	case models.EventTypeOrderStatusChanged:
		buyer = fmt.Sprintf("Your order #%d is now %s.", event.OrderID, event.OrderStatus)
	case models.EventTypeOrderCancelled:
		buyer = fmt.Sprintf("Your order #%d has been cancelled and payment refunded.", event.OrderID)
		seller = fmt.Sprintf("Order #%d from user #%d has been cancelled.", event.OrderID, event.UserID)
	default:
		return nil
	}

	out := []models.Notification{{UserID: event.UserID, Message: buyer}}
	if seller == "" {
		return out
	}
	for _, id := range event.SellerIDs {
		if id == event.UserID {
			continue
		}
		out = append(out, models.Notification{UserID: id, Message: seller})
	}
	return out
}

// List returns the user's notifications, newest first
func (s *NotificationService) List(ctx context.Context, userID int64) ([]models.Notification, error) {
	list, err := s.store.GetNotificationsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return list, nil
}

// MarkRead flags one of the user's notifications as read
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID int64) error {
	return fromStore(s.store.MarkNotificationRead(ctx, userID, notificationID))
}

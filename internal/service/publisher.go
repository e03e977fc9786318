package service

import (
	"context"

	"checkout-service/internal/models"

	"go.uber.org/zap"
)

// EventPublisher delivers committed lifecycle events
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
}

// DirectPublisher hands events straight to the notification service, for runs without Kafka
type DirectPublisher struct {
	notifications *NotificationService
	logger        *zap.Logger
}

// NewDirectPublisher creates an in-process publisher
func NewDirectPublisher(notifications *NotificationService) *DirectPublisher {
	return &DirectPublisher{
		notifications: notifications,
		logger:        notifications.logger,
	}
}

func (p *DirectPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	p.logger.Debug("Dispatching event in process",
		zap.String("event_type", event.EventType),
		zap.Int64("order_id", event.OrderID))
	return p.notifications.HandleEvent(ctx, event)
}

package worker

import (
	"context"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventSink consumes decoded order lifecycle events
type EventSink interface {
	HandleEvent(ctx context.Context, event *models.OrderEvent) error
}

type messageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// NotificationWorker turns order events from Kafka into notifications
type NotificationWorker struct {
	consumer     messageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, sink EventSink) *NotificationWorker {
	return newNotificationWorker(consumer, sink)
}

func newNotificationWorker(consumer messageSource, sink EventSink) *NotificationWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderEvent(sink.HandleEvent)

	return &NotificationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks consuming events until ctx ends
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.handle)
}

func (w *NotificationWorker) handle(ctx context.Context, msg kafka.Message) error {
	ctx, span := util.StartSpan(ctx, "NotificationWorker.handle")
	defer span.End()
	return w.eventHandler.HandleMessage(ctx, msg)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// PaymentService records payments and drives the gateway
type PaymentService struct {
	store   store.Repository
	gateway payment.Gateway
	logger  *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store store.Repository, gateway payment.Gateway) *PaymentService {
	return &PaymentService{
		store:   store,
		gateway: gateway,
		logger:  util.GetLogger(),
	}
}

// ValidateCard checks the instrument before any state is touched
func ValidateCard(card payment.Card) error {
	return validateStruct(card.Normalized(), ErrPaymentValidation)
}

// Charge captures the order total and records a PAID payment through repo.
// A non-nil payment alongside an error means the gateway captured funds but recording failed.
func (ps *PaymentService) Charge(ctx context.Context, repo store.Repository, order *models.Order, card payment.Card) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Charge")
	defer span.End()

	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	ps.logger.Info("Processing payment",
		zap.Int64("order_id", order.ID),
		zap.String("amount", order.TotalAmount.String()),
		zap.String("card_last4", card.Last4()))

	txID, err := ps.gateway.Charge(ctx, order.TotalAmount, card)
	if err != nil {
		util.PaymentFailedTotal.Inc()
		if errors.Is(err, payment.ErrDeclined) {
			ps.logger.Warn("Payment declined", zap.Int64("order_id", order.ID), zap.Error(err))
			return nil, fmt.Errorf("order %d: %v: %w", order.ID, err, ErrPaymentDeclined)
		}
		return nil, fmt.Errorf("payment gateway failed: %w", err)
	}

	record := &models.Payment{
		OrderID:       order.ID,
		Amount:        order.TotalAmount,
		Status:        models.PaymentStatusPaid,
		TransactionID: txID,
	}
	if err := repo.CreatePayment(ctx, record); err != nil {
		return record, fmt.Errorf("failed to create payment: %w", err)
	}

	util.PaymentSuccessTotal.Inc()
	ps.logger.Info("Payment succeeded",
		zap.Int64("order_id", order.ID),
		zap.String("tx_id", txID))
	return record, nil
}

// Refund reverses a PAID payment through the gateway and marks it REFUNDED through repo.
// issued reports whether the gateway refund went through, even when err is set.
func (ps *PaymentService) Refund(ctx context.Context, repo store.Repository, record *models.Payment) (issued bool, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Refund")
	defer span.End()

	if record.Status != models.PaymentStatusPaid {
		return false, fmt.Errorf("payment %d is %s: %w", record.ID, record.Status, ErrAlreadyRefunded)
	}

	if err := ps.gateway.Refund(ctx, record.TransactionID); err != nil {
		return false, fmt.Errorf("gateway refund failed: %w", err)
	}

	if err := repo.UpdatePaymentStatus(ctx, record.ID, models.PaymentStatusRefunded); err != nil {
		return true, fmt.Errorf("failed to update payment status: %w", err)
	}
	record.Status = models.PaymentStatusRefunded

	util.PaymentRefundsTotal.Inc()
	ps.logger.Info("Payment refunded",
		zap.Int64("order_id", record.OrderID),
		zap.String("tx_id", record.TransactionID))
	return true, nil
}

// Reverse refunds a captured charge whose local records were never committed
func (ps *PaymentService) Reverse(ctx context.Context, transactionID string) error {
	return ps.gateway.Refund(ctx, transactionID)
}

// GetPayment retrieves payment for an order
func (ps *PaymentService) GetPayment(ctx context.Context, orderID int64) (*models.Payment, error) {
	record, err := ps.store.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return nil, fromStore(err)
	}
	return record, nil
}

package service

import (
	"errors"
	"fmt"

	"checkout-service/internal/store"
)

// Error kinds returned by the services; callers classify with errors.Is
var (
	ErrValidation             = errors.New("validation failed")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrNotFound               = errors.New("not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrPaymentDeclined        = errors.New("payment declined")
	ErrConflict               = errors.New("conflict")
)

// Narrower kinds, each of which also matches its parent kind
var (
	ErrPaymentValidation = &kindError{msg: "invalid payment details", kind: ErrValidation}
	ErrPromotionNotFound = &kindError{msg: "promotion not found", kind: ErrNotFound}
	ErrPromotionExpired  = &kindError{msg: "promotion expired", kind: ErrValidation}
	ErrAlreadyRefunded   = &kindError{msg: "payment already refunded", kind: ErrInvalidStateTransition}
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// ValidationError names the offending input field
type ValidationError struct {
	Field  string
	Reason string
	kind   error
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, kind: ErrValidation}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	if e.kind == nil {
		return ErrValidation
	}
	return e.kind
}

// StockError carries the quantities behind an ErrInsufficientStock
type StockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// fromStore translates storage sentinels into service kinds
func fromStore(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%v: %w", err, ErrNotFound)
	case errors.Is(err, store.ErrInsufficientStock):
		return fmt.Errorf("%v: %w", err, ErrInsufficientStock)
	case errors.Is(err, store.ErrInvalidQuantity):
		return fmt.Errorf("%v: %w", err, ErrValidation)
	default:
		return err
	}
}

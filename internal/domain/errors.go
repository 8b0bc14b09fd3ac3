package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a checkout failure.
type ErrorKind string

const (
	// KindValidation is a field-scoped, user-correctable failure.
	KindValidation ErrorKind = "validation"
	// KindPayment is a gateway or order failure.
	KindPayment ErrorKind = "payment"
	// KindSystem is an unexpected infrastructure failure.
	KindSystem ErrorKind = "system"
)

// Sentinel errors for ordering mistakes in the payment flow.
var (
	ErrPaymentIntentNotInitialized = errors.New("payment intent not initialized")
	ErrMissingOrderInformation     = errors.New("missing required order information")
	ErrInvalidPaymentMethod        = errors.New("invalid payment method")
	ErrPaymentDeclined             = errors.New("payment failed")
)

// CheckoutError is the structured error recorded as the session's last error.
type CheckoutError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Field     string    `json:"field,omitempty"`
	Retryable bool      `json:"retryable"`
	Err       error     `json:"-"`
}

func (e *CheckoutError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a retryable error scoped to field.
func NewValidationError(field, message string) *CheckoutError {
	return &CheckoutError{
		Kind:      KindValidation,
		Message:   message,
		Field:     field,
		Retryable: true,
	}
}

// NewPaymentError wraps err as a retryable payment failure.
func NewPaymentError(message string, err error) *CheckoutError {
	return &CheckoutError{
		Kind:      KindPayment,
		Message:   message,
		Field:     "payment",
		Retryable: true,
		Err:       err,
	}
}

// NewSystemError wraps err as a non-retryable failure.
func NewSystemError(message string, err error) *CheckoutError {
	return &CheckoutError{
		Kind:    KindSystem,
		Message: message,
		Err:     err,
	}
}

// AsCheckoutError extracts a CheckoutError from err's chain.
func AsCheckoutError(err error) (*CheckoutError, bool) {
	var ce *CheckoutError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

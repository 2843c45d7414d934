package checkout

import (
	"errors"
	"fmt"

	"kasirinaja/terminal/internal/apperror"
)

var (
	ErrEmptyCart  = errors.New("cart is empty")
	ErrInProgress = errors.New("checkout already in progress")
	// ErrUnfinishedSale blocks a new invoice while an earlier one is still
	// pending payment or verification.
	ErrUnfinishedSale = errors.New("previous sale is unfinished: retry payment or abandon it")
	ErrInvalidState   = errors.New("action not allowed in current checkout state")
)

// CreateError is a failed invoice creation. The cart is untouched.
type CreateError struct {
	Err error
}

func (e *CreateError) Error() string {
	return "create invoice: " + e.Message()
}

func (e *CreateError) Unwrap() error {
	return e.Err
}

// Message prefers the backend's own text.
func (e *CreateError) Message() string {
	var appErr *apperror.AppError
	if errors.As(e.Err, &appErr) && appErr.ServerProvided {
		return appErr.Message
	}
	return "Failed to create invoice"
}

// VerificationError is a hosted payment the backend did not confirm. The
// payment id is what support needs to reconcile it by hand.
type VerificationError struct {
	PaymentID string
	Err       error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("Payment verification failed. Please contact support with payment ID: %s", e.PaymentID)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

var errMissingKeyID = errors.New("hosted checkout key not configured")

// HostedCheckoutError means the hosted widget could not be started. The
// pending invoice already exists on the backend.
type HostedCheckoutError struct {
	InvoiceID int64
	Err       error
}

func (e *HostedCheckoutError) Error() string {
	if errors.Is(e.Err, errMissingKeyID) {
		return "Hosted checkout key not configured. Please contact administrator."
	}
	var appErr *apperror.AppError
	if errors.As(e.Err, &appErr) && appErr.ServerProvided {
		return appErr.Message
	}
	return "Failed to initiate payment. Please try again."
}

func (e *HostedCheckoutError) Unwrap() error {
	return e.Err
}

package domain

import (
	"errors"
	"fmt"
)

// Domain errors - represent business rule violations.
var (
	// ErrInvalidRequest is returned for malformed requests.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller is not a party to the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned when an operation would duplicate an existing record.
	ErrConflict = errors.New("conflict")

	// ErrInvalidAmount is returned for negative prices or non-positive totals.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidState is returned when the lifecycle does not allow the operation.
	ErrInvalidState = errors.New("invalid state")

	// ErrPaymentNotYetProcessed is returned when completion is confirmed before payment.
	ErrPaymentNotYetProcessed = fmt.Errorf("%w: payment not yet processed", ErrInvalidState)

	// ErrPayoutDestinationMissing is returned when the provider has no linked payout account.
	ErrPayoutDestinationMissing = errors.New("payout destination missing")

	// ErrPaymentGatewayError is returned when Mercado Pago fails.
	ErrPaymentGatewayError = errors.New("payment gateway error")

	// ErrUnreconcilableWebhook is returned when a notification matches no local payment.
	ErrUnreconcilableWebhook = errors.New("unreconcilable webhook")

	// ErrWebhookValidationFailed is returned when x-signature is invalid.
	ErrWebhookValidationFailed = errors.New("webhook signature validation failed")

	// ErrConcurrentUpdate is returned when an optimistic version check loses a race.
	ErrConcurrentUpdate = errors.New("concurrent update")

	// ErrPayoutTransferFailed is returned when the transfer endpoint rejects a payout.
	ErrPayoutTransferFailed = errors.New("payout transfer failed")
)

// Error codes surfaced to API clients.
const (
	CodeValidation               = "VALIDATION_ERROR"
	CodeNotFound                 = "NOT_FOUND"
	CodeForbidden                = "FORBIDDEN"
	CodeConflict                 = "CONFLICT"
	CodeInvalidAmount            = "INVALID_AMOUNT"
	CodeInvalidState             = "INVALID_STATE"
	CodePaymentNotYetProcessed   = "PAYMENT_NOT_YET_PROCESSED"
	CodePayoutDestinationMissing = "PAYOUT_DESTINATION_MISSING"
	CodeUpstreamGateway          = "UPSTREAM_GATEWAY_ERROR"
)

// ServiceError wraps errors with additional context.
type ServiceError struct {
	Err     error
	Message string
	Code    string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(err error, message, code string) *ServiceError {
	return &ServiceError{Err: err, Message: message, Code: code}
}

// ErrorCode returns the client facing code for err.
func ErrorCode(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Code != "" {
		return svcErr.Code
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrInvalidAmount):
		return CodeInvalidAmount
	case errors.Is(err, ErrPaymentNotYetProcessed):
		return CodePaymentNotYetProcessed
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrPayoutDestinationMissing):
		return CodePayoutDestinationMissing
	case errors.Is(err, ErrPaymentGatewayError):
		return CodeUpstreamGateway
	case errors.Is(err, ErrInvalidRequest):
		return CodeValidation
	default:
		return "INTERNAL_ERROR"
	}
}

package service

import "errors"

var (
	ErrBookingNotFound      = errors.New("booking not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrListingNotFound      = errors.New("listing not found")
	ErrAlreadyPaid          = errors.New("payment already completed")
	ErrBookingConfirmed     = errors.New("booking is confirmed")
	ErrBookingHasPayment    = errors.New("booking has payment history")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrIntegrationFailure   = errors.New("payment gateway integration failure")
	ErrInitiationInProgress = errors.New("payment initiation already in progress")
	ErrPaymentAttemptClosed = errors.New("payment attempt already failed")
)

// DeclinedError carries the gateway's own explanation for refusing a checkout
type DeclinedError struct {
	Message string
}

func (e *DeclinedError) Error() string {
	return "payment declined: " + e.Message
}

// RejectionError is returned when the booking guard refuses a mutation
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"travel-service/internal/models"
	"travel-service/internal/store"

	"github.com/shopspring/decimal"
)

// PaymentLookup finds the payment attached to a booking
type PaymentLookup interface {
	GetPaymentByBookingID(ctx context.Context, bookingID int64) (*models.Payment, error)
}

// BookingChanges is a proposed booking mutation. Nil fields are left as they are.
type BookingChanges struct {
	ListingID  *int64
	StartDate  *time.Time
	EndDate    *time.Time
	TotalPrice *decimal.Decimal
	Status     *string
}

// touchesCriticalFields reports whether applying c to b changes anything the
// payment amount was computed from
func (c BookingChanges) touchesCriticalFields(b *models.Booking) bool {
	if c.ListingID != nil && *c.ListingID != b.ListingID {
		return true
	}
	if c.StartDate != nil && !c.StartDate.Equal(b.StartDate) {
		return true
	}
	if c.EndDate != nil && !c.EndDate.Equal(b.EndDate) {
		return true
	}
	if c.TotalPrice != nil && !c.TotalPrice.Equal(b.TotalPrice) {
		return true
	}
	return false
}

// BookingGuard decides whether a booking may be mutated given its payment state
type BookingGuard struct {
	payments PaymentLookup
}

func NewBookingGuard(payments PaymentLookup) *BookingGuard {
	return &BookingGuard{payments: payments}
}

// CanDelete reports whether the booking may be deleted. Confirmed bookings may not.
func (g *BookingGuard) CanDelete(booking *models.Booking) bool {
	return booking.Status != models.BookingStatusConfirmed
}

// CanPartialUpdate returns a *RejectionError when changes may not be applied.
// Callers may only cancel a booking; confirmation comes from a succeeded
// payment. Once a payment record exists its amount is fixed, so the fields the
// amount was computed from are frozen.
func (g *BookingGuard) CanPartialUpdate(ctx context.Context, booking *models.Booking, changes BookingChanges) error {
	if changes.Status != nil && *changes.Status != booking.Status {
		if err := checkStatusChange(booking.Status, *changes.Status); err != nil {
			return err
		}
	}

	if !changes.touchesCriticalFields(booking) {
		return nil
	}

	payment, err := g.payments.GetPaymentByBookingID(ctx, booking.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load payment for booking %d: %w", booking.ID, err)
	}

	if payment.Status == models.PaymentStatusSuccess {
		return &RejectionError{Reason: "Cannot change dates, listing or price of a paid booking."}
	}
	return &RejectionError{Reason: "Cannot change dates, listing or price after payment has been initiated."}
}

func checkStatusChange(from, to string) error {
	if !models.ValidBookingStatus(to) {
		return fmt.Errorf("%w: unknown booking status %q", ErrInvalidRequest, to)
	}
	switch to {
	case models.BookingStatusCancelled:
		return nil
	case models.BookingStatusConfirmed:
		return &RejectionError{Reason: "Bookings are confirmed by a successful payment."}
	}
	if from == models.BookingStatusConfirmed {
		return &RejectionError{Reason: "Cannot move a confirmed booking back to pending."}
	}
	return &RejectionError{Reason: "Cannot reopen a cancelled booking."}
}

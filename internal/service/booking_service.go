package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"travel-service/internal/models"
	"travel-service/internal/store"
	"travel-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// BookingStore is the persistence BookingService needs. *store.Store satisfies it.
type BookingStore interface {
	PaymentLookup
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBookingByID(ctx context.Context, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context, filter store.BookingFilter) ([]models.Booking, error)
	UpdateBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
	DeleteBooking(ctx context.Context, id int64) error
	GetListingByID(ctx context.Context, id int64) (*models.Listing, error)
}

// CreateBookingRequest represents a request to book a listing
type CreateBookingRequest struct {
	ListingID int64  `json:"listing_id" binding:"required"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

// UpdateBookingRequest carries a full (PUT) or partial (PATCH) booking update.
// Dates use the YYYY-MM-DD layout. TotalPrice is read-only and only checked
// against the derived total. Status may only move to cancelled.
type UpdateBookingRequest struct {
	ListingID  *int64           `json:"listing_id"`
	StartDate  *string          `json:"start_date"`
	EndDate    *string          `json:"end_date"`
	TotalPrice *decimal.Decimal `json:"total_price"`
	Status     *string          `json:"status"`
}

// BookingService handles booking business logic
type BookingService struct {
	store  BookingStore
	guard  *BookingGuard
	logger *zap.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(store BookingStore, guard *BookingGuard) *BookingService {
	return &BookingService{
		store:  store,
		guard:  guard,
		logger: util.GetLogger().Named("bookings"),
	}
}

// Create books a listing for userID. The total is nights times the nightly price.
func (s *BookingService) Create(ctx context.Context, userID int64, req *CreateBookingRequest) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.Create", attribute.Int64("listing_id", req.ListingID))
	defer span.End()

	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return nil, err
	}

	listing, err := s.getListing(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}

	total, err := totalPrice(listing, start, end)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ListingID:  listing.ID,
		UserID:     userID,
		StartDate:  start,
		EndDate:    end,
		TotalPrice: total,
		Status:     models.BookingStatusPending,
	}
	if err := s.store.CreateBooking(ctx, booking); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	util.BookingsCreatedTotal.Inc()
	s.logger.Info("Booking created",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("listing_id", booking.ListingID),
		zap.Int64("user_id", userID))

	return booking, nil
}

// List returns bookings newest first
func (s *BookingService) List(ctx context.Context, filter store.BookingFilter) ([]models.Booking, error) {
	return s.store.ListBookings(ctx, filter)
}

// Get retrieves a booking by ID
func (s *BookingService) Get(ctx context.Context, id int64) (*models.Booking, error) {
	booking, err := s.store.GetBookingByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	return booking, err
}

// Update applies req to the booking and returns the stored result. A full
// update requires listing_id, start_date and end_date.
func (s *BookingService) Update(ctx context.Context, id int64, req *UpdateBookingRequest, partial bool) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.Update", attribute.Int64("booking_id", id))
	defer span.End()

	if !partial && (req.ListingID == nil || req.StartDate == nil || req.EndDate == nil) {
		return nil, fmt.Errorf("%w: listing_id, start_date and end_date are required", ErrInvalidRequest)
	}

	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changes, err := s.resolveChanges(ctx, booking, req)
	if err != nil {
		return nil, err
	}

	if err := s.guard.CanPartialUpdate(ctx, booking, changes); err != nil {
		var rejection *RejectionError
		if errors.As(err, &rejection) {
			util.BookingMutationsRejected.WithLabelValues("update").Inc()
			s.logger.Info("Booking update rejected",
				zap.Int64("booking_id", id),
				zap.String("reason", rejection.Reason))
		}
		return nil, err
	}

	apply(booking, changes)
	if !booking.EndDate.After(booking.StartDate) {
		return nil, fmt.Errorf("%w: end_date must be after start_date", ErrInvalidRequest)
	}

	if err := s.store.UpdateBooking(ctx, booking); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	return s.Get(ctx, id)
}

// resolveChanges parses req against the current booking. The total is always
// derived from the listing price and dates; a client-supplied total_price is
// accepted only when it matches.
func (s *BookingService) resolveChanges(ctx context.Context, booking *models.Booking, req *UpdateBookingRequest) (BookingChanges, error) {
	changes := BookingChanges{
		ListingID: req.ListingID,
		Status:    req.Status,
	}

	if req.StartDate != nil {
		start, err := parseDate("start_date", *req.StartDate)
		if err != nil {
			return changes, err
		}
		changes.StartDate = &start
	}
	if req.EndDate != nil {
		end, err := parseDate("end_date", *req.EndDate)
		if err != nil {
			return changes, err
		}
		changes.EndDate = &end
	}

	expected := booking.TotalPrice
	if changes.touchesCriticalFields(booking) {
		listingID, start, end := booking.ListingID, booking.StartDate, booking.EndDate
		if changes.ListingID != nil {
			listingID = *changes.ListingID
		}
		if changes.StartDate != nil {
			start = *changes.StartDate
		}
		if changes.EndDate != nil {
			end = *changes.EndDate
		}

		listing, err := s.getListing(ctx, listingID)
		if err != nil {
			return changes, err
		}
		total, err := totalPrice(listing, start, end)
		if err != nil {
			return changes, err
		}
		changes.TotalPrice = &total
		expected = total
	}

	if req.TotalPrice != nil && !req.TotalPrice.Equal(expected) {
		return changes, fmt.Errorf("%w: total_price is derived from the listing price and dates (expected %s)",
			ErrInvalidRequest, expected.StringFixed(2))
	}
	return changes, nil
}

func apply(b *models.Booking, c BookingChanges) {
	if c.ListingID != nil {
		b.ListingID = *c.ListingID
	}
	if c.StartDate != nil {
		b.StartDate = *c.StartDate
	}
	if c.EndDate != nil {
		b.EndDate = *c.EndDate
	}
	if c.TotalPrice != nil {
		b.TotalPrice = *c.TotalPrice
	}
	if c.Status != nil {
		b.Status = *c.Status
	}
}

// Delete removes a booking that is neither confirmed nor referenced by a payment
func (s *BookingService) Delete(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "BookingService.Delete", attribute.Int64("booking_id", id))
	defer span.End()

	booking, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if !s.guard.CanDelete(booking) {
		util.BookingMutationsRejected.WithLabelValues("delete").Inc()
		return ErrBookingConfirmed
	}

	err = s.store.DeleteBooking(ctx, id)
	switch {
	case errors.Is(err, store.ErrReferenced):
		util.BookingMutationsRejected.WithLabelValues("delete").Inc()
		return ErrBookingHasPayment
	case errors.Is(err, store.ErrNotFound):
		return ErrBookingNotFound
	case err != nil:
		return fmt.Errorf("failed to delete booking: %w", err)
	}

	s.logger.Info("Booking deleted", zap.Int64("booking_id", id))
	return nil
}

// Confirm marks a booking confirmed after its payment succeeded. Confirming
// an already confirmed booking is a no-op.
func (s *BookingService) Confirm(ctx context.Context, bookingID int64) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.Confirm", attribute.Int64("booking_id", bookingID))
	defer span.End()

	booking, err := s.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingStatusConfirmed {
		return booking, nil
	}

	if err := s.store.UpdateBookingStatus(ctx, bookingID, models.BookingStatusConfirmed); err != nil {
		return nil, fmt.Errorf("failed to confirm booking: %w", err)
	}
	booking.Status = models.BookingStatusConfirmed

	util.BookingsConfirmedTotal.Inc()
	s.logger.Info("Booking confirmed", zap.Int64("booking_id", bookingID))
	return booking, nil
}

func (s *BookingService) getListing(ctx context.Context, id int64) (*models.Listing, error) {
	listing, err := s.store.GetListingByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrListingNotFound
	}
	return listing, err
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrInvalidRequest, field)
	}
	return t, nil
}

func totalPrice(listing *models.Listing, start, end time.Time) (decimal.Decimal, error) {
	if !end.After(start) {
		return decimal.Zero, fmt.Errorf("%w: end_date must be after start_date", ErrInvalidRequest)
	}
	nights := int64(end.Sub(start).Hours() / 24)
	return listing.PricePerNight.Mul(decimal.NewFromInt(nights)), nil
}

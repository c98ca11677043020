package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"travel-service/internal/models"
)

// BookingFilter narrows ListBookings. Nil fields are ignored.
type BookingFilter struct {
	ListingID *int64
	UserID    *int64
}

// CreateBooking creates a new booking
func (s *Store) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (listing_id, user_id, start_date, end_date, total_price, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, booking, query,
		booking.ListingID, booking.UserID, booking.StartDate, booking.EndDate,
		booking.TotalPrice, booking.Status)
}

// GetBookingByID retrieves a booking by ID
func (s *Store) GetBookingByID(ctx context.Context, id int64) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.GetContext(ctx, &booking, "SELECT * FROM bookings WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListBookings retrieves bookings newest first
func (s *Store) ListBookings(ctx context.Context, filter BookingFilter) ([]models.Booking, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.ListingID != nil {
		args = append(args, *filter.ListingID)
		conds = append(conds, fmt.Sprintf("listing_id = $%d", len(args)))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}

	query := "SELECT * FROM bookings"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	bookings := []models.Booking{}
	err := s.db.SelectContext(ctx, &bookings, query, args...)
	return bookings, err
}

// UpdateBooking persists every mutable booking field
func (s *Store) UpdateBooking(ctx context.Context, booking *models.Booking) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bookings
		SET listing_id = $1, start_date = $2, end_date = $3, total_price = $4, status = $5, updated_at = NOW()
		WHERE id = $6`,
		booking.ListingID, booking.StartDate, booking.EndDate, booking.TotalPrice, booking.Status, booking.ID)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("booking %d: %w", booking.ID, ErrNotFound)
	}
	return nil
}

// UpdateBookingStatus updates booking status
func (s *Store) UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2",
		status, bookingID)
	return err
}

// DeleteBooking removes a booking. Bookings with a payment record are kept.
func (s *Store) DeleteBooking(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM bookings WHERE id = $1", id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("booking %d: %w", id, ErrReferenced)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

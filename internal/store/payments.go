package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"travel-service/internal/models"

	"github.com/shopspring/decimal"
)

// GetOrCreatePayment returns the payment for a booking, inserting one with the
// given amount if none exists. The insert relies on the unique booking_id
// constraint, so concurrent callers always converge on a single row.
func (s *Store) GetOrCreatePayment(ctx context.Context, bookingID int64, amount decimal.Decimal) (*models.Payment, bool, error) {
	query := `
		INSERT INTO payments (booking_id, amount, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (booking_id) DO NOTHING
		RETURNING *`

	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, query, bookingID, amount, models.PaymentStatusUninitialized)
	if err == nil {
		return &payment, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert payment: %w", err)
	}

	existing, err := s.GetPaymentByBookingID(ctx, bookingID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetPaymentByBookingID retrieves the payment for a booking
func (s *Store) GetPaymentByBookingID(ctx context.Context, bookingID int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE booking_id = $1", bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment for booking %d: %w", bookingID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentByTransactionID retrieves a payment by its gateway reference
func (s *Store) GetPaymentByTransactionID(ctx context.Context, txRef string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE transaction_id = $1", txRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment with tx_ref %s: %w", txRef, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkPaymentPending records the gateway reference and moves the payment to
// Pending. Terminal payments are left untouched and yield ErrStateChanged.
func (s *Store) MarkPaymentPending(ctx context.Context, paymentID int64, txRef string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET transaction_id = $1, status = $2, updated_at = NOW()
		WHERE id = $3 AND status IN ($4, $5)`,
		txRef, models.PaymentStatusPending, paymentID,
		models.PaymentStatusUninitialized, models.PaymentStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark payment pending: %w", err)
	}
	return expectOneRow(res, paymentID)
}

// MarkPaymentSucceeded sets the payment to Success from any status.
// A Failed attempt closes checkout but a gateway-confirmed charge still
// settles it. Re-applying it is a no-op overwrite.
func (s *Store) MarkPaymentSucceeded(ctx context.Context, paymentID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2",
		models.PaymentStatusSuccess, paymentID)
	if err != nil {
		return fmt.Errorf("failed to mark payment succeeded: %w", err)
	}
	return expectOneRow(res, paymentID)
}

// MarkPaymentFailed sets the payment to Failed unless it already succeeded
func (s *Store) MarkPaymentFailed(ctx context.Context, paymentID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2 AND status <> $3",
		models.PaymentStatusFailed, paymentID, models.PaymentStatusSuccess)
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	return expectOneRow(res, paymentID)
}

// ListStalePendingPayments returns Pending payments not touched since olderThan
func (s *Store) ListStalePendingPayments(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments, `
		SELECT * FROM payments
		WHERE status = $1 AND transaction_id IS NOT NULL AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`,
		models.PaymentStatusPending, olderThan, limit)
	return payments, err
}

func expectOneRow(res sql.Result, paymentID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("payment %d: %w", paymentID, ErrStateChanged)
	}
	return nil
}

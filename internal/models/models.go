package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the authenticated identity a booking belongs to
type User struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Listing represents a bookable property
type Listing struct {
	ID            int64           `db:"id" json:"id"`
	HostID        int64           `db:"host_id" json:"host_id"`
	Name          string          `db:"name" json:"name"`
	Description   string          `db:"description" json:"description"`
	Location      string          `db:"location" json:"location"`
	PricePerNight decimal.Decimal `db:"price_per_night" json:"price_per_night"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Review is a guest's rating of a listing
type Review struct {
	ID        int64     `db:"id" json:"id"`
	ListingID int64     `db:"listing_id" json:"listing_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   string    `db:"comment" json:"comment"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Booking represents a reservation of a listing by a user
type Booking struct {
	ID         int64           `db:"id" json:"id"`
	ListingID  int64           `db:"listing_id" json:"listing_id"`
	UserID     int64           `db:"user_id" json:"user_id"`
	StartDate  time.Time       `db:"start_date" json:"start_date"`
	EndDate    time.Time       `db:"end_date" json:"end_date"`
	TotalPrice decimal.Decimal `db:"total_price" json:"total_price"`
	Status     string          `db:"status" json:"status"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// Payment tracks the gateway lifecycle of one booking's payment attempt.
// TransactionID stays nil until the gateway accepts the initialization.
type Payment struct {
	ID            int64           `db:"id" json:"id"`
	BookingID     int64           `db:"booking_id" json:"booking_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	TransactionID *string         `db:"transaction_id" json:"transaction_id,omitempty"`
	Status        string          `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Booking statuses
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
)

// Payment statuses
const (
	PaymentStatusUninitialized = "Uninitialized"
	PaymentStatusPending       = "Pending"
	PaymentStatusSuccess       = "Success"
	PaymentStatusFailed        = "Failed"
)

// IsTerminal reports whether no further transition is allowed for this attempt
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusSuccess || p.Status == PaymentStatusFailed
}

// TxRef returns the gateway reference or "" when the payment was never initialized
func (p *Payment) TxRef() string {
	if p.TransactionID == nil {
		return ""
	}
	return *p.TransactionID
}

// ValidBookingStatus reports whether s is a known booking status
func ValidBookingStatus(s string) bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return true
	}
	return false
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

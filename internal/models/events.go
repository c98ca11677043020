package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypePaymentInitiated = "PAYMENT_INITIATED"
	EventTypePaymentSucceeded = "PAYMENT_SUCCEEDED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentInitiatedEvent published when the gateway accepts an initialization
type PaymentInitiatedEvent struct {
	BaseEvent
	BookingID   int64           `json:"booking_id"`
	PaymentID   int64           `json:"payment_id"`
	Amount      decimal.Decimal `json:"amount"`
	TxRef       string          `json:"tx_ref"`
	CheckoutURL string          `json:"checkout_url"`
}

// PaymentSucceededEvent published on the first transition to Success
type PaymentSucceededEvent struct {
	BaseEvent
	BookingID int64           `json:"booking_id"`
	PaymentID int64           `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	TxRef     string          `json:"tx_ref"`
}

// PaymentFailedEvent published when verification reports a failed transaction
type PaymentFailedEvent struct {
	BaseEvent
	BookingID int64  `json:"booking_id"`
	PaymentID int64  `json:"payment_id"`
	TxRef     string `json:"tx_ref"`
	Reason    string `json:"reason"`
}

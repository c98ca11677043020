package worker

import (
	"context"
	"errors"
	"fmt"

	"travel-service/internal/broker"
	"travel-service/internal/models"
	"travel-service/internal/receipt"
	"travel-service/internal/service"
	"travel-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MessageSource delivers broker messages to a handler. *broker.Consumer satisfies it.
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// EventStore is what BookingWorker reads and records. *store.Store satisfies it.
type EventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetListingByID(ctx context.Context, id int64) (*models.Listing, error)
}

// BookingConfirmer confirms a paid booking. *service.BookingService satisfies it.
type BookingConfirmer interface {
	Confirm(ctx context.Context, bookingID int64) (*models.Booking, error)
}

// ReceiptWriter renders a receipt. *receipt.Generator satisfies it.
type ReceiptWriter interface {
	Generate(d receipt.Data) (string, error)
}

// BookingWorker reacts to payment events: a succeeded payment confirms its
// booking and produces a receipt.
type BookingWorker struct {
	source       MessageSource
	eventHandler *broker.EventHandler
	store        EventStore
	bookings     BookingConfirmer
	receipts     ReceiptWriter
	logger       *zap.Logger
}

// NewBookingWorker creates a new booking worker. receipts may be nil.
func NewBookingWorker(
	source MessageSource,
	store EventStore,
	bookings BookingConfirmer,
	receipts ReceiptWriter,
) *BookingWorker {
	w := &BookingWorker{
		source:       source,
		eventHandler: broker.NewEventHandler(),
		store:        store,
		bookings:     bookings,
		receipts:     receipts,
		logger:       util.GetLogger().Named("booking-worker"),
	}

	w.eventHandler.OnPaymentSucceeded(w.HandlePaymentSucceeded)
	w.eventHandler.OnPaymentFailed(w.HandlePaymentFailed)
	return w
}

// Start consumes until ctx is cancelled
func (w *BookingWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting booking worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *BookingWorker) Stop() error {
	w.logger.Info("Stopping booking worker")
	return w.source.Close()
}

// HandlePaymentSucceeded confirms the booking. Returning an error leaves the
// message uncommitted so it is redelivered.
func (w *BookingWorker) HandlePaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error {
	ctx, span := util.StartSpan(ctx, "BookingWorker.HandlePaymentSucceeded",
		attribute.Int64("booking_id", event.BookingID))
	defer span.End()

	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	booking, err := w.bookings.Confirm(ctx, event.BookingID)
	if errors.Is(err, service.ErrBookingNotFound) {
		w.logger.Warn("Payment succeeded for unknown booking", zap.Int64("booking_id", event.BookingID))
		w.markProcessed(ctx, event.EventID, event.EventType)
		return nil
	}
	if err != nil {
		util.SpanError(span, err)
		return fmt.Errorf("failed to confirm booking %d: %w", event.BookingID, err)
	}

	if w.receipts != nil {
		w.writeReceipt(ctx, booking, event)
	}

	w.markProcessed(ctx, event.EventID, event.EventType)
	return nil
}

func (w *BookingWorker) writeReceipt(ctx context.Context, booking *models.Booking, event *models.PaymentSucceededEvent) {
	data := receipt.Data{
		TxRef:     event.TxRef,
		BookingID: booking.ID,
		StartDate: booking.StartDate,
		EndDate:   booking.EndDate,
		Amount:    event.Amount,
		PaidAt:    event.Timestamp,
	}

	if user, err := w.store.GetUserByID(ctx, booking.UserID); err == nil {
		data.GuestName = user.FirstName + " " + user.LastName
		data.GuestEmail = user.Email
	} else {
		w.logger.Warn("Receipt without guest details", zap.Int64("booking_id", booking.ID), zap.Error(err))
	}
	if listing, err := w.store.GetListingByID(ctx, booking.ListingID); err == nil {
		data.ListingName = listing.Name
	}

	if _, err := w.receipts.Generate(data); err != nil {
		w.logger.Error("Failed to generate receipt",
			zap.Int64("booking_id", booking.ID),
			zap.String("tx_ref", event.TxRef),
			zap.Error(err))
	}
}

// HandlePaymentFailed records the failure. The booking stays pending.
func (w *BookingWorker) HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		return nil
	}

	w.logger.Warn("Payment failed for booking",
		zap.Int64("booking_id", event.BookingID),
		zap.String("tx_ref", event.TxRef),
		zap.String("reason", event.Reason))

	w.markProcessed(ctx, event.EventID, event.EventType)
	return nil
}

func (w *BookingWorker) markProcessed(ctx context.Context, eventID, eventType string) {
	if err := w.store.MarkEventProcessed(ctx, eventID, eventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.String("event_id", eventID), zap.Error(err))
	}
}

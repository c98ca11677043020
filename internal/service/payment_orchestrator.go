package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"travel-service/internal/gateway"
	"travel-service/internal/models"
	"travel-service/internal/store"
	"travel-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	paymentCurrency    = "ETB"
	paymentTitle       = "Travel Booking Payment"
	initiatedMessage   = "Payment initiated"
	guardTTLMargin     = 5 * time.Second
	defaultGuardTTL    = 20 * time.Second
	releaseGuardBudget = 2 * time.Second
)

// PaymentStore is the persistence the orchestrator needs. *store.Store satisfies it.
type PaymentStore interface {
	GetBookingByID(ctx context.Context, id int64) (*models.Booking, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetOrCreatePayment(ctx context.Context, bookingID int64, amount decimal.Decimal) (*models.Payment, bool, error)
	GetPaymentByTransactionID(ctx context.Context, txRef string) (*models.Payment, error)
	MarkPaymentPending(ctx context.Context, paymentID int64, txRef string) error
	MarkPaymentSucceeded(ctx context.Context, paymentID int64) error
	MarkPaymentFailed(ctx context.Context, paymentID int64) error
}

// PaymentGateway is the external checkout provider. *gateway.Client satisfies it.
type PaymentGateway interface {
	Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error)
	Verify(ctx context.Context, txRef string) (*gateway.VerifyResult, error)
}

// InitiationGuard marks a booking's initiation as in flight. *redisclient.Client satisfies it.
type InitiationGuard interface {
	AcquireGuard(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseGuard(ctx context.Context, key, token string) (bool, error)
}

// PaymentEventPublisher emits payment lifecycle events. *broker.EventPublisher satisfies it.
type PaymentEventPublisher interface {
	PublishPaymentInitiated(ctx context.Context, event *models.PaymentInitiatedEvent) error
	PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// OrchestratorConfig holds the per-deployment checkout settings
type OrchestratorConfig struct {
	CallbackURL string
	ReturnURL   string
	// GatewayTimeout sizes the in-flight guard so it outlives one gateway call
	GatewayTimeout time.Duration
}

// InitiateResult is what the caller needs to redirect the payer
type InitiateResult struct {
	CheckoutURL string `json:"checkout_url"`
	TxRef       string `json:"tx_ref"`
	Message     string `json:"message"`
}

// VerifyResult reports whether the gateway confirmed the transaction.
// Pending is set while the payer is still at checkout; nothing was settled.
type VerifyResult struct {
	Verified bool
	Pending  bool
	Status   string
}

// PaymentOrchestrator drives a booking's payment through
// Uninitialized -> Pending -> Success | Failed.
type PaymentOrchestrator struct {
	store     PaymentStore
	gateway   PaymentGateway
	guard     InitiationGuard
	publisher PaymentEventPublisher
	cfg       OrchestratorConfig
	logger    *zap.Logger
}

// NewPaymentOrchestrator creates a new payment orchestrator. guard may be nil,
// in which case concurrent initiations are only bounded by the database.
func NewPaymentOrchestrator(
	store PaymentStore,
	gw PaymentGateway,
	guard InitiationGuard,
	publisher PaymentEventPublisher,
	cfg OrchestratorConfig,
) *PaymentOrchestrator {
	return &PaymentOrchestrator{
		store:     store,
		gateway:   gw,
		guard:     guard,
		publisher: publisher,
		cfg:       cfg,
		logger:    util.GetLogger().Named("payments"),
	}
}

// Initiate opens a gateway checkout for the booking's payment
func (o *PaymentOrchestrator) Initiate(ctx context.Context, bookingID int64) (*InitiateResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentOrchestrator.Initiate", attribute.Int64("booking_id", bookingID))
	defer span.End()

	result, err := o.initiate(ctx, bookingID)
	util.PaymentInitiationsTotal.WithLabelValues(initiateOutcome(err)).Inc()
	util.SpanError(span, err)
	return result, err
}

func (o *PaymentOrchestrator) initiate(ctx context.Context, bookingID int64) (*InitiateResult, error) {
	booking, err := o.store.GetBookingByID(ctx, bookingID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}

	payment, created, err := o.store.GetOrCreatePayment(ctx, booking.ID, booking.TotalPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create payment: %w", err)
	}
	if created {
		util.PaymentsCreatedTotal.Inc()
		o.logger.Info("Payment record created",
			zap.Int64("booking_id", booking.ID),
			zap.Int64("payment_id", payment.ID),
			zap.String("amount", payment.Amount.StringFixed(2)))
	}

	switch payment.Status {
	case models.PaymentStatusSuccess:
		return nil, ErrAlreadyPaid
	case models.PaymentStatusFailed:
		return nil, ErrPaymentAttemptClosed
	}

	release, err := o.acquireGuard(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	user, err := o.store.GetUserByID(ctx, booking.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payer for booking %d: %w", booking.ID, err)
	}

	txRef := payment.TxRef()
	if txRef == "" {
		txRef = fmt.Sprintf("booking-%d-%d", booking.ID, payment.ID)
	}

	checkout, err := o.gateway.Initialize(ctx, gateway.InitializeRequest{
		Amount:      payment.Amount,
		Currency:    paymentCurrency,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		TxRef:       txRef,
		CallbackURL: o.cfg.CallbackURL,
		ReturnURL:   o.cfg.ReturnURL,
		Title:       paymentTitle,
		Description: fmt.Sprintf("Payment for booking %d", booking.ID),
	})
	if err != nil {
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) && gwErr.Kind == gateway.KindDeclined {
			o.logger.Warn("Gateway declined payment initiation",
				zap.Int64("booking_id", booking.ID),
				zap.String("message", gwErr.Message))
			return nil, &DeclinedError{Message: gwErr.Message}
		}
		return nil, fmt.Errorf("%w: %v", ErrIntegrationFailure, err)
	}

	if err := o.store.MarkPaymentPending(ctx, payment.ID, txRef); err != nil {
		if errors.Is(err, store.ErrStateChanged) {
			// A concurrent verify settled the payment while we were at the gateway.
			return nil, o.settledError(ctx, booking)
		}
		return nil, fmt.Errorf("failed to mark payment pending: %w", err)
	}

	o.logger.Info("Payment initiated",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("payment_id", payment.ID),
		zap.String("tx_ref", txRef))

	event := &models.PaymentInitiatedEvent{
		BaseEvent:   newBaseEvent(models.EventTypePaymentInitiated),
		BookingID:   booking.ID,
		PaymentID:   payment.ID,
		Amount:      payment.Amount,
		TxRef:       txRef,
		CheckoutURL: checkout.CheckoutURL,
	}
	if err := o.publisher.PublishPaymentInitiated(ctx, event); err != nil {
		o.logger.Error("Failed to publish PaymentInitiated event", zap.Error(err))
	}

	return &InitiateResult{
		CheckoutURL: checkout.CheckoutURL,
		TxRef:       txRef,
		Message:     initiatedMessage,
	}, nil
}

// acquireGuard returns a release func. Guard backend errors are logged and the
// initiation proceeds unguarded.
func (o *PaymentOrchestrator) acquireGuard(ctx context.Context, bookingID int64) (func(), error) {
	noop := func() {}
	if o.guard == nil {
		return noop, nil
	}

	key := initiationGuardKey(bookingID)
	token, ok, err := o.guard.AcquireGuard(ctx, key, o.guardTTL())
	if err != nil {
		o.logger.Warn("Initiation guard unavailable, proceeding without it",
			zap.Int64("booking_id", bookingID),
			zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, ErrInitiationInProgress
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseGuardBudget)
		defer cancel()
		if _, err := o.guard.ReleaseGuard(ctx, key, token); err != nil {
			o.logger.Warn("Failed to release initiation guard",
				zap.Int64("booking_id", bookingID),
				zap.Error(err))
		}
	}, nil
}

func (o *PaymentOrchestrator) settledError(ctx context.Context, booking *models.Booking) error {
	payment, _, err := o.store.GetOrCreatePayment(ctx, booking.ID, booking.TotalPrice)
	if err != nil {
		return fmt.Errorf("failed to reload payment: %w", err)
	}
	if payment.Status == models.PaymentStatusFailed {
		return ErrPaymentAttemptClosed
	}
	return ErrAlreadyPaid
}

func (o *PaymentOrchestrator) guardTTL() time.Duration {
	if o.cfg.GatewayTimeout <= 0 {
		return defaultGuardTTL
	}
	return o.cfg.GatewayTimeout + guardTTLMargin
}

func initiationGuardKey(bookingID int64) string {
	return fmt.Sprintf("payment-initiation:booking:%d", bookingID)
}

// Verify asks the gateway for txRef's outcome and settles the local payment.
// A gateway that does not confirm the transaction yields Verified=false, not an error.
func (o *PaymentOrchestrator) Verify(ctx context.Context, txRef string) (*VerifyResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentOrchestrator.Verify", attribute.String("tx_ref", txRef))
	defer span.End()

	result, err := o.verify(ctx, txRef)
	util.PaymentVerificationsTotal.WithLabelValues(verifyOutcome(result, err)).Inc()
	util.SpanError(span, err)
	return result, err
}

func (o *PaymentOrchestrator) verify(ctx context.Context, txRef string) (*VerifyResult, error) {
	if txRef == "" {
		return nil, fmt.Errorf("%w: tx_ref is required", ErrInvalidRequest)
	}

	res, err := o.gateway.Verify(ctx, txRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrationFailure, err)
	}

	if res.Pending {
		o.logger.Info("Transaction still pending at gateway", zap.String("tx_ref", txRef))
		return &VerifyResult{Pending: true, Status: res.Status}, nil
	}

	if !res.Succeeded {
		o.recordFailure(ctx, txRef, res)
		return &VerifyResult{Verified: false, Status: res.Status}, nil
	}

	payment, err := o.store.GetPaymentByTransactionID(ctx, txRef)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}

	firstTransition := payment.Status != models.PaymentStatusSuccess
	if err := o.store.MarkPaymentSucceeded(ctx, payment.ID); err != nil {
		return nil, fmt.Errorf("failed to mark payment succeeded: %w", err)
	}

	if firstTransition {
		o.logger.Info("Payment succeeded",
			zap.Int64("booking_id", payment.BookingID),
			zap.Int64("payment_id", payment.ID),
			zap.String("tx_ref", txRef))

		event := &models.PaymentSucceededEvent{
			BaseEvent: newBaseEvent(models.EventTypePaymentSucceeded),
			BookingID: payment.BookingID,
			PaymentID: payment.ID,
			Amount:    payment.Amount,
			TxRef:     txRef,
		}
		if err := o.publisher.PublishPaymentSucceeded(ctx, event); err != nil {
			o.logger.Error("Failed to publish PaymentSucceeded event", zap.Error(err))
		}
	}

	return &VerifyResult{Verified: true, Status: models.PaymentStatusSuccess}, nil
}

// recordFailure marks the payment Failed if it exists and has not succeeded.
// Unknown references are ignored.
func (o *PaymentOrchestrator) recordFailure(ctx context.Context, txRef string, res *gateway.VerifyResult) {
	payment, err := o.store.GetPaymentByTransactionID(ctx, txRef)
	if errors.Is(err, store.ErrNotFound) {
		o.logger.Info("Verification failed for unknown tx_ref", zap.String("tx_ref", txRef))
		return
	}
	if err != nil {
		o.logger.Error("Failed to load payment after failed verification",
			zap.String("tx_ref", txRef),
			zap.Error(err))
		return
	}

	switch payment.Status {
	case models.PaymentStatusSuccess, models.PaymentStatusFailed:
		return
	}

	if err := o.store.MarkPaymentFailed(ctx, payment.ID); err != nil {
		o.logger.Warn("Failed to mark payment failed",
			zap.Int64("payment_id", payment.ID),
			zap.Error(err))
		return
	}

	o.logger.Warn("Payment failed",
		zap.Int64("booking_id", payment.BookingID),
		zap.Int64("payment_id", payment.ID),
		zap.String("tx_ref", txRef),
		zap.String("gateway_status", res.Status))

	reason := res.Message
	if reason == "" {
		reason = res.Status
	}
	event := &models.PaymentFailedEvent{
		BaseEvent: newBaseEvent(models.EventTypePaymentFailed),
		BookingID: payment.BookingID,
		PaymentID: payment.ID,
		TxRef:     txRef,
		Reason:    reason,
	}
	if err := o.publisher.PublishPaymentFailed(ctx, event); err != nil {
		o.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func initiateOutcome(err error) string {
	var declined *DeclinedError
	switch {
	case err == nil:
		return "initiated"
	case errors.As(err, &declined):
		return "declined"
	case errors.Is(err, ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, ErrInitiationInProgress):
		return "in_progress"
	case errors.Is(err, ErrIntegrationFailure):
		return "integration_failure"
	}
	return "error"
}

func verifyOutcome(res *VerifyResult, err error) string {
	switch {
	case err == nil && res.Verified:
		return "verified"
	case err == nil && res.Pending:
		return "pending"
	case err == nil:
		return "not_verified"
	case errors.Is(err, ErrIntegrationFailure):
		return "integration_failure"
	}
	return "error"
}

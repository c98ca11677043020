package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"travel-service/internal/broker"
	"travel-service/internal/models"
	"travel-service/internal/receipt"
	"travel-service/internal/service"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEventStore struct {
	mu        sync.Mutex
	processed map[string]string
	checkErr  error
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{processed: map[string]string{}}
}

func (s *fakeEventStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkErr != nil {
		return false, s.checkErr
	}
	_, ok := s.processed[eventID]
	return ok, nil
}

func (s *fakeEventStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[eventID] = eventType
	return nil
}

func (s *fakeEventStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return &models.User{ID: id, Email: "sara@example.com", FirstName: "Sara", LastName: "Tesfaye"}, nil
}

func (s *fakeEventStore) GetListingByID(ctx context.Context, id int64) (*models.Listing, error) {
	return &models.Listing{ID: id, Name: "Lake Tana Lodge"}, nil
}

type fakeConfirmer struct {
	confirmFunc func(ctx context.Context, bookingID int64) (*models.Booking, error)
	calls       []int64
}

func (c *fakeConfirmer) Confirm(ctx context.Context, bookingID int64) (*models.Booking, error) {
	c.calls = append(c.calls, bookingID)
	if c.confirmFunc != nil {
		return c.confirmFunc(ctx, bookingID)
	}
	return &models.Booking{ID: bookingID, ListingID: 5, UserID: 10, Status: models.BookingStatusConfirmed}, nil
}

type fakeReceipts struct {
	generated []receipt.Data
	err       error
}

func (r *fakeReceipts) Generate(d receipt.Data) (string, error) {
	r.generated = append(r.generated, d)
	return "receipts/receipt_" + d.TxRef + ".pdf", r.err
}

type fakeSource struct {
	messages []kafka.Message
	handled  []error
	closed   bool
}

func (s *fakeSource) StartConsuming(ctx context.Context, handler broker.MessageHandler) error {
	for _, msg := range s.messages {
		s.handled = append(s.handled, handler(ctx, msg))
	}
	return nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

func succeededEvent(id string) *models.PaymentSucceededEvent {
	return &models.PaymentSucceededEvent{
		BaseEvent: models.BaseEvent{EventID: id, EventType: models.EventTypePaymentSucceeded, Timestamp: time.Now()},
		BookingID: 1,
		PaymentID: 7,
		Amount:    decimal.NewFromInt(500),
		TxRef:     "booking-1-7",
	}
}

func TestHandlePaymentSucceededConfirmsOnce(t *testing.T) {
	st := newFakeEventStore()
	confirmer := &fakeConfirmer{}
	receipts := &fakeReceipts{}
	w := NewBookingWorker(&fakeSource{}, st, confirmer, receipts)
	ctx := context.Background()

	require.NoError(t, w.HandlePaymentSucceeded(ctx, succeededEvent("evt-1")))
	require.NoError(t, w.HandlePaymentSucceeded(ctx, succeededEvent("evt-1")))

	assert.Equal(t, []int64{1}, confirmer.calls)
	require.Len(t, receipts.generated, 1)
	r := receipts.generated[0]
	assert.Equal(t, "booking-1-7", r.TxRef)
	assert.Equal(t, "Sara Tesfaye", r.GuestName)
	assert.Equal(t, "Lake Tana Lodge", r.ListingName)
	assert.True(t, r.Amount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, models.EventTypePaymentSucceeded, st.processed["evt-1"])
}

func TestHandlePaymentSucceededRetriesOnConfirmError(t *testing.T) {
	st := newFakeEventStore()
	confirmer := &fakeConfirmer{confirmFunc: func(ctx context.Context, id int64) (*models.Booking, error) {
		return nil, errors.New("connection reset")
	}}
	w := NewBookingWorker(&fakeSource{}, st, confirmer, nil)

	err := w.HandlePaymentSucceeded(context.Background(), succeededEvent("evt-2"))
	assert.Error(t, err)
	assert.NotContains(t, st.processed, "evt-2")
}

func TestHandlePaymentSucceededUnknownBooking(t *testing.T) {
	st := newFakeEventStore()
	confirmer := &fakeConfirmer{confirmFunc: func(ctx context.Context, id int64) (*models.Booking, error) {
		return nil, service.ErrBookingNotFound
	}}
	w := NewBookingWorker(&fakeSource{}, st, confirmer, nil)

	require.NoError(t, w.HandlePaymentSucceeded(context.Background(), succeededEvent("evt-3")))
	assert.Contains(t, st.processed, "evt-3")
}

func TestReceiptFailureDoesNotBlockConfirmation(t *testing.T) {
	st := newFakeEventStore()
	w := NewBookingWorker(&fakeSource{}, st, &fakeConfirmer{}, &fakeReceipts{err: errors.New("disk full")})

	require.NoError(t, w.HandlePaymentSucceeded(context.Background(), succeededEvent("evt-4")))
	assert.Contains(t, st.processed, "evt-4")
}

func TestHandlePaymentFailedMarksProcessed(t *testing.T) {
	st := newFakeEventStore()
	confirmer := &fakeConfirmer{}
	w := NewBookingWorker(&fakeSource{}, st, confirmer, nil)

	err := w.HandlePaymentFailed(context.Background(), &models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-5", EventType: models.EventTypePaymentFailed},
		BookingID: 1,
		Reason:    "declined",
	})
	require.NoError(t, err)
	assert.Contains(t, st.processed, "evt-5")
	assert.Empty(t, confirmer.calls)
}

func TestWorkerRoutesMessagesFromSource(t *testing.T) {
	value, err := json.Marshal(succeededEvent("evt-6"))
	require.NoError(t, err)

	source := &fakeSource{messages: []kafka.Message{{Value: value}}}
	confirmer := &fakeConfirmer{}
	w := NewBookingWorker(source, newFakeEventStore(), confirmer, nil)

	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, []error{nil}, source.handled)
	assert.Equal(t, []int64{1}, confirmer.calls)

	require.NoError(t, w.Stop())
	assert.True(t, source.closed)
}

type fakeLister struct {
	payments  []models.Payment
	err       error
	olderThan time.Time
}

func (l *fakeLister) ListStalePendingPayments(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error) {
	l.olderThan = olderThan
	return l.payments, l.err
}

type fakeVerifier struct {
	verifyFunc func(ctx context.Context, txRef string) (*service.VerifyResult, error)
	refs       []string
}

func (v *fakeVerifier) Verify(ctx context.Context, txRef string) (*service.VerifyResult, error) {
	v.refs = append(v.refs, txRef)
	return v.verifyFunc(ctx, txRef)
}

func pendingPayment(id int64) models.Payment {
	ref := fmt.Sprintf("booking-%d-%d", id, id)
	return models.Payment{ID: id, BookingID: id, Status: models.PaymentStatusPending, TransactionID: &ref}
}

func TestReconcileRunOnce(t *testing.T) {
	lister := &fakeLister{payments: []models.Payment{
		pendingPayment(1),
		pendingPayment(2),
		{ID: 3, Status: models.PaymentStatusPending},
		pendingPayment(4),
	}}
	verifier := &fakeVerifier{verifyFunc: func(ctx context.Context, txRef string) (*service.VerifyResult, error) {
		switch txRef {
		case "booking-1-1":
			return &service.VerifyResult{Verified: true}, nil
		case "booking-2-2":
			return nil, service.ErrIntegrationFailure
		}
		return &service.VerifyResult{Verified: false}, nil
	}}

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewReconcileWorker(lister, verifier, time.Minute, 10*time.Minute)
	w.now = func() time.Time { return now }

	checked, verified := w.RunOnce(context.Background())
	assert.Equal(t, 3, checked)
	assert.Equal(t, 1, verified)
	assert.Equal(t, []string{"booking-1-1", "booking-2-2", "booking-4-4"}, verifier.refs)
	assert.Equal(t, now.Add(-10*time.Minute), lister.olderThan)
}

func TestReconcilePendingAtGatewayIsNotVerified(t *testing.T) {
	lister := &fakeLister{payments: []models.Payment{pendingPayment(1)}}
	verifier := &fakeVerifier{verifyFunc: func(ctx context.Context, txRef string) (*service.VerifyResult, error) {
		return &service.VerifyResult{Pending: true, Status: "pending"}, nil
	}}
	w := NewReconcileWorker(lister, verifier, time.Minute, 10*time.Minute)

	checked, verified := w.RunOnce(context.Background())
	assert.Equal(t, 1, checked)
	assert.Zero(t, verified)
	assert.Equal(t, []string{"booking-1-1"}, verifier.refs)
}

func TestReconcileListError(t *testing.T) {
	w := NewReconcileWorker(&fakeLister{err: errors.New("db down")}, &fakeVerifier{}, time.Minute, time.Minute)

	checked, verified := w.RunOnce(context.Background())
	assert.Zero(t, checked)
	assert.Zero(t, verified)
}

func TestReconcileDisabledWithZeroInterval(t *testing.T) {
	w := NewReconcileWorker(&fakeLister{}, &fakeVerifier{}, 0, time.Minute)

	assert.NoError(t, w.Start(context.Background()))
}

func TestReconcileStopsOnCancel(t *testing.T) {
	w := NewReconcileWorker(&fakeLister{}, &fakeVerifier{}, 10*time.Millisecond, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, w.Start(ctx), context.DeadlineExceeded)
}

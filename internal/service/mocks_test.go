package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"travel-service/internal/gateway"
	"travel-service/internal/models"
	"travel-service/internal/store"

	"github.com/shopspring/decimal"
)

// memStore is an in-memory stand-in for *store.Store with the same
// guarded-transition semantics.
type memStore struct {
	mu       sync.Mutex
	bookings map[int64]*models.Booking
	users    map[int64]*models.User
	listings map[int64]*models.Listing
	reviews  map[int64][]models.Review
	payments map[int64]*models.Payment // keyed by booking id
	nextID   int64

	createCalls int
	deleteErr   error
}

func newMemStore() *memStore {
	return &memStore{
		bookings: map[int64]*models.Booking{},
		users:    map[int64]*models.User{},
		listings: map[int64]*models.Listing{},
		reviews:  map[int64][]models.Review{},
		payments: map[int64]*models.Payment{},
		nextID:   100,
	}
}

func (m *memStore) addBooking(b models.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = &b
}

func (m *memStore) payment(bookingID int64) *models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[bookingID]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (m *memStore) GetBookingByID(ctx context.Context, id int64) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %d: %w", id, store.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return u, nil
}

func (m *memStore) GetOrCreatePayment(ctx context.Context, bookingID int64, amount decimal.Decimal) (*models.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[bookingID]; ok {
		cp := *p
		return &cp, false, nil
	}
	m.createCalls++
	m.nextID++
	p := &models.Payment{
		ID:        m.nextID,
		BookingID: bookingID,
		Amount:    amount,
		Status:    models.PaymentStatusUninitialized,
	}
	m.payments[bookingID] = p
	cp := *p
	return &cp, true, nil
}

func (m *memStore) GetPaymentByBookingID(ctx context.Context, bookingID int64) (*models.Payment, error) {
	if p := m.payment(bookingID); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("payment for booking %d: %w", bookingID, store.ErrNotFound)
}

func (m *memStore) GetPaymentByTransactionID(ctx context.Context, txRef string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.TxRef() == txRef {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("payment with tx_ref %s: %w", txRef, store.ErrNotFound)
}

func (m *memStore) byID(id int64) *models.Payment {
	for _, p := range m.payments {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (m *memStore) MarkPaymentPending(ctx context.Context, paymentID int64, txRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.byID(paymentID)
	if p == nil || p.IsTerminal() {
		return fmt.Errorf("payment %d: %w", paymentID, store.ErrStateChanged)
	}
	ref := txRef
	p.TransactionID = &ref
	p.Status = models.PaymentStatusPending
	return nil
}

// MarkPaymentSucceeded accepts any prior status, Failed included
func (m *memStore) MarkPaymentSucceeded(ctx context.Context, paymentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.byID(paymentID)
	if p == nil {
		return fmt.Errorf("payment %d: %w", paymentID, store.ErrStateChanged)
	}
	p.Status = models.PaymentStatusSuccess
	return nil
}

func (m *memStore) MarkPaymentFailed(ctx context.Context, paymentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.byID(paymentID)
	if p == nil || p.Status == models.PaymentStatusSuccess {
		return fmt.Errorf("payment %d: %w", paymentID, store.ErrStateChanged)
	}
	p.Status = models.PaymentStatusFailed
	return nil
}

func (m *memStore) CreateBooking(ctx context.Context, booking *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	booking.ID = m.nextID
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	cp := *booking
	m.bookings[booking.ID] = &cp
	return nil
}

func (m *memStore) ListBookings(ctx context.Context, filter store.BookingFilter) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Booking{}
	for _, b := range m.bookings {
		if filter.ListingID != nil && b.ListingID != *filter.ListingID {
			continue
		}
		if filter.UserID != nil && b.UserID != *filter.UserID {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (m *memStore) UpdateBooking(ctx context.Context, booking *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[booking.ID]; !ok {
		return fmt.Errorf("booking %d: %w", booking.ID, store.ErrNotFound)
	}
	cp := *booking
	cp.UpdatedAt = time.Now()
	m.bookings[booking.ID] = &cp
	return nil
}

func (m *memStore) UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bookings[bookingID]; ok {
		b.Status = status
	}
	return nil
}

func (m *memStore) DeleteBooking(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.bookings[id]; !ok {
		return fmt.Errorf("booking %d: %w", id, store.ErrNotFound)
	}
	if _, ok := m.payments[id]; ok {
		return fmt.Errorf("booking %d: %w", id, store.ErrReferenced)
	}
	delete(m.bookings, id)
	return nil
}

func (m *memStore) ListListings(ctx context.Context, maxPrice *decimal.Decimal) ([]models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Listing{}
	for _, l := range m.listings {
		if maxPrice != nil && l.PricePerNight.GreaterThan(*maxPrice) {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

func (m *memStore) GetListingByID(ctx context.Context, id int64) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, fmt.Errorf("listing %d: %w", id, store.ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) GetReviewsByListingID(ctx context.Context, listingID int64) ([]models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Review{}, m.reviews[listingID]...), nil
}

type mockGateway struct {
	mu             sync.Mutex
	initializeFunc func(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error)
	verifyFunc     func(ctx context.Context, txRef string) (*gateway.VerifyResult, error)
	initRequests   []gateway.InitializeRequest
	verifyCalls    int
}

func (g *mockGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	g.mu.Lock()
	g.initRequests = append(g.initRequests, req)
	g.mu.Unlock()
	if g.initializeFunc == nil {
		return &gateway.InitializeResult{CheckoutURL: "https://checkout.example/" + req.TxRef, TxRef: req.TxRef}, nil
	}
	return g.initializeFunc(ctx, req)
}

func (g *mockGateway) Verify(ctx context.Context, txRef string) (*gateway.VerifyResult, error) {
	g.mu.Lock()
	g.verifyCalls++
	g.mu.Unlock()
	if g.verifyFunc == nil {
		return &gateway.VerifyResult{Succeeded: true, Status: "success", TxRef: txRef}, nil
	}
	return g.verifyFunc(ctx, txRef)
}

func (g *mockGateway) initCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.initRequests)
}

type mockGuard struct {
	mu       sync.Mutex
	held     map[string]string
	err      error
	released []string
}

func newMockGuard() *mockGuard {
	return &mockGuard{held: map[string]string{}}
}

func (g *mockGuard) AcquireGuard(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", false, g.err
	}
	if _, ok := g.held[key]; ok {
		return "", false, nil
	}
	token := fmt.Sprintf("token-%d", len(g.held)+len(g.released))
	g.held[key] = token
	return token, true, nil
}

func (g *mockGuard) ReleaseGuard(ctx context.Context, key, token string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[key] != token {
		return false, nil
	}
	delete(g.held, key)
	g.released = append(g.released, key)
	return true, nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	initiated []*models.PaymentInitiatedEvent
	succeeded []*models.PaymentSucceededEvent
	failed    []*models.PaymentFailedEvent
	err       error
}

func (p *recordingPublisher) PublishPaymentInitiated(ctx context.Context, e *models.PaymentInitiatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initiated = append(p.initiated, e)
	return p.err
}

func (p *recordingPublisher) PublishPaymentSucceeded(ctx context.Context, e *models.PaymentSucceededEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.succeeded = append(p.succeeded, e)
	return p.err
}

func (p *recordingPublisher) PublishPaymentFailed(ctx context.Context, e *models.PaymentFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, e)
	return p.err
}

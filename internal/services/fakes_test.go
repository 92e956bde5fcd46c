package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/models"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var errStoreDown = errors.New("store unavailable")

// fakeBookingStore mirrors the repository's conditional-update semantics in memory
type fakeBookingStore struct {
	mu       sync.Mutex
	bookings map[string]*models.Booking
	nextID   int

	createErr  error
	getErr     error
	setErr     error
	confirmErr error
	failErr    error

	creates int
	sets    int
}

func newFakeBookingStore() *fakeBookingStore {
	return &fakeBookingStore{bookings: make(map[string]*models.Booking)}
}

func (f *fakeBookingStore) put(b *models.Booking) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *b
	f.bookings[b.ID] = &c
}

func (f *fakeBookingStore) get(id string) *models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil
	}
	c := *b
	return &c
}

func (f *fakeBookingStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bookings)
}

func (f *fakeBookingStore) Create(_ context.Context, booking *models.Booking) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("bk_%04d", f.nextID)
	c := *booking
	c.ID = id
	f.bookings[id] = &c
	return id, nil
}

func (f *fakeBookingStore) GetByID(_ context.Context, id string) (*models.Booking, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.get(id), nil
}

func (f *fakeBookingStore) SetByID(_ context.Context, booking *models.Booking) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, exists := f.bookings[booking.ID]; exists {
		return false, nil
	}
	c := *booking
	f.bookings[booking.ID] = &c
	return true, nil
}

func (f *fakeBookingStore) MarkConfirmed(_ context.Context, id string, completion models.PaymentCompletion) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return false, f.confirmErr
	}
	b, ok := f.bookings[id]
	if !ok {
		return false, models.ErrBookingStateConflict
	}
	switch b.Status {
	case models.BookingStatusPending, models.BookingStatusFailed, models.BookingStatusConfirmed:
	default:
		return false, models.ErrBookingStateConflict
	}

	first := b.PaymentReconciledAt == nil
	b.Status = models.BookingStatusConfirmed
	b.PaymentStatus = models.PaymentStatusCompleted
	b.PaymentID = &completion.PaymentID
	b.PaymentOrderID = &completion.OrderID
	b.PaymentSignature = &completion.Signature
	b.ErrorDescription = nil
	if first {
		at := completion.CompletedAt
		b.PaymentReconciledAt = &at
	}
	b.UpdatedAt = completion.CompletedAt
	return first, nil
}

func (f *fakeBookingStore) MarkFailed(_ context.Context, id string, description string, failedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	b, ok := f.bookings[id]
	if !ok || b.Status != models.BookingStatusPending {
		return models.ErrBookingStateConflict
	}
	b.Status = models.BookingStatusFailed
	b.PaymentStatus = models.PaymentStatusFailed
	b.ErrorDescription = &description
	b.UpdatedAt = failedAt
	return nil
}

type fakePaymentRecords struct {
	mu      sync.Mutex
	records map[string]*models.PaymentRecord
	err     error
}

func newFakePaymentRecords() *fakePaymentRecords {
	return &fakePaymentRecords{records: make(map[string]*models.PaymentRecord)}
}

func (f *fakePaymentRecords) RecordOnce(_ context.Context, record *models.PaymentRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if _, exists := f.records[record.PaymentID]; exists {
		return false, nil
	}
	f.records[record.PaymentID] = record
	return true, nil
}

type fakeAuditLog struct {
	mu      sync.Mutex
	entries []*models.PaymentAudit
}

func (f *fakeAuditLog) Log(_ context.Context, audit *models.PaymentAudit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, audit)
	return nil
}

func (f *fakeAuditLog) HasEvent(_ context.Context, bookingID string, eventType models.PaymentEventType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.EventType == eventType && e.BookingID != nil && *e.BookingID == bookingID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAuditLog) GetByBookingID(_ context.Context, bookingID string) ([]*models.PaymentAudit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PaymentAudit
	for _, e := range f.entries {
		if e.BookingID != nil && *e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditLog) events() []models.PaymentEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PaymentEventType, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.EventType)
	}
	return out
}

func pendingBooking(id string) *models.Booking {
	now := time.Date(2030, 3, 1, 9, 0, 0, 0, time.UTC)
	return &models.Booking{
		ID:             id,
		Status:         models.BookingStatusPending,
		PaymentStatus:  models.PaymentStatusPending,
		UserID:         "user-1",
		UserEmail:      "asha@example.com",
		UserName:       "Asha Rao",
		ContactNumber:  "9876543210",
		TrekID:         "trek-1",
		TrekName:       "Hampta Pass",
		Participants:   2,
		StartDate:      "2030-05-10",
		Amount:         90000,
		OriginalAmount: 100000,
		TotalAmount:    90000,
		Currency:       "INR",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trailpass/trek-booking-backend/internal/models"
	"github.com/trailpass/trek-booking-backend/pkg/email"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) messages() []email.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]email.Message(nil), m.sent...)
}

func TestNotificationService_SendBookingConfirmation(t *testing.T) {
	mailer := &fakeMailer{}
	service := NewNotificationService(mailer, "https://trailpass.example/tickets/", newTestLogger())

	booking := pendingBooking("bk_1")
	booking.Status = models.BookingStatusConfirmed
	paymentID := "pay_1"
	booking.PaymentID = &paymentID

	location := "Manali"
	trek := &models.Trek{ID: "trek-1", Name: "Hampta Pass Trek", Location: &location, DurationDays: 5}

	require.NoError(t, service.SendBookingConfirmation(context.Background(), booking, trek))

	sent := mailer.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "asha@example.com", sent[0].To)
	assert.Equal(t, "Booking confirmed: Hampta Pass", sent[0].Subject)
	assert.Contains(t, sent[0].HTML, "bk_1")
	assert.Contains(t, sent[0].Text, "₹900.00")
	assert.NotContains(t, sent[0].Text, "review")
	assert.Contains(t, sent[0].Text, "Location: Manali")
	require.Len(t, sent[0].Attachments, 1)
	assert.Equal(t, "ticket-bk_1.pdf", sent[0].Attachments[0].Filename)
	assert.Equal(t, "%PDF-", string(sent[0].Attachments[0].Content[:5]))
}

func TestNotificationService_RecoveredBookingMentionsReview(t *testing.T) {
	mailer := &fakeMailer{}
	service := NewNotificationService(mailer, "", newTestLogger())

	booking := pendingBooking("payment_pay_9")
	booking.Status = models.BookingStatusRecovered

	require.NoError(t, service.SendBookingConfirmation(context.Background(), booking, nil))
	sent := mailer.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "review")
}

func TestNotificationService_SkipsWithoutEmail(t *testing.T) {
	mailer := &fakeMailer{}
	service := NewNotificationService(mailer, "", newTestLogger())

	booking := pendingBooking("bk_2")
	booking.UserEmail = ""

	assert.NoError(t, service.SendBookingConfirmation(context.Background(), booking, nil))
	assert.NoError(t, service.SendPaymentFailure(context.Background(), booking, nil, "card declined"))
	assert.NoError(t, service.SendBookingConfirmation(context.Background(), nil, nil))
	assert.Empty(t, mailer.messages())
}

func TestNotificationService_SendPaymentFailure(t *testing.T) {
	mailer := &fakeMailer{}
	service := NewNotificationService(mailer, "", newTestLogger())

	require.NoError(t, service.SendPaymentFailure(context.Background(), pendingBooking("bk_3"), nil, ""))

	sent := mailer.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Payment failed: Hampta Pass", sent[0].Subject)
	assert.Contains(t, sent[0].Text, "payment failed")
	assert.Empty(t, sent[0].Attachments)
}

func TestNotificationService_TrekNameFromStore(t *testing.T) {
	mailer := &fakeMailer{}
	service := NewNotificationService(mailer, "", newTestLogger())

	booking := pendingBooking("bk_5")
	booking.TrekName = ""

	require.NoError(t, service.SendPaymentFailure(context.Background(), booking, &models.Trek{ID: "trek-1", Name: "Kedarkantha"}, "card declined"))
	require.NoError(t, service.SendPaymentFailure(context.Background(), booking, nil, "card declined"))

	sent := mailer.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "Payment failed: Kedarkantha", sent[0].Subject)
	assert.Equal(t, "Payment failed: your trek", sent[1].Subject)
}

func TestNotificationService_MailerError(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("provider down")}
	service := NewNotificationService(mailer, "", newTestLogger())

	err := service.SendBookingConfirmation(context.Background(), pendingBooking("bk_4"), nil)
	assert.ErrorContains(t, err, "provider down")
}

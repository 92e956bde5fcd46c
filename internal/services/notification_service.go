package services

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/models"
	"github.com/trailpass/trek-booking-backend/pkg/email"
)

// NotificationService sends booking e-mails through the configured mailer
type NotificationService struct {
	mailer    email.Mailer
	ticketURL string
	logger    *logrus.Logger
}

// NewNotificationService creates a new NotificationService.
// ticketURL is the base the e-ticket QR code points at; the booking id is appended.
func NewNotificationService(mailer email.Mailer, ticketURL string, logger *logrus.Logger) *NotificationService {
	return &NotificationService{
		mailer:    mailer,
		ticketURL: strings.TrimRight(ticketURL, "/"),
		logger:    logger,
	}
}

// SendBookingConfirmation mails the traveller a confirmation with a PDF e-ticket.
// trek may be nil; the booking's own trek name is used then.
// Bookings without an e-mail address are skipped.
func (s *NotificationService) SendBookingConfirmation(ctx context.Context, booking *models.Booking, trek *models.Trek) error {
	if booking == nil || strings.TrimSpace(booking.UserEmail) == "" {
		s.logger.WithField("booking_id", bookingIDOf(booking)).Debug("No e-mail on booking, skipping confirmation")
		return nil
	}

	details := trekDetailsOf(booking, trek)
	ticket := email.TicketData{
		BookingID:     booking.ID,
		TrekName:      details.name,
		Location:      details.location,
		DurationDays:  details.durationDays,
		TravellerName: booking.UserName,
		Email:         booking.UserEmail,
		Contact:       booking.ContactNumber,
		StartDate:     booking.StartDate,
		Participants:  booking.Participants,
		Amount:        booking.Amount,
		Currency:      booking.Currency,
	}
	if booking.PaymentID != nil {
		ticket.PaymentID = *booking.PaymentID
	}
	if s.ticketURL != "" {
		ticket.VerifyURL = s.ticketURL + "/" + booking.ID
	}

	msg := email.Message{
		To:      booking.UserEmail,
		Subject: fmt.Sprintf("Booking confirmed: %s", details.name),
		HTML:    confirmationHTML(booking, details),
		Text:    confirmationText(booking, details),
	}

	pdf, err := email.RenderTicketPDF(ticket)
	if err != nil {
		// the confirmation still goes out without the attachment
		s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to render e-ticket")
	} else {
		msg.Attachments = append(msg.Attachments, email.Attachment{
			Filename:    fmt.Sprintf("ticket-%s.pdf", booking.ID),
			ContentType: "application/pdf",
			Content:     pdf,
		})
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send booking confirmation: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"status":     booking.Status,
	}).Info("Booking confirmation sent")
	return nil
}

// SendPaymentFailure tells the traveller their payment did not go through
func (s *NotificationService) SendPaymentFailure(ctx context.Context, booking *models.Booking, trek *models.Trek, reason string) error {
	if booking == nil || strings.TrimSpace(booking.UserEmail) == "" {
		return nil
	}
	if reason == "" {
		reason = "payment failed"
	}

	name := orFallback(booking.UserName, "traveller")
	trekName := trekDetailsOf(booking, trek).name
	msg := email.Message{
		To:      booking.UserEmail,
		Subject: fmt.Sprintf("Payment failed: %s", trekName),
		HTML: fmt.Sprintf(
			"<p>Hi %s,</p><p>Your payment for <strong>%s</strong> did not go through: %s.</p>"+
				"<p>No booking has been confirmed. You can try again from the trek page.</p>"+
				"<p>Reference: %s</p>",
			html.EscapeString(name), html.EscapeString(trekName), html.EscapeString(reason), html.EscapeString(booking.ID),
		),
		Text: fmt.Sprintf(
			"Hi %s,\n\nYour payment for %s did not go through: %s.\nNo booking has been confirmed.\n\nReference: %s\n",
			name, trekName, reason, booking.ID,
		),
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send payment failure notice: %w", err)
	}
	return nil
}

// trekDetails is the trek as shown to the traveller
type trekDetails struct {
	name         string
	location     string
	durationDays int
}

// trekDetailsOf takes the name stored on the booking and the rest from the live trek
func trekDetailsOf(b *models.Booking, trek *models.Trek) trekDetails {
	d := trekDetails{name: b.TrekName}
	if trek != nil {
		if strings.TrimSpace(d.name) == "" {
			d.name = trek.Name
		}
		if trek.Location != nil {
			d.location = *trek.Location
		}
		d.durationDays = trek.DurationDays
	}
	d.name = orFallback(d.name, "your trek")
	return d
}

func confirmationHTML(b *models.Booking, trek trekDetails) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<p>Hi %s,</p>", html.EscapeString(orFallback(b.UserName, "traveller"))))
	sb.WriteString(fmt.Sprintf("<p>Your booking for <strong>%s</strong> is confirmed.</p>", html.EscapeString(trek.name)))
	sb.WriteString("<table>")
	sb.WriteString(fmt.Sprintf("<tr><td>Booking ID</td><td>%s</td></tr>", html.EscapeString(b.ID)))
	if trek.location != "" {
		sb.WriteString(fmt.Sprintf("<tr><td>Location</td><td>%s</td></tr>", html.EscapeString(trek.location)))
	}
	if b.StartDate != "" {
		sb.WriteString(fmt.Sprintf("<tr><td>Start date</td><td>%s</td></tr>", html.EscapeString(b.StartDate)))
	}
	if b.Participants > 0 {
		sb.WriteString(fmt.Sprintf("<tr><td>Participants</td><td>%d</td></tr>", b.Participants))
	}
	sb.WriteString(fmt.Sprintf("<tr><td>Amount paid</td><td>%s</td></tr>", html.EscapeString(FormatAmount(b.Amount))))
	sb.WriteString("</table>")
	if b.Status != models.BookingStatusConfirmed {
		sb.WriteString("<p>Our team will review the details of this booking and contact you if anything is missing.</p>")
	}
	sb.WriteString("<p>Your e-ticket is attached.</p>")
	return sb.String()
}

func confirmationText(b *models.Booking, trek trekDetails) string {
	text := fmt.Sprintf(
		"Hi %s,\n\nYour booking for %s is confirmed.\nBooking ID: %s\nAmount paid: %s\n",
		orFallback(b.UserName, "traveller"), trek.name, b.ID, FormatAmount(b.Amount),
	)
	if trek.location != "" {
		text += fmt.Sprintf("Location: %s\n", trek.location)
	}
	if b.Status != models.BookingStatusConfirmed {
		text += "\nOur team will review the details of this booking and contact you if anything is missing.\n"
	}
	return text
}

func orFallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func bookingIDOf(b *models.Booking) string {
	if b == nil {
		return ""
	}
	return b.ID
}

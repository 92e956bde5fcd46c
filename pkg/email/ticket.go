package email

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/phpdave11/gofpdf"
	qrcode "github.com/skip2/go-qrcode"
)

// TicketData is what gets printed on a booking e-ticket
type TicketData struct {
	BookingID     string
	TrekName      string
	TravellerName string
	Email         string
	Contact       string
	StartDate     string
	Participants  int
	Location      string
	DurationDays  int

	// Amount is in the smallest currency unit
	Amount    int64
	Currency  string
	PaymentID string

	// VerifyURL is encoded in the QR code; the booking id is used when empty
	VerifyURL string
}

// RenderTicketPDF draws a single-page e-ticket with a QR code
func RenderTicketPDF(t TicketData) ([]byte, error) {
	if strings.TrimSpace(t.BookingID) == "" {
		return nil, fmt.Errorf("booking id is required for a ticket")
	}

	qrContent := t.VerifyURL
	if qrContent == "" {
		qrContent = t.BookingID
	}
	qrPNG, err := qrcode.Encode(qrContent, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ticket qr code: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Trek E-Ticket", false)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 20)
	pdf.Cell(0, 12, "TREK E-TICKET")
	pdf.Ln(16)

	pdf.SetDrawColor(220, 220, 220)
	pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
	pdf.Ln(6)

	top := pdf.GetY()
	pdf.SetFillColor(245, 245, 245)
	pdf.Rect(15, top, 120, 76, "F")

	pdf.SetXY(20, top+6)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "BOOKING")
	pdf.Ln(9)

	pdf.SetFont("Helvetica", "", 11)
	lines := []string{
		"Booking ID   : " + t.BookingID,
		"Trek         : " + orDash(t.TrekName),
		"Location     : " + orDash(t.Location),
		"Start date   : " + orDash(t.StartDate),
		"Duration     : " + formatTicketDuration(t.DurationDays),
		fmt.Sprintf("Participants : %d", t.Participants),
		"Amount paid  : " + formatTicketAmount(t.Amount, t.Currency),
		"Payment ID   : " + orDash(t.PaymentID),
	}
	for _, line := range lines {
		pdf.SetX(20)
		pdf.Cell(0, 7, tr(line))
		pdf.Ln(7)
	}

	pdf.RegisterImageOptionsReader("ticket-qr", gofpdf.ImageOptions{ImageType: "png"}, bytes.NewReader(qrPNG))
	pdf.ImageOptions("ticket-qr", 145, top+4, 48, 0, false, gofpdf.ImageOptions{ImageType: "png"}, 0, "")

	pdf.SetY(top + 84)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "TRAVELLER")
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 11)
	for _, line := range []string{
		"Name    : " + orDash(t.TravellerName),
		"Email   : " + orDash(t.Email),
		"Contact : " + orDash(t.Contact),
	} {
		pdf.Cell(0, 7, tr(line))
		pdf.Ln(7)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Carry this ticket and a photo ID to the trek base. Scan the QR code at check-in.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render ticket pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTicketAmount(amount int64, currency string) string {
	if currency == "" {
		currency = "INR"
	}
	return fmt.Sprintf("%s %d.%02d", currency, amount/100, amount%100)
}

func formatTicketDuration(days int) string {
	switch {
	case days <= 0:
		return "-"
	case days == 1:
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

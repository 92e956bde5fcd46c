package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/config"
	"github.com/trailpass/trek-booking-backend/internal/database"
	"github.com/trailpass/trek-booking-backend/internal/services"
)

// Prints a booking and its payment audit trail.
func main() {
	var bookingID string
	flag.StringVar(&bookingID, "booking", "", "booking id to inspect")
	flag.Parse()
	if bookingID == "" {
		log.Fatal("-booking is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	logger := logrus.New()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	booking, err := database.NewBookingRepository(db).GetByID(ctx, bookingID)
	if err != nil {
		log.Fatalf("Failed to load booking: %v", err)
	}
	if booking == nil {
		fmt.Printf("No booking %s\n", bookingID)
	} else {
		fmt.Printf("Booking %s | %s | %s | %s\n", booking.ID, booking.Status, booking.TrekName,
			services.FormatAmount(booking.Amount))
	}

	events, err := database.NewPaymentAuditRepository(db, logger).GetByBookingID(ctx, bookingID)
	if err != nil {
		log.Fatalf("Failed to load payment events: %v", err)
	}

	fmt.Printf("\n%d payment event(s)\n", len(events))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tSOURCE\tRESULT\tERROR")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.EventType, e.EventSource, deref(e.ResultStatus), deref(e.ErrorMessage))
	}
	w.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/config"
	"github.com/trailpass/trek-booking-backend/internal/database"
	"github.com/trailpass/trek-booking-backend/internal/services"
)

// Runs the booking review sweep once, outside the server's schedule.
func main() {
	var dbURLFlag string
	var staleAfter, lookback time.Duration
	var batch int
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.DurationVar(&staleAfter, "stale-after", 2*time.Hour, "age after which a pending booking is flagged")
	flag.DurationVar(&lookback, "lookback", 7*24*time.Hour, "how far back to look for recovered and fallback bookings")
	flag.IntVar(&batch, "batch", 200, "maximum bookings examined per category")
	flag.Parse()

	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cron := services.NewCronService(
		database.NewBookingRepository(db),
		database.NewPaymentAuditRepository(db, logger),
		config.CronConfig{
			PendingStaleAfter: staleAfter,
			ReviewLookback:    lookback,
			ReviewBatchSize:   batch,
		},
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	summary, err := cron.RunReviewNow(ctx)
	if err != nil {
		log.Fatalf("review failed: %v", err)
	}

	fmt.Printf("Reconciled outside the normal path: %d\n", summary.Reconciled)
	fmt.Printf("Stale pending: %d\n", summary.StalePending)
	fmt.Printf("Newly flagged for review: %d\n", summary.Flagged)
}

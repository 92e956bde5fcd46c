package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/config"
	"github.com/trailpass/trek-booking-backend/internal/models"
)

// ReviewBookingStore lists bookings that need a human look
type ReviewBookingStore interface {
	ListByStatusSince(ctx context.Context, statuses []models.BookingStatus, since time.Time, limit int) ([]*models.Booking, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*models.Booking, error)
}

// ReviewAuditLog records and checks review flags
type ReviewAuditLog interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
	HasEvent(ctx context.Context, bookingID string, eventType models.PaymentEventType) (bool, error)
}

// ReviewSummary is the outcome of one review sweep
type ReviewSummary struct {
	Reconciled   int // recovered and fallback bookings seen
	StalePending int // pending bookings older than the stale threshold
	Flagged      int // bookings flagged for the first time
}

const reviewJobTimeout = 2 * time.Minute

// CronService manages scheduled background jobs
type CronService struct {
	cron     *cron.Cron
	bookings ReviewBookingStore
	audit    ReviewAuditLog
	config   config.CronConfig
	logger   *logrus.Logger
	now      func() time.Time
}

// NewCronService creates a new CronService
func NewCronService(bookings ReviewBookingStore, audit ReviewAuditLog, cfg config.CronConfig, logger *logrus.Logger) *CronService {
	if cfg.ReviewSchedule == "" {
		// every 15 minutes
		cfg.ReviewSchedule = "0 */15 * * * *"
	}
	if cfg.PendingStaleAfter <= 0 {
		cfg.PendingStaleAfter = 2 * time.Hour
	}
	if cfg.ReviewLookback <= 0 {
		cfg.ReviewLookback = 7 * 24 * time.Hour
	}
	if cfg.ReviewBatchSize <= 0 {
		cfg.ReviewBatchSize = 200
	}

	return &CronService{
		cron:     cron.New(cron.WithSeconds()),
		bookings: bookings,
		audit:    audit,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// second minute hour day month weekday
	if _, err := s.cron.AddFunc(s.config.ReviewSchedule, s.reviewBookingsJob); err != nil {
		return fmt.Errorf("failed to schedule booking review job: %w", err)
	}
	s.logger.WithField("schedule", s.config.ReviewSchedule).Info("Scheduled: booking reconciliation review")

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops all cron jobs and waits for a running job to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) reviewBookingsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), reviewJobTimeout)
	defer cancel()

	start := time.Now()
	summary, err := s.ReviewBookings(ctx)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Booking review failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"reconciled":    summary.Reconciled,
		"stale_pending": summary.StalePending,
		"flagged":       summary.Flagged,
		"duration":      time.Since(start).String(),
	}).Info("[CRON] Booking review finished")
}

// ReviewBookings flags recovered, fallback and stale pending bookings for follow-up.
// Each booking is flagged at most once.
func (s *CronService) ReviewBookings(ctx context.Context) (ReviewSummary, error) {
	var summary ReviewSummary
	now := s.now()

	reconciled, err := s.bookings.ListByStatusSince(ctx,
		[]models.BookingStatus{models.BookingStatusRecovered, models.BookingStatusFallback},
		now.Add(-s.config.ReviewLookback), s.config.ReviewBatchSize)
	if err != nil {
		return summary, fmt.Errorf("failed to list reconciled bookings: %w", err)
	}
	summary.Reconciled = len(reconciled)

	stale, err := s.bookings.ListStalePending(ctx, now.Add(-s.config.PendingStaleAfter), s.config.ReviewBatchSize)
	if err != nil {
		return summary, fmt.Errorf("failed to list stale pending bookings: %w", err)
	}
	summary.StalePending = len(stale)

	for _, b := range reconciled {
		reason := "payment reconciled without a matching pending booking"
		if b.Status == models.BookingStatusFallback {
			reason = "payment captured but booking store failed during reconciliation"
		}
		if s.flag(ctx, b, reason) {
			summary.Flagged++
		}
	}
	for _, b := range stale {
		if s.flag(ctx, b, fmt.Sprintf("pending for more than %s without a gateway callback", s.config.PendingStaleAfter)) {
			summary.Flagged++
		}
	}

	return summary, nil
}

func (s *CronService) flag(ctx context.Context, b *models.Booking, reason string) bool {
	log := s.logger.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"status":     b.Status,
	})

	flagged, err := s.audit.HasEvent(ctx, b.ID, models.PaymentEventReviewFlagged)
	if err != nil {
		log.WithError(err).Warn("Failed to check review flag")
		return false
	}
	if flagged {
		return false
	}

	audit := models.NewPaymentAudit(models.PaymentEventReviewFlagged, models.PaymentSourceSystem).
		SetBooking(b.ID).
		SetAmount(b.Amount, b.Currency).
		SetTransition(b.Status, b.Status).
		SetError(reason, "needs_review")
	if b.PaymentID != nil {
		audit.SetPayment(*b.PaymentID, "")
	}
	if err := s.audit.Log(ctx, audit); err != nil {
		log.WithError(err).Warn("Failed to record review flag")
		return false
	}

	log.WithField("reason", reason).Warn("Booking flagged for review")
	return true
}

// RunReviewNow runs the review sweep immediately
func (s *CronService) RunReviewNow(ctx context.Context) (ReviewSummary, error) {
	s.logger.Info("[MANUAL] Running booking review now...")
	return s.ReviewBookings(ctx)
}

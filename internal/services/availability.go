package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trailpass/trek-booking-backend/internal/models"
)

// StartDateLayout is the calendar date format used for trek start dates
const StartDateLayout = "2006-01-02"

var (
	ErrInvalidStartDate     = errors.New("start date must be a valid YYYY-MM-DD date")
	ErrStartDateInPast      = errors.New("start date cannot be in the past")
	ErrStartDateUnavailable = errors.New("trek is not available on the selected date")
)

// TrekTimezone is where trek start dates are interpreted
var TrekTimezone = time.FixedZone("IST", 5*60*60+30*60)

// ValidateStartDate checks a requested start date against the trek's availability.
// Explicit dates win over months; a trek with neither accepts any date from today on.
func ValidateStartDate(trek *models.Trek, startDate string, now time.Time) error {
	date, err := time.ParseInLocation(StartDateLayout, strings.TrimSpace(startDate), TrekTimezone)
	if err != nil {
		return ErrInvalidStartDate
	}

	local := now.In(TrekTimezone)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, TrekTimezone)
	if date.Before(today) {
		return ErrStartDateInPast
	}

	if trek == nil {
		return nil
	}

	if len(trek.AvailableDates) > 0 {
		want := date.Format(StartDateLayout)
		for _, d := range trek.AvailableDates {
			if strings.TrimSpace(d) == want {
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrStartDateUnavailable, want)
	}

	if len(trek.AvailableMonths) > 0 {
		for _, m := range trek.AvailableMonths {
			month, year, ok := parseAvailableMonth(m)
			if !ok {
				continue
			}
			if month == date.Month() && (year == 0 || year == date.Year()) {
				return nil
			}
		}
		return fmt.Errorf("%w: %s is not an open month", ErrStartDateUnavailable, date.Month())
	}

	return nil
}

// parseAvailableMonth accepts "March", "Mar", "3", "03" or "2030-03".
// year is 0 when the entry applies to every year.
func parseAvailableMonth(entry string) (time.Month, int, bool) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return 0, 0, false
	}

	if t, err := time.Parse("2006-01", entry); err == nil {
		return t.Month(), t.Year(), true
	}

	if n, err := strconv.Atoi(entry); err == nil {
		if n >= 1 && n <= 12 {
			return time.Month(n), 0, true
		}
		return 0, 0, false
	}

	lower := strings.ToLower(entry)
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		if lower == name || (len(lower) >= 3 && strings.HasPrefix(name, lower)) {
			return m, 0, true
		}
	}
	return 0, 0, false
}

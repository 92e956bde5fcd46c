package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/trailpass/trek-booking-backend/internal/models"
)

func TestValidateStartDate(t *testing.T) {
	// 2030-03-01 01:00 IST is still 28 Feb in UTC
	now := time.Date(2030, 2, 28, 19, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		trek    *models.Trek
		date    string
		wantErr error
	}{
		{
			name:    "Malformed date",
			trek:    &models.Trek{},
			date:    "01-03-2030",
			wantErr: ErrInvalidStartDate,
		},
		{
			name:    "Yesterday in IST",
			trek:    &models.Trek{},
			date:    "2030-02-28",
			wantErr: ErrStartDateInPast,
		},
		{
			name: "Today in IST",
			trek: &models.Trek{},
			date: "2030-03-01",
		},
		{
			name: "Listed date",
			trek: &models.Trek{AvailableDates: models.StringArray{"2030-05-10", "2030-05-17"}},
			date: "2030-05-17",
		},
		{
			name:    "Unlisted date",
			trek:    &models.Trek{AvailableDates: models.StringArray{"2030-05-10"}},
			date:    "2030-05-11",
			wantErr: ErrStartDateUnavailable,
		},
		{
			name: "Dates win over months",
			trek: &models.Trek{
				AvailableDates:  models.StringArray{"2030-05-10"},
				AvailableMonths: models.StringArray{"June"},
			},
			date:    "2030-06-02",
			wantErr: ErrStartDateUnavailable,
		},
		{
			name: "Open month by name",
			trek: &models.Trek{AvailableMonths: models.StringArray{"May", "June"}},
			date: "2030-06-02",
		},
		{
			name: "Open month by abbreviation",
			trek: &models.Trek{AvailableMonths: models.StringArray{"sep"}},
			date: "2030-09-20",
		},
		{
			name: "Open month by number",
			trek: &models.Trek{AvailableMonths: models.StringArray{"10"}},
			date: "2030-10-01",
		},
		{
			name:    "Year specific month",
			trek:    &models.Trek{AvailableMonths: models.StringArray{"2031-05"}},
			date:    "2030-05-10",
			wantErr: ErrStartDateUnavailable,
		},
		{
			name:    "Closed month",
			trek:    &models.Trek{AvailableMonths: models.StringArray{"May", "junk", "13"}},
			date:    "2030-07-10",
			wantErr: ErrStartDateUnavailable,
		},
		{
			name: "No availability lists",
			trek: &models.Trek{},
			date: "2031-12-31",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStartDate(tt.trek, tt.date, now)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseAvailableMonth(t *testing.T) {
	month, year, ok := parseAvailableMonth(" March ")
	assert.True(t, ok)
	assert.Equal(t, time.March, month)
	assert.Zero(t, year)

	month, year, ok = parseAvailableMonth("2030-03")
	assert.True(t, ok)
	assert.Equal(t, time.March, month)
	assert.Equal(t, 2030, year)

	_, _, ok = parseAvailableMonth("Ma")
	assert.False(t, ok)

	_, _, ok = parseAvailableMonth("0")
	assert.False(t, ok)
}

package models

import "time"

// Trek is a bookable trek from the catalog. The booking flow only reads it.
type Trek struct {
	ID              string      `json:"id" db:"id"`
	Name            string      `json:"name" db:"name"`
	Location        *string     `json:"location,omitempty" db:"location"`
	DurationDays    int         `json:"duration_days" db:"duration_days"`
	// UnitPrice is per participant, in the smallest currency unit
	UnitPrice       int64       `json:"unit_price" db:"unit_price"`
	// AvailableDates holds YYYY-MM-DD values; AvailableMonths holds month names like "March"
	AvailableDates  StringArray `json:"available_dates" db:"available_dates"`
	AvailableMonths StringArray `json:"available_months" db:"available_months"`
	IsActive        bool        `json:"is_active" db:"is_active"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// BookingForm is the traveller input collected by the storefront
type BookingForm struct {
	Name          string `json:"name" validate:"required,min=2,max=120"`
	Email         string `json:"email" validate:"required,email"`
	ContactNumber string `json:"contact_number" validate:"required"`
	Participants  int    `json:"participants" validate:"required,min=1,max=50"`
	StartDate     string `json:"start_date" validate:"required,datetime=2006-01-02"`
}

// Identity is the authenticated user as seen by the booking flow.
// A nil identity means the request is anonymous.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
	Phone       string
}

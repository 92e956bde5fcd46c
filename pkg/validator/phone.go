package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrEmptyPhone indicates the contact number is empty
	ErrEmptyPhone = errors.New("contact number cannot be empty")

	// ErrInvalidFormat indicates the contact number contains characters other than digits
	ErrInvalidFormat = errors.New("contact number can only contain digits")

	// ErrInvalidLength indicates the national number is not 10 digits
	ErrInvalidLength = errors.New("contact number must be exactly 10 digits")

	// ErrInvalidPrefix indicates the number does not start like an Indian mobile number
	ErrInvalidPrefix = errors.New("contact number must start with 6, 7, 8 or 9")
)

// digitsOnly matches digits only
var digitsOnly = regexp.MustCompile(`^\d+$`)

// PhoneValidator validates Indian mobile contact numbers
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate validates an Indian mobile number.
// Accepts 9876543210, 98765 43210, +91 98765-43210, 091-9876543210 and 09876543210.
// Returns the 10 digit national number.
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)

	if !digitsOnly.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}

	if len(sanitized) != 10 {
		return "", ErrInvalidLength
	}

	if !strings.ContainsRune("6789", rune(sanitized[0])) {
		return "", ErrInvalidPrefix
	}

	return sanitized, nil
}

// Sanitize removes separators and country/trunk prefixes
func (v *PhoneValidator) Sanitize(phone string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "")
	phone = replacer.Replace(strings.TrimSpace(phone))

	switch {
	case strings.HasPrefix(phone, "091") && len(phone) == 13:
		phone = phone[3:]
	case strings.HasPrefix(phone, "91") && len(phone) == 12:
		phone = phone[2:]
	case strings.HasPrefix(phone, "0") && len(phone) == 11:
		phone = phone[1:]
	}

	return phone
}

// Format formats a number for display: +91 XXXXX XXXXX
func (v *PhoneValidator) Format(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("+91 %s %s", sanitized[0:5], sanitized[5:10]), nil
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}

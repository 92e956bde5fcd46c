package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPhoneValidator(t *testing.T) {
	validator := NewPhoneValidator()
	assert.NotNil(t, validator)
}

func TestValidate_ValidNumbers(t *testing.T) {
	validator := NewPhoneValidator()

	validNumbers := []struct {
		input    string
		expected string
		name     string
	}{
		{"9876543210", "9876543210", "Standard format"},
		{"98765 43210", "9876543210", "With spaces"},
		{"98765-43210", "9876543210", "With dashes"},
		{"+91 98765 43210", "9876543210", "With country code"},
		{"919876543210", "9876543210", "Country code without plus"},
		{"09876543210", "9876543210", "Trunk prefix"},
		{"091-9876543210", "9876543210", "Trunk and country code"},
		{"6123456789", "6123456789", "Starts with 6"},
		{"(987) 654 3210", "9876543210", "With parentheses"},
	}

	for _, tc := range validNumbers {
		t.Run(tc.name, func(t *testing.T) {
			sanitized, err := validator.Validate(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, sanitized)
		})
	}
}

func TestValidate_InvalidNumbers(t *testing.T) {
	validator := NewPhoneValidator()

	invalidNumbers := []struct {
		input       string
		expectedErr error
		name        string
	}{
		{"", ErrEmptyPhone, "Empty string"},
		{"   ", ErrEmptyPhone, "Blank"},
		{"12345", ErrInvalidLength, "Too short"},
		{"98765432101", ErrInvalidLength, "Too long"},
		{"5876543210", ErrInvalidPrefix, "Starts with 5"},
		{"0123456789", ErrInvalidPrefix, "Starts with 0"},
		{"98765a3210", ErrInvalidFormat, "Contains letters"},
	}

	for _, tc := range invalidNumbers {
		t.Run(tc.name, func(t *testing.T) {
			_, err := validator.Validate(tc.input)
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func TestFormat(t *testing.T) {
	validator := NewPhoneValidator()

	formatted, err := validator.Format("+91 98765 43210")
	require.NoError(t, err)
	assert.Equal(t, "+91 98765 43210", formatted)

	_, err = validator.Format("123")
	assert.Error(t, err)
}

func TestIsValid(t *testing.T) {
	validator := NewPhoneValidator()
	assert.True(t, validator.IsValid("9876543210"))
	assert.False(t, validator.IsValid("not a number"))
}

package validator

import (
	"errors"
	"testing"

	"donation-service/internal/domain"

	"github.com/shopspring/decimal"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		want  error
	}{
		{"asha@example.org", nil},
		{"  ", ErrEmptyEmail},
		{"asha@", ErrInvalidEmailFormat},
		{"asha.example.org", ErrInvalidEmailFormat},
	}
	for _, tt := range tests {
		if err := ValidateEmail(tt.email); !errors.Is(err, tt.want) {
			t.Errorf("ValidateEmail(%q) = %v, want %v", tt.email, err, tt.want)
		}
	}
}

func TestValidatePAN(t *testing.T) {
	tests := []struct {
		pan  string
		want error
	}{
		{"", nil},
		{"ABCDE1234F", nil},
		{"abcde1234f", nil},
		{"ABCD1234F", ErrInvalidPAN},
		{"1234567890", ErrInvalidPAN},
	}
	for _, tt := range tests {
		if err := ValidatePAN(tt.pan); !errors.Is(err, tt.want) {
			t.Errorf("ValidatePAN(%q) = %v, want %v", tt.pan, err, tt.want)
		}
	}
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		amount string
		want   error
	}{
		{"500", nil},
		{"0.01", nil},
		{"10.500", nil},
		{"0", ErrInvalidAmount},
		{"-1", ErrInvalidAmount},
		{"10.001", ErrAmountPrecision},
		{"10000001", ErrAmountTooLarge},
	}
	for _, tt := range tests {
		err := ValidateAmount(decimal.RequireFromString(tt.amount))
		if !errors.Is(err, tt.want) {
			t.Errorf("ValidateAmount(%s) = %v, want %v", tt.amount, err, tt.want)
		}
		if tt.want != nil && !IsAmountError(err) {
			t.Errorf("IsAmountError(%v) = false", err)
		}
	}
}

func TestValidateDonor(t *testing.T) {
	tests := []struct {
		name  string
		donor domain.Donor
		want  error
	}{
		{"complete donor", domain.Donor{Name: "Asha", Email: "asha@example.org", PAN: "ABCDE1234F"}, nil},
		{"anonymous without name", domain.Donor{Email: "asha@example.org", Anonymous: true}, nil},
		{"missing name", domain.Donor{Email: "asha@example.org"}, ErrEmptyDonorName},
		{"bad email", domain.Donor{Name: "Asha", Email: "nope"}, ErrInvalidEmailFormat},
		{"bad pan", domain.Donor{Name: "Asha", Email: "asha@example.org", PAN: "X"}, ErrInvalidPAN},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateDonor(tt.donor); !errors.Is(err, tt.want) {
				t.Errorf("ValidateDonor = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateFrequency(t *testing.T) {
	if err := ValidateFrequency(domain.FrequencyQuarterly); err != nil {
		t.Errorf("quarterly: %v", err)
	}
	if err := ValidateFrequency("weekly"); !errors.Is(err, ErrInvalidFrequency) {
		t.Errorf("weekly: %v", err)
	}
}

func TestValidateReason(t *testing.T) {
	if err := ValidateReason("duplicate charge"); err != nil {
		t.Errorf("reason: %v", err)
	}
	if err := ValidateReason(" \t"); !errors.Is(err, ErrEmptyReason) {
		t.Errorf("blank reason: %v", err)
	}
}

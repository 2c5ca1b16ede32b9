package validator

import (
	"errors"
	"regexp"
	"strings"

	"donation-service/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyEmail         = errors.New("email is empty")
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrEmptyDonorName     = errors.New("donor name is empty")
	ErrInvalidPAN         = errors.New("PAN must look like ABCDE1234F")
	ErrInvalidAmount      = errors.New("amount must be greater than 0")
	ErrAmountTooLarge     = errors.New("amount exceeds the single donation limit")
	ErrAmountPrecision    = errors.New("amount cannot have more than 2 decimal places")
	ErrInvalidFrequency   = errors.New("frequency must be monthly, quarterly or yearly")
	ErrEmptyReason        = errors.New("reason is empty")
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	panRegex   = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)

	MaxDonation = decimal.NewFromInt(10_000_000)
)

func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmptyEmail
	}
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmailFormat
	}
	return nil
}

// ValidatePAN accepts an empty PAN; the certificate flow enforces presence.
func ValidatePAN(pan string) error {
	pan = strings.ToUpper(strings.TrimSpace(pan))
	if pan == "" {
		return nil
	}
	if !panRegex.MatchString(pan) {
		return ErrInvalidPAN
	}
	return nil
}

func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(MaxDonation) {
		return ErrAmountTooLarge
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return ErrAmountPrecision
	}
	return nil
}

func ValidateDonor(donor domain.Donor) error {
	if strings.TrimSpace(donor.Name) == "" && !donor.Anonymous {
		return ErrEmptyDonorName
	}
	if err := ValidateEmail(donor.Email); err != nil {
		return err
	}
	return ValidatePAN(donor.PAN)
}

func ValidateFrequency(f domain.Frequency) error {
	if !f.Valid() {
		return ErrInvalidFrequency
	}
	return nil
}

func ValidateReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrEmptyReason
	}
	return nil
}

// IsAmountError reports whether err came from amount validation.
func IsAmountError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrAmountTooLarge) || errors.Is(err, ErrAmountPrecision)
}

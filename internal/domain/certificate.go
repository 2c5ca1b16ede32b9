package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"donation-service/internal/billing"
	"donation-service/internal/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Organization is the registration metadata printed on tax certificates.
// Certificates keep their own copy taken at issue time.
type Organization struct {
	Name               string `json:"name"`
	Address            string `json:"address"`
	PAN                string `json:"pan"`
	RegistrationNumber string `json:"registration_number"`
	RegistrationValid  string `json:"registration_valid"`
	Signatory          string `json:"signatory"`
	Email              string `json:"email"`
	VerifyBaseURL      string `json:"verify_base_url"`
}

type TaxCertificate struct {
	ID                string          `json:"id"`
	CertificateNumber string          `json:"certificate_number"`
	FinancialYear     string          `json:"financial_year"`
	Sequence          int64           `json:"sequence"`
	PaymentID         string          `json:"payment_id"`
	ReceiptNumber     string          `json:"receipt_number"`
	DonorName         string          `json:"donor_name"`
	DonorEmail        string          `json:"donor_email"`
	DonorPAN          string          `json:"donor_pan"`
	DonorAddress      string          `json:"donor_address,omitempty"`
	DonationAmount    decimal.Decimal `json:"donation_amount"`
	DeductiblePercent decimal.Decimal `json:"deductible_percent"`
	DeductibleAmount  decimal.Decimal `json:"deductible_amount"`
	DonationDate      time.Time       `json:"donation_date"`
	Organization      Organization    `json:"organization"`
	SupersedesID      string          `json:"supersedes_id,omitempty"`
	IssuedAt          time.Time       `json:"issued_at"`
}

// CertificateNumber formats prefix/FY/sequence, e.g. 80G/2024-25/000042.
func CertificateNumber(prefix string, fy billing.FinancialYear, seq int64) string {
	return fmt.Sprintf("%s/%s/%06d", prefix, fy, seq)
}

// CertificateSequenceName scopes the certificate counter to one financial year.
func CertificateSequenceName(fy billing.FinancialYear) string {
	return "certificate:" + fy.String()
}

// NewTaxCertificate derives a certificate from a completed payment. The
// deductible amount is pct percent of the gross donation rounded half-up to
// whole units.
func NewTaxCertificate(p *PaymentRecord, org Organization, pct decimal.Decimal, prefix string, seq int64, now time.Time) (*TaxCertificate, error) {
	if p.Status != PaymentCompleted {
		return nil, fmt.Errorf("%w: payment %s is %s, certificates need a completed donation", ErrInvalidState, p.ID, p.Status)
	}
	if strings.TrimSpace(p.Donor.PAN) == "" {
		return nil, fmt.Errorf("%w: payment %s has no donor PAN", ErrMissingTaxInfo, p.ID)
	}
	donated := p.CreatedAt
	if p.CompletedAt != nil {
		donated = *p.CompletedAt
	}
	fy := billing.FinancialYearOf(donated)
	return &TaxCertificate{
		ID:                uuid.NewString(),
		CertificateNumber: CertificateNumber(prefix, fy, seq),
		FinancialYear:     fy.String(),
		Sequence:          seq,
		PaymentID:         p.ID,
		ReceiptNumber:     p.ReceiptNumber,
		DonorName:         p.Donor.Name,
		DonorEmail:        p.Donor.Email,
		DonorPAN:          strings.ToUpper(p.Donor.PAN),
		DonorAddress:      p.Donor.Address,
		DonationAmount:    p.GrossAmount,
		DeductiblePercent: pct,
		DeductibleAmount:  money.RoundUnit(money.Percent(p.GrossAmount, pct)),
		DonationDate:      donated,
		Organization:      org,
		IssuedAt:          now,
	}, nil
}

// VerificationURL resolves back to the certificate and its payment.
func (c *TaxCertificate) VerificationURL() string {
	q := url.Values{}
	q.Set("payment", c.PaymentID)
	base := strings.TrimRight(c.Organization.VerifyBaseURL, "/")
	return fmt.Sprintf("%s/certificates/%s/verify?%s", base, url.PathEscape(c.CertificateNumber), q.Encode())
}

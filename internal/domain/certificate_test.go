package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"donation-service/internal/billing"

	"github.com/shopspring/decimal"
)

func TestNewTaxCertificate(t *testing.T) {
	org := Organization{Name: "Seva Trust", VerifyBaseURL: "https://seva.example.org/"}
	p := completedPayment(t, 1001, 20)
	p.Donor.PAN = "abcde1234f"
	completed := time.Date(2025, time.February, 3, 12, 0, 0, 0, time.UTC)
	p.CompletedAt = &completed

	cert, err := NewTaxCertificate(p, org, decimal.NewFromInt(50), "80G", 7, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if cert.CertificateNumber != "80G/2024-25/000007" {
		t.Errorf("number = %s", cert.CertificateNumber)
	}
	if !cert.DeductibleAmount.Equal(decimal.NewFromInt(501)) {
		t.Errorf("deductible = %s, want 501 (500.5 rounded half-up)", cert.DeductibleAmount)
	}
	if cert.DonorPAN != "ABCDE1234F" {
		t.Errorf("pan = %s", cert.DonorPAN)
	}
	url := cert.VerificationURL()
	if !strings.HasPrefix(url, "https://seva.example.org/certificates/") || !strings.Contains(url, "payment="+p.ID) {
		t.Errorf("verification url = %s", url)
	}

	org.Name = "Renamed Trust"
	if cert.Organization.Name != "Seva Trust" {
		t.Error("certificate must keep its organization snapshot")
	}
}

func TestNewTaxCertificateErrors(t *testing.T) {
	noPAN := completedPayment(t, 100, 0)
	if _, err := NewTaxCertificate(noPAN, Organization{}, decimal.NewFromInt(50), "80G", 1, testNow); !errors.Is(err, ErrMissingTaxInfo) {
		t.Errorf("err = %v, want ErrMissingTaxInfo", err)
	}
	pending := pendingPayment(t, 100)
	pending.Donor.PAN = "ABCDE1234F"
	if _, err := NewTaxCertificate(pending, Organization{}, decimal.NewFromInt(50), "80G", 1, testNow); !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestCertificateSequenceNameIsPerYear(t *testing.T) {
	a := CertificateSequenceName(billing.FinancialYear{StartYear: 2023})
	b := CertificateSequenceName(billing.FinancialYear{StartYear: 2024})
	if a == b {
		t.Error("sequence must be scoped per financial year")
	}
}

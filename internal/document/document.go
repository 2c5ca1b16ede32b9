// Package document renders receipts and tax certificates as self-contained
// HTML. Output depends only on the record and the generation time.
package document

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"time"

	"donation-service/internal/billing"
	"donation-service/internal/domain"
	"donation-service/internal/money"
)

type Kind string

const (
	KindReceipt     Kind = "receipt"
	KindCertificate Kind = "tax_certificate"
)

const contentType = "text/html; charset=utf-8"

type Document struct {
	Kind        Kind      `json:"kind"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Content     []byte    `json:"-"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Base64 is the encoded form returned to API callers.
func (d *Document) Base64() string {
	return base64.StdEncoding.EncodeToString(d.Content)
}

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"inr":      money.Format,
	"date":     func(t time.Time) string { return t.In(billing.IST).Format("02 Jan 2006") },
	"datetime": func(t time.Time) string { return t.In(billing.IST).Format("02 Jan 2006 15:04 MST") },
}).ParseFS(templateFS, "templates/*.html"))

type receiptData struct {
	Org         domain.Organization
	Payment     *domain.PaymentRecord
	DonorName   string
	DonatedAt   time.Time
	Refunded    bool
	GeneratedAt time.Time
}

// RenderReceipt builds the receipt for a payment whose funds were captured.
func RenderReceipt(p *domain.PaymentRecord, org domain.Organization, generatedAt time.Time) (*Document, error) {
	if !p.Status.Captured() {
		return nil, fmt.Errorf("%w: payment %s is %s, receipts need captured funds", domain.ErrInvalidState, p.ID, p.Status)
	}
	donated := p.CreatedAt
	if p.CompletedAt != nil {
		donated = *p.CompletedAt
	}
	name := p.Donor.Name
	if name == "" {
		name = p.Donor.DisplayName()
	}
	data := receiptData{
		Org:         org,
		Payment:     p,
		DonorName:   name,
		DonatedAt:   donated,
		Refunded:    p.Status == domain.PaymentRefunded,
		GeneratedAt: generatedAt,
	}
	content, err := render("receipt.html", data)
	if err != nil {
		return nil, err
	}
	return &Document{
		Kind:        KindReceipt,
		Filename:    fmt.Sprintf("receipt-%s.html", p.ReceiptNumber),
		ContentType: contentType,
		Content:     content,
		GeneratedAt: generatedAt,
	}, nil
}

type certificateData struct {
	Cert        *domain.TaxCertificate
	GeneratedAt time.Time
}

// RenderCertificate renders an issued certificate from its own snapshot.
func RenderCertificate(c *domain.TaxCertificate, generatedAt time.Time) (*Document, error) {
	content, err := render("certificate.html", certificateData{Cert: c, GeneratedAt: generatedAt})
	if err != nil {
		return nil, err
	}
	return &Document{
		Kind:        KindCertificate,
		Filename:    fmt.Sprintf("80G-%s-%06d.html", c.FinancialYear, c.Sequence),
		ContentType: contentType,
		Content:     content,
		GeneratedAt: generatedAt,
	}, nil
}

func render(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

package service

import (
	"context"
	"errors"
	"fmt"

	"donation-service/internal/billing"
	"donation-service/internal/document"
	"donation-service/internal/domain"

	log "github.com/sirupsen/logrus"
)

type DocumentService struct {
	payments PaymentRepository
	certs    CertificateRepository
	archive  Archive
	settings Settings
}

// NewDocumentService builds the service. archive may be nil.
func NewDocumentService(payments PaymentRepository, certs CertificateRepository, archive Archive, settings Settings) *DocumentService {
	return &DocumentService{payments: payments, certs: certs, archive: archive, settings: settings}
}

func (s *DocumentService) payment(ctx context.Context, actor domain.Actor, id string) (*domain.PaymentRecord, error) {
	p, err := s.payments.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, p.Donor); err != nil {
		return nil, err
	}
	return p, nil
}

// Receipt renders the receipt of a completed or refunded payment.
func (s *DocumentService) Receipt(ctx context.Context, actor domain.Actor, paymentID string) (*document.Document, error) {
	p, err := s.payment(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}
	return document.RenderReceipt(p, s.settings.Organization, s.settings.now())
}

// IssueTaxCertificate returns the payment's certificate, issuing one on the
// first call. Later calls render the stored snapshot.
func (s *DocumentService) IssueTaxCertificate(ctx context.Context, actor domain.Actor, paymentID string) (*domain.TaxCertificate, *document.Document, error) {
	p, err := s.payment(ctx, actor, paymentID)
	if err != nil {
		return nil, nil, err
	}
	cert, err := s.certs.LatestCertificateForPayment(ctx, p.ID)
	switch {
	case err == nil:
		return s.render(cert)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, nil, err
	}

	cert, err = s.issue(ctx, actor, p, "")
	if errors.Is(err, domain.ErrConflict) {
		// Issued concurrently by another request.
		if cert, err = s.certs.LatestCertificateForPayment(ctx, p.ID); err != nil {
			return nil, nil, err
		}
		return s.render(cert)
	}
	if err != nil {
		return nil, nil, err
	}
	return s.render(cert)
}

// ReissueTaxCertificate issues a new certificate number superseding the
// latest one. The old certificate stays valid for verification.
func (s *DocumentService) ReissueTaxCertificate(ctx context.Context, actor domain.Actor, paymentID string) (*domain.TaxCertificate, *document.Document, error) {
	if err := requireAdmin(actor, "reissue certificates"); err != nil {
		return nil, nil, err
	}
	p, err := s.payment(ctx, actor, paymentID)
	if err != nil {
		return nil, nil, err
	}
	previous, err := s.certs.LatestCertificateForPayment(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}
	cert, err := s.issue(ctx, actor, p, previous.ID)
	if err != nil {
		return nil, nil, err
	}
	return s.render(cert)
}

func (s *DocumentService) issue(ctx context.Context, actor domain.Actor, p *domain.PaymentRecord, supersedes string) (*domain.TaxCertificate, error) {
	now := s.settings.now()
	// Validate before a certificate number is consumed.
	draft, err := domain.NewTaxCertificate(p, s.settings.Organization, s.settings.DeductiblePercent, s.settings.CertificatePrefix, 0, now)
	if err != nil {
		return nil, err
	}
	fy := billing.FinancialYearOf(draft.DonationDate)
	seq, err := s.certs.NextSequence(ctx, domain.CertificateSequenceName(fy))
	if err != nil {
		return nil, fmt.Errorf("failed to reserve certificate number: %w", err)
	}
	cert, err := domain.NewTaxCertificate(p, s.settings.Organization, s.settings.DeductiblePercent, s.settings.CertificatePrefix, seq, now)
	if err != nil {
		return nil, err
	}
	cert.SupersedesID = supersedes
	if err := s.certs.CreateCertificate(ctx, cert); err != nil {
		return nil, err
	}
	auditCertificate("certificate.issued", actor, cert)
	s.archiveCertificate(ctx, cert)
	return cert, nil
}

// archiveCertificate keeps a copy in object storage. A failure is logged and
// does not undo the issue.
func (s *DocumentService) archiveCertificate(ctx context.Context, cert *domain.TaxCertificate) {
	if s.archive == nil {
		return
	}
	doc, err := document.RenderCertificate(cert, cert.IssuedAt)
	if err == nil {
		_, err = s.archive.Put(ctx, doc.Filename, doc.ContentType, doc.Content, map[string]string{
			"certificate-number": cert.CertificateNumber,
			"payment-id":         cert.PaymentID,
		})
	}
	if err != nil {
		log.WithFields(log.Fields{"certificate_number": cert.CertificateNumber, "error": err}).Error("Failed to archive certificate")
	}
}

func (s *DocumentService) render(cert *domain.TaxCertificate) (*domain.TaxCertificate, *document.Document, error) {
	doc, err := document.RenderCertificate(cert, s.settings.now())
	if err != nil {
		return nil, nil, err
	}
	return cert, doc, nil
}

// Verification ties a certificate number back to the issuing payment.
type Verification struct {
	Certificate *domain.TaxCertificate `json:"certificate"`
	PaymentID   string                 `json:"payment_id"`
	Status      domain.PaymentStatus   `json:"payment_status"`
	Superseded  bool                   `json:"superseded"`
}

// VerifyCertificate resolves a certificate number. When paymentID is given it
// must match the certificate.
func (s *DocumentService) VerifyCertificate(ctx context.Context, number, paymentID string) (*Verification, error) {
	cert, err := s.certs.GetCertificateByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if paymentID != "" && paymentID != cert.PaymentID {
		return nil, fmt.Errorf("%w: certificate %s does not belong to payment %s", domain.ErrNotFound, number, paymentID)
	}
	p, err := s.payments.GetPayment(ctx, cert.PaymentID)
	if err != nil {
		return nil, err
	}
	latest, err := s.certs.LatestCertificateForPayment(ctx, cert.PaymentID)
	if err != nil {
		return nil, err
	}
	return &Verification{
		Certificate: cert,
		PaymentID:   p.ID,
		Status:      p.Status,
		Superseded:  latest.ID != cert.ID,
	}, nil
}

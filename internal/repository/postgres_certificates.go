package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"donation-service/internal/domain"
)

// Certificates are stored as a JSON snapshot so the issued content can never
// drift from what was printed.

func (r *Postgres) CreateCertificate(ctx context.Context, c *domain.TaxCertificate) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	snapshot, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode certificate: %w", err)
	}
	const query = `
		INSERT INTO tax_certificates (id, certificate_number, financial_year, sequence, payment_id, supersedes_id, snapshot, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query, c.ID, c.CertificateNumber, c.FinancialYear, c.Sequence, c.PaymentID, c.SupersedesID, snapshot, c.IssuedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: certificate %s or an original certificate for payment %s already issued", domain.ErrConflict, c.CertificateNumber, c.PaymentID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert certificate: %w", err)
	}
	return nil
}

func (r *Postgres) loadCertificate(ctx context.Context, query, arg string) (*domain.TaxCertificate, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var snapshot []byte
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&snapshot); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: certificate %s", domain.ErrNotFound, arg)
		}
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	var c domain.TaxCertificate
	if err := json.Unmarshal(snapshot, &c); err != nil {
		return nil, fmt.Errorf("failed to decode certificate: %w", err)
	}
	return &c, nil
}

func (r *Postgres) GetCertificateByNumber(ctx context.Context, number string) (*domain.TaxCertificate, error) {
	return r.loadCertificate(ctx, `SELECT snapshot FROM tax_certificates WHERE certificate_number = $1`, number)
}

func (r *Postgres) LatestCertificateForPayment(ctx context.Context, paymentID string) (*domain.TaxCertificate, error) {
	return r.loadCertificate(ctx, `SELECT snapshot FROM tax_certificates WHERE payment_id = $1 ORDER BY issued_at DESC, sequence DESC LIMIT 1`, paymentID)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"donation-service/internal/domain"

	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const paymentColumns = `id, reference, order_id, gateway_payment_id, gross_amount, fee, net_amount, currency,
	status, campaign_id, subscription_id, donor_user_id, donor_name, donor_email, donor_phone, donor_pan,
	donor_address, donor_anonymous, receipt_number, failure_reason, refunded_amount, refund_reason,
	refunded_at, completed_at, failed_at, created_at, updated_at, version`

func scanPayment(row rowScanner) (*domain.PaymentRecord, error) {
	var p domain.PaymentRecord
	var status string
	var refundedAt, completedAt, failedAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.Reference, &p.OrderID, &p.GatewayPaymentID, &p.GrossAmount, &p.Fee, &p.NetAmount, &p.Currency,
		&status, &p.CampaignID, &p.SubscriptionID, &p.Donor.UserID, &p.Donor.Name, &p.Donor.Email, &p.Donor.Phone, &p.Donor.PAN,
		&p.Donor.Address, &p.Donor.Anonymous, &p.ReceiptNumber, &p.FailureReason, &p.RefundedAmount, &p.RefundReason,
		&refundedAt, &completedAt, &failedAt, &p.CreatedAt, &p.UpdatedAt, &p.Version,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PaymentStatus(status)
	p.RefundedAt = timePtr(refundedAt)
	p.CompletedAt = timePtr(completedAt)
	p.FailedAt = timePtr(failedAt)
	return &p, nil
}

func (r *Postgres) CreatePayment(ctx context.Context, p *domain.PaymentRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	p.Version = 1
	query := `INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
		        $21, $22, $23, $24, $25, $26, $27, $28)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Reference, p.OrderID, p.GatewayPaymentID, p.GrossAmount, p.Fee, p.NetAmount, p.Currency,
		string(p.Status), p.CampaignID, p.SubscriptionID, p.Donor.UserID, p.Donor.Name, p.Donor.Email, p.Donor.Phone, p.Donor.PAN,
		p.Donor.Address, p.Donor.Anonymous, p.ReceiptNumber, p.FailureReason, p.RefundedAmount, p.RefundReason,
		nullTime(p.RefundedAt), nullTime(p.CompletedAt), nullTime(p.FailedAt), p.CreatedAt, p.UpdatedAt, p.Version,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: payment %s or reference %s already exists", domain.ErrConflict, p.ID, p.Reference)
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (r *Postgres) getPaymentBy(ctx context.Context, column, value string) (*domain.PaymentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + column + ` = $1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: payment with %s %s", domain.ErrNotFound, column, value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return p, nil
}

func (r *Postgres) GetPayment(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	return r.getPaymentBy(ctx, "id", id)
}

func (r *Postgres) GetPaymentByOrderID(ctx context.Context, orderID string) (*domain.PaymentRecord, error) {
	return r.getPaymentBy(ctx, "order_id", orderID)
}

func (r *Postgres) GetPaymentByReference(ctx context.Context, reference string) (*domain.PaymentRecord, error) {
	return r.getPaymentBy(ctx, "reference", reference)
}

// ModifyPayment locks the payment row, applies fn and writes the result back
// on the condition that the version has not moved.
func (r *Postgres) ModifyPayment(ctx context.Context, id string, fn func(*domain.PaymentRecord) error) (*domain.PaymentRecord, error) {
	var updated *domain.PaymentRecord
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
		p, err := scanPayment(tx.QueryRowContext(ctx, query, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: payment %s", domain.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock payment: %w", err)
		}

		readVersion := p.Version
		if err := fn(p); err != nil {
			return err
		}
		p.Version = readVersion + 1

		const update = `
			UPDATE payments SET
				gateway_payment_id = $3, fee = $4, net_amount = $5, status = $6, receipt_number = $7,
				failure_reason = $8, refunded_amount = $9, refund_reason = $10, refunded_at = $11,
				completed_at = $12, failed_at = $13, updated_at = $14, version = $15
			WHERE id = $1 AND version = $2
		`
		res, err := tx.ExecContext(ctx, update,
			p.ID, readVersion, p.GatewayPaymentID, p.Fee, p.NetAmount, string(p.Status), p.ReceiptNumber,
			p.FailureReason, p.RefundedAmount, p.RefundReason, nullTime(p.RefundedAt),
			nullTime(p.CompletedAt), nullTime(p.FailedAt), p.UpdatedAt, p.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return fmt.Errorf("%w: payment %s changed since version %d", domain.ErrConflict, id, readVersion)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// paymentQuery mirrors domain.PaymentFilter.Matches in SQL.
func paymentQuery(f domain.PaymentFilter) (string, []any) {
	w := &whereBuilder{}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		w.add("status = ANY(?)", pq.Array(statuses))
	}
	if f.From != nil {
		w.add("created_at >= ?", *f.From)
	}
	if f.To != nil {
		w.add("created_at <= ?", *f.To)
	}
	if f.CampaignID != "" {
		w.add("campaign_id = ?", f.CampaignID)
	}
	if f.SubscriptionID != "" {
		w.add("subscription_id = ?", f.SubscriptionID)
	}
	if f.DonorEmail != "" {
		w.add("lower(donor_email) = lower(?)", f.DonorEmail)
	}
	if f.Owner != nil {
		w.addOwner(*f.Owner)
	}
	if strings.TrimSpace(f.Search) != "" {
		w.add("(donor_name ILIKE ? OR donor_email ILIKE ? OR receipt_number ILIKE ?)", containsPattern(f.Search))
	}
	query := `SELECT ` + paymentColumns + ` FROM payments` + w.String() + ` ORDER BY created_at DESC, id COLLATE "C" DESC`
	return query, w.args
}

func (r *Postgres) FindPayments(ctx context.Context, filter domain.PaymentFilter) ([]domain.PaymentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*queryTimeout)
	defer cancel()

	query, args := paymentQuery(filter)
	log.WithFields(log.Fields{"query": query, "args": len(args)}).Debug("Querying payments")

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

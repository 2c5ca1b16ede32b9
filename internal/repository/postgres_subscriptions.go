package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"donation-service/internal/billing"
	"donation-service/internal/domain"

	"github.com/lib/pq"
)

const subscriptionColumns = `id, donor_user_id, donor_name, donor_email, donor_phone, donor_pan, donor_address,
	donor_anonymous, campaign_id, amount, currency, frequency, status, next_payment_date, total_payments,
	total_amount, last_payment_id, last_payment_at, end_reason, paused_at, cancelled_at, expired_at,
	created_at, updated_at, version`

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var s domain.Subscription
	var frequency, status string
	var lastPaymentAt, pausedAt, cancelledAt, expiredAt sql.NullTime
	err := row.Scan(
		&s.ID, &s.Donor.UserID, &s.Donor.Name, &s.Donor.Email, &s.Donor.Phone, &s.Donor.PAN, &s.Donor.Address,
		&s.Donor.Anonymous, &s.CampaignID, &s.Amount, &s.Currency, &frequency, &status, &s.NextPaymentDate, &s.TotalPayments,
		&s.TotalAmount, &s.LastPaymentID, &lastPaymentAt, &s.EndReason, &pausedAt, &cancelledAt, &expiredAt,
		&s.CreatedAt, &s.UpdatedAt, &s.Version,
	)
	if err != nil {
		return nil, err
	}
	s.Frequency = domain.Frequency(frequency)
	s.Status = domain.SubscriptionStatus(status)
	s.NextPaymentDate = s.NextPaymentDate.In(billing.IST)
	s.LastPaymentAt = timePtr(lastPaymentAt)
	s.PausedAt = timePtr(pausedAt)
	s.CancelledAt = timePtr(cancelledAt)
	s.ExpiredAt = timePtr(expiredAt)
	return &s, nil
}

func (r *Postgres) CreateSubscription(ctx context.Context, s *domain.Subscription) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	s.Version = 1
	query := `INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
		        $21, $22, $23, $24, $25)`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Donor.UserID, s.Donor.Name, s.Donor.Email, s.Donor.Phone, s.Donor.PAN, s.Donor.Address,
		s.Donor.Anonymous, s.CampaignID, s.Amount, s.Currency, string(s.Frequency), string(s.Status), s.NextPaymentDate, s.TotalPayments,
		s.TotalAmount, s.LastPaymentID, nullTime(s.LastPaymentAt), s.EndReason, nullTime(s.PausedAt), nullTime(s.CancelledAt), nullTime(s.ExpiredAt),
		s.CreatedAt, s.UpdatedAt, s.Version,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: subscription %s already exists", domain.ErrConflict, s.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

func (r *Postgres) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	s, err := scanSubscription(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: subscription %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return s, nil
}

func (r *Postgres) modifySubscriptionTx(ctx context.Context, tx *sql.Tx, id string, fn func(*domain.Subscription) error) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1 FOR UPDATE`
	s, err := scanSubscription(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: subscription %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock subscription: %w", err)
	}

	readVersion := s.Version
	if err := fn(s); err != nil {
		return nil, err
	}
	s.Version = readVersion + 1

	const update = `
		UPDATE subscriptions SET
			status = $3, next_payment_date = $4, total_payments = $5, total_amount = $6,
			last_payment_id = $7, last_payment_at = $8, end_reason = $9, paused_at = $10,
			cancelled_at = $11, expired_at = $12, updated_at = $13, version = $14
		WHERE id = $1 AND version = $2
	`
	res, err := tx.ExecContext(ctx, update,
		s.ID, readVersion, string(s.Status), s.NextPaymentDate, s.TotalPayments, s.TotalAmount,
		s.LastPaymentID, nullTime(s.LastPaymentAt), s.EndReason, nullTime(s.PausedAt),
		nullTime(s.CancelledAt), nullTime(s.ExpiredAt), s.UpdatedAt, s.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return nil, fmt.Errorf("%w: subscription %s changed since version %d", domain.ErrConflict, id, readVersion)
	}
	return s, nil
}

func (r *Postgres) ModifySubscription(ctx context.Context, id string, fn func(*domain.Subscription) error) (*domain.Subscription, error) {
	var updated *domain.Subscription
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		s, err := r.modifySubscriptionTx(ctx, tx, id, fn)
		updated = s
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RecordCharge claims paymentID in the charge ledger and applies fn in the
// same transaction. A payment that was already claimed leaves the
// subscription untouched and reports false.
func (r *Postgres) RecordCharge(ctx context.Context, subscriptionID, paymentID string, fn func(*domain.Subscription) error) (*domain.Subscription, bool, error) {
	var (
		result  *domain.Subscription
		applied bool
	)
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		const claim = `
			INSERT INTO subscription_charges (payment_id, subscription_id, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (payment_id) DO NOTHING
		`
		res, err := tx.ExecContext(ctx, claim, paymentID, subscriptionID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to claim charge: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to claim charge: %w", err)
		} else if n == 0 {
			query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
			s, err := scanSubscription(tx.QueryRowContext(ctx, query, subscriptionID))
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: subscription %s", domain.ErrNotFound, subscriptionID)
			}
			result = s
			return err
		}

		s, err := r.modifySubscriptionTx(ctx, tx, subscriptionID, fn)
		if err != nil {
			return err
		}
		result, applied = s, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, applied, nil
}

func subscriptionQuery(f domain.SubscriptionFilter) (string, []any) {
	w := &whereBuilder{}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		w.add("status = ANY(?)", pq.Array(statuses))
	}
	if f.CampaignID != "" {
		w.add("campaign_id = ?", f.CampaignID)
	}
	if f.DonorEmail != "" {
		w.add("lower(donor_email) = lower(?)", f.DonorEmail)
	}
	if f.Owner != nil {
		w.addOwner(*f.Owner)
	}
	if strings.TrimSpace(f.Search) != "" {
		w.add("(donor_name ILIKE ? OR donor_email ILIKE ?)", containsPattern(f.Search))
	}
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions` + w.String() + ` ORDER BY created_at DESC, id COLLATE "C" DESC`
	return query, w.args
}

func (r *Postgres) querySubscriptions(ctx context.Context, query string, args ...any) ([]domain.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *Postgres) FindSubscriptions(ctx context.Context, filter domain.SubscriptionFilter) ([]domain.Subscription, error) {
	query, args := subscriptionQuery(filter)
	return r.querySubscriptions(ctx, query, args...)
}

// FindDueSubscriptions selects active subscriptions whose next date is not after now.
func (r *Postgres) FindDueSubscriptions(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE status = 'active' AND next_payment_date <= $1
		ORDER BY created_at DESC, id COLLATE "C" DESC`
	return r.querySubscriptions(ctx, query, now)
}

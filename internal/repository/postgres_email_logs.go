package repository

import (
	"context"
	"database/sql"
	"fmt"

	"donation-service/internal/domain"

	log "github.com/sirupsen/logrus"
)

func (r *Postgres) SaveEmailLog(ctx context.Context, l domain.EmailLog) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	log.WithFields(log.Fields{
		"payment_id":      l.PaymentID,
		"recipient_email": l.RecipientEmail,
		"subject":         l.Subject,
		"status":          l.Status,
		"attempts":        l.Attempts,
	}).Info("Saving email log to database")

	const query = `
        INSERT INTO email_logs (payment_id, recipient_email, subject, status, attempts, error_message, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7);
    `
	if _, err := r.db.ExecContext(ctx, query, l.PaymentID, l.RecipientEmail, l.Subject, string(l.Status), l.Attempts, nullStringOrNil(l.ErrorMessage), l.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert email log: %w", err)
	}
	return nil
}

func nullStringOrNil(ns sql.NullString) interface{} {
	if ns.Valid {
		return ns.String
	}
	return nil
}

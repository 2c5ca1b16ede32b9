package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"donation-service/internal/document"
	"donation-service/internal/domain"
	"donation-service/internal/money"
	"donation-service/internal/sender"

	log "github.com/sirupsen/logrus"
)

// ReceiptMailer emails the receipt of every completed payment to the donor.
type ReceiptMailer struct {
	emailSender  sender.EmailSender
	emailLogs    EmailLogRepository
	settings     Settings
	maxAttempts  int
	initialDelay time.Duration
	sendTimeout  time.Duration

	inFlight sync.WaitGroup
}

func NewReceiptMailer(emailSender sender.EmailSender, emailLogs EmailLogRepository, settings Settings, initialDelay time.Duration) *ReceiptMailer {
	return &ReceiptMailer{
		emailSender:  emailSender,
		emailLogs:    emailLogs,
		settings:     settings,
		maxAttempts:  3,
		initialDelay: initialDelay,
		sendTimeout:  30 * time.Second,
	}
}

// PaymentCompleted sends the receipt in the background. The request that
// completed the payment does not wait for SMTP; call Wait before exiting.
func (m *ReceiptMailer) PaymentCompleted(ctx context.Context, p *domain.PaymentRecord) {
	record := *p
	m.inFlight.Add(1)
	go func() {
		defer m.inFlight.Done()
		if err := m.Send(context.WithoutCancel(ctx), &record); err != nil {
			log.WithFields(log.Fields{"payment_id": record.ID, "error": err}).Error("Receipt email not delivered")
		}
	}()
}

// Wait blocks until every queued receipt has been sent or given up on, or
// until ctx is done.
func (m *ReceiptMailer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send renders the receipt and delivers it, retrying with exponential
// backoff. Every outcome is written to the email log.
func (m *ReceiptMailer) Send(ctx context.Context, p *domain.PaymentRecord) error {
	if p.Donor.Email == "" {
		return nil
	}
	doc, err := document.RenderReceipt(p, m.settings.Organization, m.settings.now())
	if err != nil {
		return fmt.Errorf("failed to render receipt: %w", err)
	}

	msg := sender.Message{
		To:      p.Donor.Email,
		Subject: fmt.Sprintf("Your donation receipt %s", p.ReceiptNumber),
		Text: fmt.Sprintf(
			"Dear %s,\n\nThank you for your donation of %s to %s.\nReceipt number: %s\n\nYour receipt is attached.",
			p.Donor.DisplayName(),
			money.Format(p.GrossAmount),
			m.settings.Organization.Name,
			p.ReceiptNumber,
		),
		HTML: doc.Content,
		Attachments: []sender.Attachment{{
			Filename:    doc.Filename,
			ContentType: doc.ContentType,
			Content:     doc.Content,
		}},
	}

	ctx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()

	delay := m.initialDelay
	attempts := 0
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		attempts = attempt
		err = m.emailSender.SendEmail(ctx, msg)
		if err == nil {
			if attempt > 1 {
				log.WithFields(log.Fields{
					"attempt":      attempt,
					"max_attempts": m.maxAttempts,
					"payment_id":   p.ID,
				}).Info("Receipt email sent successfully after retry")
			}
			break
		}

		if attempt < m.maxAttempts {
			log.WithFields(log.Fields{
				"attempt":      attempt,
				"max_attempts": m.maxAttempts,
				"error":        err,
				"payment_id":   p.ID,
			}).Warn("Failed to send receipt email, retrying...")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				err = ctx.Err()
				attempt = m.maxAttempts
			}
			delay *= 2
		}
	}

	entry := domain.EmailLog{
		PaymentID:      p.ID,
		RecipientEmail: p.Donor.Email,
		Subject:        msg.Subject,
		Attempts:       attempts,
		CreatedAt:      m.settings.now(),
	}
	if err != nil {
		log.WithError(err).Error("Failed to send receipt email via SMTP")
		entry.Status = domain.StatusFailed
		entry.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	} else {
		log.WithField("payment_id", p.ID).Info("Receipt email sent successfully via SMTP")
		entry.Status = domain.StatusSent
	}

	if m.emailLogs != nil {
		if logErr := m.emailLogs.SaveEmailLog(context.WithoutCancel(ctx), entry); logErr != nil {
			log.WithError(logErr).Error("Failed to save email log to database")
		}
	}
	return err
}

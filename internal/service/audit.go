package service

import (
	"donation-service/internal/domain"

	log "github.com/sirupsen/logrus"
)

// Every financial state change leaves one audit entry with the values
// before and after the change.

func auditPayment(action string, actor domain.Actor, before, after *domain.PaymentRecord) {
	fields := log.Fields{
		"audit":            true,
		"action":           action,
		"actor":            actor.UserID,
		"payment_id":       after.ID,
		"status_after":     after.Status,
		"gross_amount":     after.GrossAmount.String(),
		"fee_after":        after.Fee.String(),
		"net_amount_after": after.NetAmount.String(),
		"refunded_after":   after.RefundedAmount.String(),
		"receipt_number":   after.ReceiptNumber,
		"subscription_id":  after.SubscriptionID,
	}
	if before != nil {
		fields["status_before"] = before.Status
		fields["fee_before"] = before.Fee.String()
		fields["net_amount_before"] = before.NetAmount.String()
		fields["refunded_before"] = before.RefundedAmount.String()
	}
	log.WithFields(fields).Info("Payment state changed")
}

func auditSubscription(action string, actor domain.Actor, before, after *domain.Subscription) {
	fields := log.Fields{
		"audit":                true,
		"action":               action,
		"actor":                actor.UserID,
		"subscription_id":      after.ID,
		"status_after":         after.Status,
		"amount":               after.Amount.String(),
		"total_payments_after": after.TotalPayments,
		"total_amount_after":   after.TotalAmount.String(),
		"next_payment_after":   after.NextPaymentDate.Format("2006-01-02"),
	}
	if before != nil {
		fields["status_before"] = before.Status
		fields["total_payments_before"] = before.TotalPayments
		fields["total_amount_before"] = before.TotalAmount.String()
		fields["next_payment_before"] = before.NextPaymentDate.Format("2006-01-02")
	}
	log.WithFields(fields).Info("Subscription state changed")
}

func auditCertificate(action string, actor domain.Actor, c *domain.TaxCertificate) {
	log.WithFields(log.Fields{
		"audit":              true,
		"action":             action,
		"actor":              actor.UserID,
		"certificate_number": c.CertificateNumber,
		"payment_id":         c.PaymentID,
		"deductible_amount":  c.DeductibleAmount.String(),
		"supersedes_id":      c.SupersedesID,
	}).Info("Tax certificate issued")
}

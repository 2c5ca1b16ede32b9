// Package service holds the donation payment, subscription, refund, document
// and query services. Storage and the payment provider are reached through
// the interfaces declared here.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"donation-service/internal/domain"
	"donation-service/internal/gateway"
	"donation-service/internal/validator"

	"github.com/shopspring/decimal"
)

// PaymentRepository defines data access for payment records
type PaymentRepository interface {
	NextSequence(ctx context.Context, name string) (int64, error)
	CreatePayment(ctx context.Context, p *domain.PaymentRecord) error
	GetPayment(ctx context.Context, id string) (*domain.PaymentRecord, error)
	GetPaymentByOrderID(ctx context.Context, orderID string) (*domain.PaymentRecord, error)
	GetPaymentByReference(ctx context.Context, reference string) (*domain.PaymentRecord, error)
	// ModifyPayment applies fn to the current record under a row lock. When
	// fn fails nothing is written.
	ModifyPayment(ctx context.Context, id string, fn func(*domain.PaymentRecord) error) (*domain.PaymentRecord, error)
	FindPayments(ctx context.Context, filter domain.PaymentFilter) ([]domain.PaymentRecord, error)
}

// SubscriptionRepository defines data access for subscriptions and the
// charge ledger
type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, s *domain.Subscription) error
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	ModifySubscription(ctx context.Context, id string, fn func(*domain.Subscription) error) (*domain.Subscription, error)
	// RecordCharge runs fn at most once per payment id. It reports false
	// when the payment was already booked.
	RecordCharge(ctx context.Context, subscriptionID, paymentID string, fn func(*domain.Subscription) error) (*domain.Subscription, bool, error)
	FindSubscriptions(ctx context.Context, filter domain.SubscriptionFilter) ([]domain.Subscription, error)
	FindDueSubscriptions(ctx context.Context, now time.Time) ([]domain.Subscription, error)
}

// CertificateRepository defines data access for issued tax certificates
type CertificateRepository interface {
	NextSequence(ctx context.Context, name string) (int64, error)
	CreateCertificate(ctx context.Context, c *domain.TaxCertificate) error
	GetCertificateByNumber(ctx context.Context, number string) (*domain.TaxCertificate, error)
	LatestCertificateForPayment(ctx context.Context, paymentID string) (*domain.TaxCertificate, error)
}

// EmailLogRepository defines the interface for email log data access
type EmailLogRepository interface {
	SaveEmailLog(ctx context.Context, l domain.EmailLog) error
}

// Gateway is the payment provider capability.
type Gateway interface {
	CreateOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error)
	CapturePayment(ctx context.Context, orderID string) (*gateway.Capture, error)
	RefundPayment(ctx context.Context, req gateway.RefundRequest) (*gateway.Refund, error)
}

// Archive stores copies of issued documents.
type Archive interface {
	Put(ctx context.Context, filename, contentType string, content []byte, metadata map[string]string) (string, error)
}

type Settings struct {
	Currency          string
	ReceiptPrefix     string
	CertificatePrefix string
	DeductiblePercent decimal.Decimal
	Organization      domain.Organization
	// GatewayTimeout bounds every provider call made on behalf of a user.
	GatewayTimeout time.Duration
	Now            func() time.Time
}

func (s Settings) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s Settings) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.GatewayTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

const receiptSequence = "receipt"

func (s Settings) receiptNumber(seq int64) string {
	return fmt.Sprintf("%s-%06d", s.ReceiptPrefix, seq)
}

// validationError maps validator failures onto the domain taxonomy.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	if validator.IsAmountError(err) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidAmount, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrValidation, err)
}

func authorize(actor domain.Actor, donor domain.Donor) error {
	if !actor.CanManage(donor) {
		return fmt.Errorf("%w: record belongs to another donor", domain.ErrForbidden)
	}
	return nil
}

func requireAdmin(actor domain.Actor, action string) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: only admins may %s", domain.ErrForbidden, action)
	}
	return nil
}

var errUnchanged = errors.New("unchanged")

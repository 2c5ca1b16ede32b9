package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

var PaymentStatuses = []PaymentStatus{PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// CanTransitionTo encodes the payment state machine:
// pending -> completed | failed, completed -> refunded. Everything else is final.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next == PaymentCompleted || next == PaymentFailed
	case PaymentCompleted:
		return next == PaymentRefunded
	case PaymentFailed, PaymentRefunded:
		return false
	}
	return false
}

// Captured reports whether funds were ever collected for the payment.
func (s PaymentStatus) Captured() bool {
	return s == PaymentCompleted || s == PaymentRefunded
}

type Donor struct {
	UserID    string `json:"user_id,omitempty"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	PAN       string `json:"pan,omitempty"`
	Address   string `json:"address,omitempty"`
	Anonymous bool   `json:"anonymous"`
}

// DisplayName is the name shown on public and dashboard listings.
func (d Donor) DisplayName() string {
	if d.Anonymous || d.Name == "" {
		return "Anonymous Donor"
	}
	return d.Name
}

type PaymentRecord struct {
	ID               string          `json:"id"`
	Reference        string          `json:"reference"`
	OrderID          string          `json:"order_id"`
	GatewayPaymentID string          `json:"gateway_payment_id,omitempty"`
	GrossAmount      decimal.Decimal `json:"gross_amount"`
	Fee              decimal.Decimal `json:"fee"`
	NetAmount        decimal.Decimal `json:"net_amount"`
	Currency         string          `json:"currency"`
	Status           PaymentStatus   `json:"status"`
	CampaignID       string          `json:"campaign_id,omitempty"`
	SubscriptionID   string          `json:"subscription_id,omitempty"`
	Donor            Donor           `json:"donor"`
	ReceiptNumber    string          `json:"receipt_number,omitempty"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	RefundedAmount   decimal.Decimal `json:"refunded_amount"`
	RefundReason     string          `json:"refund_reason,omitempty"`
	RefundedAt       *time.Time      `json:"refunded_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	FailedAt         *time.Time      `json:"failed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Version          int64           `json:"-"`
}

// NewPendingPayment builds a payment awaiting capture for a gateway order.
func NewPendingPayment(reference, orderID string, amount decimal.Decimal, currency string, donor Donor, campaignID string, now time.Time) (*PaymentRecord, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: donation amount must be greater than 0", ErrInvalidAmount)
	}
	if reference == "" {
		reference = uuid.NewString()
	}
	return &PaymentRecord{
		ID:             uuid.NewString(),
		Reference:      reference,
		OrderID:        orderID,
		GrossAmount:    amount,
		Fee:            decimal.Zero,
		NetAmount:      amount,
		Currency:       currency,
		Status:         PaymentPending,
		CampaignID:     campaignID,
		Donor:          donor,
		RefundedAmount: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (p *PaymentRecord) transitionError(next PaymentStatus) error {
	return fmt.Errorf("%w: payment %s cannot move from %s to %s", ErrInvalidTransition, p.ID, p.Status, next)
}

// Complete records a successful capture. The receipt number is only taken
// when the payment has none yet.
func (p *PaymentRecord) Complete(gatewayPaymentID string, fee decimal.Decimal, receiptNumber string, at time.Time) error {
	if !p.Status.CanTransitionTo(PaymentCompleted) {
		return p.transitionError(PaymentCompleted)
	}
	if fee.IsNegative() || fee.GreaterThan(p.GrossAmount) {
		return fmt.Errorf("%w: fee %s outside 0..%s", ErrInvalidAmount, fee, p.GrossAmount)
	}
	if p.ReceiptNumber == "" {
		if receiptNumber == "" {
			return fmt.Errorf("%w: receipt number is required on completion", ErrValidation)
		}
		p.ReceiptNumber = receiptNumber
	}
	if gatewayPaymentID != "" {
		p.GatewayPaymentID = gatewayPaymentID
	}
	p.Fee = fee
	p.NetAmount = p.GrossAmount.Sub(fee)
	p.Status = PaymentCompleted
	p.CompletedAt = &at
	p.UpdatedAt = at
	return nil
}

// Fail records a hard decline. Only pending payments can fail.
func (p *PaymentRecord) Fail(reason string, at time.Time) error {
	if !p.Status.CanTransitionTo(PaymentFailed) {
		return p.transitionError(PaymentFailed)
	}
	p.Status = PaymentFailed
	p.FailureReason = reason
	p.FailedAt = &at
	p.UpdatedAt = at
	return nil
}

// CheckRefund validates a refund request without changing the record.
// State is checked before amount.
func (p *PaymentRecord) CheckRefund(amount decimal.Decimal) error {
	if p.Status != PaymentCompleted {
		return fmt.Errorf("%w: payment %s is %s, only completed payments can be refunded", ErrInvalidState, p.ID, p.Status)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: refund amount must be greater than 0", ErrInvalidAmount)
	}
	if amount.Add(p.RefundedAmount).GreaterThan(p.GrossAmount) {
		return fmt.Errorf("%w: refund of %s exceeds refundable balance %s", ErrInvalidAmount, amount, p.RefundableAmount())
	}
	return nil
}

// Refund adds amount to the cumulative refund. The status flips to refunded
// only once the whole gross amount has been returned.
func (p *PaymentRecord) Refund(amount decimal.Decimal, reason string, at time.Time) error {
	if err := p.CheckRefund(amount); err != nil {
		return err
	}
	p.RefundedAmount = p.RefundedAmount.Add(amount)
	p.RefundReason = reason
	p.RefundedAt = &at
	p.UpdatedAt = at
	if p.RefundedAmount.Equal(p.GrossAmount) {
		p.Status = PaymentRefunded
	}
	return nil
}

func (p *PaymentRecord) RefundableAmount() decimal.Decimal {
	if p.Status != PaymentCompleted {
		return decimal.Zero
	}
	return p.GrossAmount.Sub(p.RefundedAmount)
}

package domain

import (
	"fmt"
	"time"

	"donation-service/internal/billing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Frequency string

const (
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	return f.Months() > 0
}

// Months is the length of one billing period.
func (f Frequency) Months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencyYearly:
		return 12
	}
	return 0
}

// Next returns the charge date one period after from. Calendar days are
// counted in IST whatever zone from arrives in.
func (f Frequency) Next(from time.Time) time.Time {
	return billing.AddMonths(from.In(billing.IST), f.Months())
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

var SubscriptionStatuses = []SubscriptionStatus{SubscriptionActive, SubscriptionPaused, SubscriptionCancelled, SubscriptionExpired}

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionPaused, SubscriptionCancelled, SubscriptionExpired:
		return true
	}
	return false
}

func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionCancelled || s == SubscriptionExpired
}

// CanTransitionTo encodes the subscription state machine:
// active -> paused | cancelled | expired, paused -> active | cancelled.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	switch s {
	case SubscriptionActive:
		return next == SubscriptionPaused || next == SubscriptionCancelled || next == SubscriptionExpired
	case SubscriptionPaused:
		return next == SubscriptionActive || next == SubscriptionCancelled
	case SubscriptionCancelled, SubscriptionExpired:
		return false
	}
	return false
}

type Subscription struct {
	ID              string             `json:"id"`
	Donor           Donor              `json:"donor"`
	CampaignID      string             `json:"campaign_id,omitempty"`
	Amount          decimal.Decimal    `json:"amount"`
	Currency        string             `json:"currency"`
	Frequency       Frequency          `json:"frequency"`
	Status          SubscriptionStatus `json:"status"`
	NextPaymentDate time.Time          `json:"-"`
	TotalPayments   int64              `json:"total_payments"`
	TotalAmount     decimal.Decimal    `json:"total_amount"`
	LastPaymentID   string             `json:"last_payment_id,omitempty"`
	LastPaymentAt   *time.Time         `json:"last_payment_at,omitempty"`
	EndReason       string             `json:"end_reason,omitempty"`
	PausedAt        *time.Time         `json:"paused_at,omitempty"`
	CancelledAt     *time.Time         `json:"cancelled_at,omitempty"`
	ExpiredAt       *time.Time         `json:"expired_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	Version         int64              `json:"-"`
}

// NewSubscription starts an active subscription whose first charge falls due on firstCharge.
func NewSubscription(donor Donor, campaignID string, amount decimal.Decimal, currency string, freq Frequency, firstCharge, now time.Time) (*Subscription, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: subscription amount must be greater than 0", ErrInvalidAmount)
	}
	if !freq.Valid() {
		return nil, fmt.Errorf("%w: unknown frequency %q", ErrValidation, freq)
	}
	return &Subscription{
		ID:              uuid.NewString(),
		Donor:           donor,
		CampaignID:      campaignID,
		Amount:          amount,
		Currency:        currency,
		Frequency:       freq,
		Status:          SubscriptionActive,
		NextPaymentDate: firstCharge,
		TotalAmount:     decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *Subscription) transition(next SubscriptionStatus, at time.Time) error {
	if !s.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: subscription %s cannot move from %s to %s", ErrInvalidTransition, s.ID, s.Status, next)
	}
	s.Status = next
	s.UpdatedAt = at
	return nil
}

// Pause suspends charging. The schedule is kept as is.
func (s *Subscription) Pause(at time.Time) error {
	if err := s.transition(SubscriptionPaused, at); err != nil {
		return err
	}
	s.PausedAt = &at
	return nil
}

// Resume reactivates a paused subscription without touching NextPaymentDate,
// so an overdue date is charged on the next scan.
func (s *Subscription) Resume(at time.Time) error {
	if s.Status != SubscriptionPaused {
		return fmt.Errorf("%w: subscription %s is %s, only paused subscriptions can resume", ErrInvalidTransition, s.ID, s.Status)
	}
	if err := s.transition(SubscriptionActive, at); err != nil {
		return err
	}
	s.PausedAt = nil
	return nil
}

func (s *Subscription) Cancel(reason string, at time.Time) error {
	if err := s.transition(SubscriptionCancelled, at); err != nil {
		return err
	}
	s.CancelledAt = &at
	s.EndReason = reason
	return nil
}

// Expire ends an active subscription after a scheduled charge failed.
func (s *Subscription) Expire(reason string, at time.Time) error {
	if err := s.transition(SubscriptionExpired, at); err != nil {
		return err
	}
	s.ExpiredAt = &at
	s.EndReason = reason
	return nil
}

// ApplyCharge books a successful charge. Outside the active state the charge
// counts as a one-off donation and nothing changes. The next date advances
// from the previous scheduled date, not from the charge time.
func (s *Subscription) ApplyCharge(paymentID string, amount decimal.Decimal, at time.Time) bool {
	if s.Status != SubscriptionActive {
		return false
	}
	s.TotalPayments++
	s.TotalAmount = s.TotalAmount.Add(amount)
	s.NextPaymentDate = s.Frequency.Next(s.NextPaymentDate)
	s.LastPaymentID = paymentID
	s.LastPaymentAt = &at
	s.UpdatedAt = at
	return true
}

// NextPayment reports the next charge date. It is only meaningful while active.
func (s *Subscription) NextPayment() (time.Time, bool) {
	if s.Status != SubscriptionActive {
		return time.Time{}, false
	}
	return s.NextPaymentDate, true
}

// IsDue reports whether the subscription should be charged at now.
func (s *Subscription) IsDue(now time.Time) bool {
	return s.Status == SubscriptionActive && !s.NextPaymentDate.After(now)
}

// ChargeReference is the merchant reference for the charge of the current
// period. Repeated scans of the same period produce the same reference.
func (s *Subscription) ChargeReference() string {
	return fmt.Sprintf("SUB-%s-%s", s.ID, s.NextPaymentDate.In(billing.IST).Format("20060102"))
}

package service

import (
	"context"
	"fmt"
	"time"

	"donation-service/internal/billing"
	"donation-service/internal/domain"
	"donation-service/internal/money"

	"github.com/shopspring/decimal"
)

// PaymentView is the read model shared by the admin and donor dashboards.
type PaymentView struct {
	domain.PaymentRecord
	DonorDisplayName string          `json:"donor_display_name"`
	FormattedAmount  string          `json:"formatted_amount"`
	RefundableAmount decimal.Decimal `json:"refundable_amount"`
	ReceiptAvailable bool            `json:"receipt_available"`
}

func NewPaymentView(p domain.PaymentRecord) PaymentView {
	return PaymentView{
		PaymentRecord:    p,
		DonorDisplayName: p.Donor.DisplayName(),
		FormattedAmount:  money.Format(p.GrossAmount),
		RefundableAmount: p.RefundableAmount(),
		ReceiptAvailable: p.Status.Captured(),
	}
}

// SubscriptionView exposes the next payment date only while active.
type SubscriptionView struct {
	domain.Subscription
	DonorDisplayName     string     `json:"donor_display_name"`
	FormattedAmount      string     `json:"formatted_amount"`
	FormattedTotalAmount string     `json:"formatted_total_amount"`
	NextPaymentDate      *time.Time `json:"next_payment_date,omitempty"`
	DaysUntilNextPayment *int       `json:"days_until_next_payment,omitempty"`
}

func NewSubscriptionView(s domain.Subscription, now time.Time) SubscriptionView {
	v := SubscriptionView{
		Subscription:         s,
		DonorDisplayName:     s.Donor.DisplayName(),
		FormattedAmount:      money.Format(s.Amount),
		FormattedTotalAmount: money.Format(s.TotalAmount),
	}
	if next, ok := s.NextPayment(); ok {
		days := billing.DaysUntil(now.In(billing.IST), next.In(billing.IST))
		v.NextPaymentDate = &next
		v.DaysUntilNextPayment = &days
	}
	return v
}

type PaymentQuery struct {
	Filter domain.PaymentFilter
	Page   domain.Page
}

type PaymentList struct {
	Items []PaymentView       `json:"items"`
	Total int                 `json:"total"`
	Page  domain.Page         `json:"pagination"`
	Stats domain.PaymentStats `json:"stats"`
}

type SubscriptionQuery struct {
	Filter domain.SubscriptionFilter
	Page   domain.Page
}

type SubscriptionList struct {
	Items []SubscriptionView       `json:"items"`
	Total int                      `json:"total"`
	Page  domain.Page              `json:"pagination"`
	Stats domain.SubscriptionStats `json:"stats"`
}

type QueryService struct {
	payments      PaymentRepository
	subscriptions SubscriptionRepository
	settings      Settings
}

func NewQueryService(payments PaymentRepository, subscriptions SubscriptionRepository, settings Settings) *QueryService {
	return &QueryService{payments: payments, subscriptions: subscriptions, settings: settings}
}

// ListPayments returns one page of the filtered payments and statistics over
// the whole filtered set. Donors only ever see their own payments.
func (s *QueryService) ListPayments(ctx context.Context, actor domain.Actor, q PaymentQuery) (*PaymentList, error) {
	filter := q.Filter
	if !actor.IsAdmin() {
		if err := requireIdentity(actor); err != nil {
			return nil, err
		}
		filter.DonorEmail = ""
		filter.Owner = &actor
	}
	rows, err := s.payments.FindPayments(ctx, filter)
	if err != nil {
		return nil, err
	}
	page := q.Page.Normalize()
	start, end := page.Bounds(len(rows))
	items := make([]PaymentView, 0, end-start)
	for _, p := range rows[start:end] {
		items = append(items, NewPaymentView(p))
	}
	return &PaymentList{
		Items: items,
		Total: len(rows),
		Page:  page,
		Stats: domain.ComputePaymentStats(rows),
	}, nil
}

func (s *QueryService) ListSubscriptions(ctx context.Context, actor domain.Actor, q SubscriptionQuery) (*SubscriptionList, error) {
	filter := q.Filter
	if !actor.IsAdmin() {
		if err := requireIdentity(actor); err != nil {
			return nil, err
		}
		filter.DonorEmail = ""
		filter.Owner = &actor
	}
	rows, err := s.subscriptions.FindSubscriptions(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := s.settings.now()
	page := q.Page.Normalize()
	start, end := page.Bounds(len(rows))
	items := make([]SubscriptionView, 0, end-start)
	for _, sub := range rows[start:end] {
		items = append(items, NewSubscriptionView(sub, now))
	}
	return &SubscriptionList{
		Items: items,
		Total: len(rows),
		Page:  page,
		Stats: domain.ComputeSubscriptionStats(rows),
	}, nil
}

func requireIdentity(actor domain.Actor) error {
	if actor.UserID == "" && actor.Email == "" {
		return fmt.Errorf("%w: listing needs an identified donor", domain.ErrForbidden)
	}
	return nil
}

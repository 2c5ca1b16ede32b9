package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"donation-service/internal/domain"
	"donation-service/internal/gateway"

	log "github.com/sirupsen/logrus"
)

// ChargeReport summarizes one billing scan.
type ChargeReport struct {
	Due       int      `json:"due"`
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Pending   int      `json:"pending"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// Scheduler charges subscriptions that fell due. Each period has a fixed
// merchant reference, so rerunning a scan picks up the existing charge
// instead of opening a new one.
type Scheduler struct {
	subscriptions *SubscriptionService
	payments      *PaymentService
	paymentRepo   PaymentRepository
	gateway       Gateway
	settings      Settings
}

func NewScheduler(subscriptions *SubscriptionService, payments *PaymentService, paymentRepo PaymentRepository, gw Gateway, settings Settings) *Scheduler {
	return &Scheduler{subscriptions: subscriptions, payments: payments, paymentRepo: paymentRepo, gateway: gw, settings: settings}
}

func (s *Scheduler) ChargeDue(ctx context.Context, now time.Time) (ChargeReport, error) {
	var report ChargeReport
	due, err := s.subscriptions.ListDue(ctx, now)
	if err != nil {
		return report, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	report.Due = len(due)
	log.WithFields(log.Fields{"due": len(due), "as_of": now.Format(time.RFC3339)}).Info("Starting subscription billing scan")

	for i := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		sub := &due[i]
		logCtx := log.WithFields(log.Fields{"subscription_id": sub.ID, "reference": sub.ChargeReference()})

		p, err := s.chargeFor(ctx, sub)
		if err != nil {
			logCtx.WithError(err).Error("Could not prepare subscription charge")
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", sub.ID, err))
			report.Pending++
			continue
		}
		if p.Status != domain.PaymentPending {
			s.reconcile(ctx, p)
			logCtx.WithField("status", p.Status).Info("Charge for this period already settled")
			report.Skipped++
			continue
		}

		report.Attempted++
		captured, err := s.payments.Capture(ctx, domain.System, p.ID)
		if err != nil {
			logCtx.WithError(err).Warn("Subscription charge not captured, will retry on next scan")
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", sub.ID, err))
			report.Pending++
			continue
		}
		switch captured.Status {
		case domain.PaymentCompleted:
			report.Succeeded++
		case domain.PaymentFailed:
			report.Failed++
		default:
			report.Pending++
		}
	}

	log.WithFields(log.Fields{
		"due":       report.Due,
		"attempted": report.Attempted,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"pending":   report.Pending,
		"skipped":   report.Skipped,
	}).Info("Subscription billing scan finished")
	return report, nil
}

// chargeFor returns the payment for the subscription's current period,
// opening a gateway order for it when none exists yet.
func (s *Scheduler) chargeFor(ctx context.Context, sub *domain.Subscription) (*domain.PaymentRecord, error) {
	reference := sub.ChargeReference()
	existing, err := s.paymentRepo.GetPaymentByReference(ctx, reference)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	gctx, cancel := s.settings.gatewayContext(ctx)
	defer cancel()
	order, err := s.gateway.CreateOrder(gctx, gateway.OrderRequest{
		Reference: reference,
		Amount:    sub.Amount,
		Currency:  sub.Currency,
		Donor:     sub.Donor,
	})
	if err != nil {
		return nil, domain.NewGatewayError("create_order", err)
	}
	p, err := s.payments.CreatePending(ctx, domain.System, PendingRequest{
		Reference:      reference,
		OrderID:        order.OrderID,
		Amount:         sub.Amount,
		Donor:          sub.Donor,
		CampaignID:     sub.CampaignID,
		SubscriptionID: sub.ID,
	})
	if errors.Is(err, domain.ErrConflict) {
		return s.paymentRepo.GetPaymentByReference(ctx, reference)
	}
	return p, err
}

// reconcile replays the subscription side effect of a settled charge in case
// an earlier run stopped between the payment and the schedule update.
func (s *Scheduler) reconcile(ctx context.Context, p *domain.PaymentRecord) {
	var err error
	switch {
	case p.Status.Captured():
		_, err = s.subscriptions.HandleChargeSuccess(ctx, p)
	case p.Status == domain.PaymentFailed:
		_, err = s.subscriptions.HandleChargeFailure(ctx, p)
	}
	if err != nil {
		log.WithFields(log.Fields{"payment_id": p.ID, "error": err}).Error("Failed to reconcile subscription charge")
	}
}

package service

import (
	"context"
	"errors"
	"fmt"

	"donation-service/internal/domain"
	"donation-service/internal/gateway"
	"donation-service/internal/validator"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// ChargeHandler reacts to the outcome of payments linked to a subscription.
type ChargeHandler interface {
	HandleChargeSuccess(ctx context.Context, p *domain.PaymentRecord) (*domain.Subscription, error)
	HandleChargeFailure(ctx context.Context, p *domain.PaymentRecord) (*domain.Subscription, error)
}

// CompletionNotifier is told about every payment that reached completed.
type CompletionNotifier interface {
	PaymentCompleted(ctx context.Context, p *domain.PaymentRecord)
}

type DonationRequest struct {
	Donor      domain.Donor
	Amount     decimal.Decimal
	CampaignID string
}

type PendingRequest struct {
	Reference      string
	OrderID        string
	Amount         decimal.Decimal
	Donor          domain.Donor
	CampaignID     string
	SubscriptionID string
}

type PaymentService struct {
	repo     PaymentRepository
	gateway  Gateway
	charges  ChargeHandler
	notifier CompletionNotifier
	settings Settings
}

func NewPaymentService(repo PaymentRepository, gw Gateway, charges ChargeHandler, notifier CompletionNotifier, settings Settings) *PaymentService {
	return &PaymentService{repo: repo, gateway: gw, charges: charges, notifier: notifier, settings: settings}
}

// CreateDonation opens a gateway order for a one-time donation and records
// it as pending. Nothing is stored when the gateway refuses the order.
func (s *PaymentService) CreateDonation(ctx context.Context, actor domain.Actor, req DonationRequest) (*domain.PaymentRecord, *gateway.Order, error) {
	if err := validator.ValidateAmount(req.Amount); err != nil {
		return nil, nil, validationError(err)
	}
	if err := validator.ValidateDonor(req.Donor); err != nil {
		return nil, nil, validationError(err)
	}
	donor := req.Donor
	if !actor.IsAdmin() && actor.UserID != "" {
		donor.UserID = actor.UserID
	}

	reference := uuid.NewString()
	gctx, cancel := s.settings.gatewayContext(ctx)
	defer cancel()
	order, err := s.gateway.CreateOrder(gctx, gateway.OrderRequest{
		Reference: reference,
		Amount:    req.Amount,
		Currency:  s.settings.Currency,
		Donor:     donor,
	})
	if err != nil {
		log.WithFields(log.Fields{"reference": reference, "error": err}).Error("Gateway order creation failed")
		return nil, nil, domain.NewGatewayError("create_order", err)
	}

	p, err := s.CreatePending(ctx, actor, PendingRequest{
		Reference:  reference,
		OrderID:    order.OrderID,
		Amount:     req.Amount,
		Donor:      donor,
		CampaignID: req.CampaignID,
	})
	if err != nil {
		return nil, nil, err
	}
	return p, order, nil
}

// CreatePending stores a payment awaiting capture. It has no receipt number.
func (s *PaymentService) CreatePending(ctx context.Context, actor domain.Actor, req PendingRequest) (*domain.PaymentRecord, error) {
	p, err := domain.NewPendingPayment(req.Reference, req.OrderID, req.Amount, s.settings.Currency, req.Donor, req.CampaignID, s.settings.now())
	if err != nil {
		return nil, err
	}
	p.SubscriptionID = req.SubscriptionID
	if err := s.repo.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	auditPayment("payment.created", actor, nil, p)
	return p, nil
}

// Get returns a payment the actor may see.
func (s *PaymentService) Get(ctx context.Context, actor domain.Actor, id string) (*domain.PaymentRecord, error) {
	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, p.Donor); err != nil {
		return nil, err
	}
	return p, nil
}

// MarkCompleted moves a pending payment to completed and assigns its receipt
// number. Linked subscriptions are advanced and the receipt email is queued.
func (s *PaymentService) MarkCompleted(ctx context.Context, actor domain.Actor, id, gatewayPaymentID string, fee decimal.Decimal) (*domain.PaymentRecord, error) {
	current, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(domain.PaymentCompleted) {
		return nil, fmt.Errorf("%w: payment %s cannot move from %s to %s", domain.ErrInvalidTransition, id, current.Status, domain.PaymentCompleted)
	}

	// The sequence is reserved outside the row lock. A lost race leaves a gap
	// in receipt numbers, never a duplicate.
	receiptNumber := current.ReceiptNumber
	if receiptNumber == "" {
		seq, err := s.repo.NextSequence(ctx, receiptSequence)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve receipt number: %w", err)
		}
		receiptNumber = s.settings.receiptNumber(seq)
	}

	var before domain.PaymentRecord
	p, err := s.repo.ModifyPayment(ctx, id, func(p *domain.PaymentRecord) error {
		before = *p
		return p.Complete(gatewayPaymentID, fee, receiptNumber, s.settings.now())
	})
	if err != nil {
		return nil, err
	}
	auditPayment("payment.completed", actor, &before, p)

	s.afterCompletion(ctx, p)
	return p, nil
}

func (s *PaymentService) afterCompletion(ctx context.Context, p *domain.PaymentRecord) {
	if p.SubscriptionID != "" && s.charges != nil {
		if _, err := s.charges.HandleChargeSuccess(ctx, p); err != nil {
			log.WithFields(log.Fields{
				"payment_id":      p.ID,
				"subscription_id": p.SubscriptionID,
				"error":           err,
			}).Error("Failed to apply subscription charge")
		}
	}
	if s.notifier != nil {
		s.notifier.PaymentCompleted(ctx, p)
	}
}

// MarkFailed records a hard decline. A failed scheduled charge expires its
// subscription.
func (s *PaymentService) MarkFailed(ctx context.Context, actor domain.Actor, id, reason string) (*domain.PaymentRecord, error) {
	var before domain.PaymentRecord
	p, err := s.repo.ModifyPayment(ctx, id, func(p *domain.PaymentRecord) error {
		before = *p
		return p.Fail(reason, s.settings.now())
	})
	if err != nil {
		return nil, err
	}
	auditPayment("payment.failed", actor, &before, p)

	if p.SubscriptionID != "" && s.charges != nil {
		if _, err := s.charges.HandleChargeFailure(ctx, p); err != nil {
			log.WithFields(log.Fields{
				"payment_id":      p.ID,
				"subscription_id": p.SubscriptionID,
				"error":           err,
			}).Error("Failed to expire subscription after failed charge")
		}
	}
	return p, nil
}

// Capture asks the gateway whether the payment was collected. A timeout or
// provider error leaves the payment pending and is returned to the caller.
func (s *PaymentService) Capture(ctx context.Context, actor domain.Actor, id string) (*domain.PaymentRecord, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	switch {
	case p.Status.Captured():
		return p, nil
	case p.Status != domain.PaymentPending:
		return nil, fmt.Errorf("%w: payment %s is %s and cannot be captured", domain.ErrInvalidTransition, p.ID, p.Status)
	}

	gctx, cancel := s.settings.gatewayContext(ctx)
	defer cancel()
	capture, err := s.gateway.CapturePayment(gctx, p.OrderID)
	if err != nil {
		gwErr := domain.NewGatewayError("capture", err)
		log.WithFields(log.Fields{
			"payment_id": p.ID,
			"order_id":   p.OrderID,
			"error":      gwErr,
		}).Warn("Capture failed, payment stays pending")
		return nil, gwErr
	}

	switch capture.Status {
	case gateway.CaptureCaptured:
		return s.MarkCompleted(ctx, actor, p.ID, capture.GatewayPaymentID, capture.Fee)
	case gateway.CaptureDeclined:
		return s.MarkFailed(ctx, actor, p.ID, capture.Reason)
	default:
		return p, nil
	}
}

// HandleGatewayEvent applies a verified provider notification. Replays are
// harmless: terminal payments ignore everything except a repeated capture of
// a subscription charge, which re-runs the idempotent charge handler.
func (s *PaymentService) HandleGatewayEvent(ctx context.Context, ev gateway.Event) error {
	p, err := s.repo.GetPaymentByOrderID(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	logCtx := log.WithFields(log.Fields{
		"payment_id": p.ID,
		"order_id":   ev.OrderID,
		"event":      ev.Status,
		"status":     p.Status,
	})

	switch ev.Status {
	case gateway.CaptureCaptured:
		switch {
		case p.Status == domain.PaymentPending:
			_, err := s.MarkCompleted(ctx, domain.System, p.ID, ev.GatewayPaymentID, ev.Fee)
			if errors.Is(err, domain.ErrInvalidTransition) {
				logCtx.Info("Payment completed concurrently, event ignored")
				return nil
			}
			return err
		case p.Status.Captured():
			if p.SubscriptionID != "" && s.charges != nil {
				if _, err := s.charges.HandleChargeSuccess(ctx, p); err != nil {
					return err
				}
			}
			logCtx.Info("Duplicate capture event ignored")
			return nil
		default:
			logCtx.Error("Capture reported for a failed payment, manual review needed")
			return nil
		}
	case gateway.CaptureDeclined:
		if p.Status != domain.PaymentPending {
			logCtx.Info("Decline for settled payment ignored")
			return nil
		}
		_, err := s.MarkFailed(ctx, domain.System, p.ID, ev.Reason)
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil
		}
		return err
	default:
		logCtx.Debug("Payment still in flight")
		return nil
	}
}

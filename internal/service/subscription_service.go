package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"donation-service/internal/domain"
	"donation-service/internal/validator"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type SubscriptionRequest struct {
	Donor      domain.Donor
	CampaignID string
	Amount     decimal.Decimal
	Frequency  domain.Frequency
	// FirstChargeDate defaults to now.
	FirstChargeDate *time.Time
}

type SubscriptionService struct {
	repo     SubscriptionRepository
	settings Settings
}

func NewSubscriptionService(repo SubscriptionRepository, settings Settings) *SubscriptionService {
	return &SubscriptionService{repo: repo, settings: settings}
}

func (s *SubscriptionService) Create(ctx context.Context, actor domain.Actor, req SubscriptionRequest) (*domain.Subscription, error) {
	if err := validator.ValidateAmount(req.Amount); err != nil {
		return nil, validationError(err)
	}
	if err := validator.ValidateFrequency(req.Frequency); err != nil {
		return nil, validationError(err)
	}
	donor := req.Donor
	if !actor.IsAdmin() {
		donor.UserID = actor.UserID
		if donor.Email == "" {
			donor.Email = actor.Email
		}
		if !strings.EqualFold(donor.Email, actor.Email) {
			return nil, fmt.Errorf("%w: donors can only subscribe for themselves", domain.ErrForbidden)
		}
	}
	if err := validator.ValidateDonor(donor); err != nil {
		return nil, validationError(err)
	}

	now := s.settings.now()
	first := now
	if req.FirstChargeDate != nil {
		first = *req.FirstChargeDate
	}
	sub, err := domain.NewSubscription(donor, req.CampaignID, req.Amount, s.settings.Currency, req.Frequency, first, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	auditSubscription("subscription.created", actor, nil, sub)
	return sub, nil
}

func (s *SubscriptionService) Get(ctx context.Context, actor domain.Actor, id string) (*domain.Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, sub.Donor); err != nil {
		return nil, err
	}
	return sub, nil
}

// transition loads the subscription for the authorization check and then
// applies fn under the row lock.
func (s *SubscriptionService) transition(ctx context.Context, actor domain.Actor, id, action string, fn func(*domain.Subscription, time.Time) error) (*domain.Subscription, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	var before domain.Subscription
	sub, err := s.repo.ModifySubscription(ctx, id, func(sub *domain.Subscription) error {
		before = *sub
		return fn(sub, s.settings.now())
	})
	if err != nil {
		return nil, err
	}
	auditSubscription(action, actor, &before, sub)
	return sub, nil
}

func (s *SubscriptionService) Pause(ctx context.Context, actor domain.Actor, id string) (*domain.Subscription, error) {
	return s.transition(ctx, actor, id, "subscription.paused", func(sub *domain.Subscription, at time.Time) error {
		return sub.Pause(at)
	})
}

// Resume reactivates a paused subscription. An overdue next payment date is
// kept, so the next billing scan charges it straight away.
func (s *SubscriptionService) Resume(ctx context.Context, actor domain.Actor, id string) (*domain.Subscription, error) {
	return s.transition(ctx, actor, id, "subscription.resumed", func(sub *domain.Subscription, at time.Time) error {
		return sub.Resume(at)
	})
}

func (s *SubscriptionService) Cancel(ctx context.Context, actor domain.Actor, id, reason string) (*domain.Subscription, error) {
	return s.transition(ctx, actor, id, "subscription.cancelled", func(sub *domain.Subscription, at time.Time) error {
		return sub.Cancel(reason, at)
	})
}

// Expire ends an active subscription on behalf of the system.
func (s *SubscriptionService) Expire(ctx context.Context, id, reason string) (*domain.Subscription, error) {
	return s.transition(ctx, domain.System, id, "subscription.expired", func(sub *domain.Subscription, at time.Time) error {
		return sub.Expire(reason, at)
	})
}

// HandleChargeSuccess books a completed payment against its subscription.
// Each payment advances the schedule at most once, however often it is
// delivered.
func (s *SubscriptionService) HandleChargeSuccess(ctx context.Context, p *domain.PaymentRecord) (*domain.Subscription, error) {
	if p.SubscriptionID == "" {
		return nil, nil
	}
	if !p.Status.Captured() {
		return nil, fmt.Errorf("%w: payment %s is %s, only captured payments count as charges", domain.ErrInvalidState, p.ID, p.Status)
	}
	var (
		before  domain.Subscription
		applied bool
	)
	sub, booked, err := s.repo.RecordCharge(ctx, p.SubscriptionID, p.ID, func(sub *domain.Subscription) error {
		before = *sub
		applied = sub.ApplyCharge(p.ID, p.GrossAmount, s.settings.now())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record charge %s: %w", p.ID, err)
	}
	logCtx := log.WithFields(log.Fields{"subscription_id": p.SubscriptionID, "payment_id": p.ID})
	switch {
	case !booked:
		return s.applyPeriodCharge(ctx, p, sub)
	case !applied:
		logCtx.WithField("status", sub.Status).Info("Charge on inactive subscription treated as one-off donation")
	default:
		auditSubscription("subscription.charged", domain.System, &before, sub)
	}
	return sub, nil
}

// applyPeriodCharge handles a charge that was booked while the subscription
// was inactive. Once resumed, the period the charge was raised for is still
// the current one, and the charge pays for it. Without this the scheduler
// would find the settled payment under the same reference on every scan and
// never move on.
func (s *SubscriptionService) applyPeriodCharge(ctx context.Context, p *domain.PaymentRecord, current *domain.Subscription) (*domain.Subscription, error) {
	logCtx := log.WithFields(log.Fields{"subscription_id": p.SubscriptionID, "payment_id": p.ID})
	if current.Status != domain.SubscriptionActive || current.ChargeReference() != p.Reference {
		logCtx.Info("Charge already booked, schedule unchanged")
		return current, nil
	}
	var before domain.Subscription
	sub, err := s.repo.ModifySubscription(ctx, p.SubscriptionID, func(sub *domain.Subscription) error {
		before = *sub
		if sub.ChargeReference() != p.Reference || !sub.ApplyCharge(p.ID, p.GrossAmount, s.settings.now()) {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		logCtx.Info("Charge already booked, schedule unchanged")
		return &before, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply charge %s: %w", p.ID, err)
	}
	logCtx.Info("Charge booked while inactive applied to its period")
	auditSubscription("subscription.charged", domain.System, &before, sub)
	return sub, nil
}

// HandleChargeFailure expires an active subscription whose charge was declined.
func (s *SubscriptionService) HandleChargeFailure(ctx context.Context, p *domain.PaymentRecord) (*domain.Subscription, error) {
	if p.SubscriptionID == "" {
		return nil, nil
	}
	var before domain.Subscription
	sub, err := s.repo.ModifySubscription(ctx, p.SubscriptionID, func(sub *domain.Subscription) error {
		before = *sub
		if sub.Status != domain.SubscriptionActive {
			return errUnchanged
		}
		return sub.Expire(fmt.Sprintf("charge %s failed: %s", p.ID, p.FailureReason), s.settings.now())
	})
	if errors.Is(err, errUnchanged) {
		log.WithFields(log.Fields{"subscription_id": p.SubscriptionID, "status": before.Status}).Info("Failed charge on inactive subscription, nothing to expire")
		return &before, nil
	}
	if err != nil {
		return nil, err
	}
	auditSubscription("subscription.expired", domain.System, &before, sub)
	return sub, nil
}

// ListDue returns active subscriptions whose next payment date is not after now.
func (s *SubscriptionService) ListDue(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	return s.repo.FindDueSubscriptions(ctx, now)
}

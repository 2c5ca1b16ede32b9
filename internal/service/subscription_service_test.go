package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"donation-service/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// charge completes a payment linked to the subscription.
func (f *fixture) charge(t *testing.T, sub *domain.Subscription, reference string) *domain.PaymentRecord {
	t.Helper()
	ctx := context.Background()
	p, err := f.payments.CreatePending(ctx, domain.System, PendingRequest{
		Reference: reference, OrderID: "order-" + reference, Amount: sub.Amount, Donor: sub.Donor, SubscriptionID: sub.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	p, err = f.payments.MarkCompleted(ctx, domain.System, p.ID, "tx-"+reference, amount("0"))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCreateSubscription(t *testing.T) {
	ctx := context.Background()

	t.Run("Given no first date When creating Then first charge is now", func(t *testing.T) {
		f := newFixture(t)
		sub, err := f.subscriptions.Create(ctx, donor, SubscriptionRequest{
			Donor: domain.Donor{Name: "Asha"}, Amount: amount("500"), Frequency: domain.FrequencyQuarterly,
		})
		if err != nil {
			t.Fatal(err)
		}
		if !sub.NextPaymentDate.Equal(testNow) || sub.Status != domain.SubscriptionActive {
			t.Errorf("unexpected subscription %+v", sub)
		}
		if sub.Donor.Email != donor.Email || sub.Donor.UserID != donor.UserID {
			t.Errorf("donor not bound to actor: %+v", sub.Donor)
		}
	})

	t.Run("Given donor subscribing for someone else When creating Then forbidden", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.subscriptions.Create(ctx, donor, SubscriptionRequest{
			Donor: domain.Donor{Name: "Ravi", Email: other.Email}, Amount: amount("500"), Frequency: domain.FrequencyMonthly,
		})
		if !errors.Is(err, domain.ErrForbidden) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("Given unknown frequency When creating Then validation error", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.subscriptions.Create(ctx, donor, SubscriptionRequest{
			Donor: domain.Donor{Name: "Asha"}, Amount: amount("500"), Frequency: "weekly",
		})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestSubscriptionTransitions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		actor   domain.Actor
		steps   []string
		want    domain.SubscriptionStatus
		wantErr error
	}{
		{name: "Given active When pausing Then paused", actor: donor, steps: []string{"pause"}, want: domain.SubscriptionPaused},
		{name: "Given paused When resuming Then active", actor: donor, steps: []string{"pause", "resume"}, want: domain.SubscriptionActive},
		{name: "Given paused When cancelling Then cancelled", actor: admin, steps: []string{"pause", "cancel"}, want: domain.SubscriptionCancelled},
		{name: "Given active When resuming Then invalid transition", actor: donor, steps: []string{"resume"}, want: domain.SubscriptionActive, wantErr: domain.ErrInvalidTransition},
		{name: "Given cancelled When resuming Then invalid transition", actor: donor, steps: []string{"cancel", "resume"}, want: domain.SubscriptionCancelled, wantErr: domain.ErrInvalidTransition},
		{name: "Given expired When pausing Then invalid transition", actor: admin, steps: []string{"expire", "pause"}, want: domain.SubscriptionExpired, wantErr: domain.ErrInvalidTransition},
		{name: "Given paused When expiring Then invalid transition", actor: admin, steps: []string{"pause", "expire"}, want: domain.SubscriptionPaused, wantErr: domain.ErrInvalidTransition},
		{name: "Given another donor When pausing Then forbidden", actor: other, steps: []string{"pause"}, want: domain.SubscriptionActive, wantErr: domain.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sub := f.subscription(t, "500", domain.FrequencyMonthly, date(2024, time.July, 1))

			var err error
			for _, step := range tt.steps {
				switch step {
				case "pause":
					_, err = f.subscriptions.Pause(ctx, tt.actor, sub.ID)
				case "resume":
					_, err = f.subscriptions.Resume(ctx, tt.actor, sub.ID)
				case "cancel":
					_, err = f.subscriptions.Cancel(ctx, tt.actor, sub.ID, "moving abroad")
				case "expire":
					_, err = f.subscriptions.Expire(ctx, sub.ID, "card expired")
				}
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && err != nil {
				t.Fatal(err)
			}
			got, _ := f.store.GetSubscription(ctx, sub.ID)
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
		})
	}
}

func TestChargeSuccessAdvancesWithoutDrift(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscription(t, "500", domain.FrequencyMonthly, date(2024, time.January, 31))

	f.charge(t, sub, "c1")
	got, _ := f.store.GetSubscription(ctx, sub.ID)
	if !got.NextPaymentDate.Equal(date(2024, time.February, 29)) {
		t.Fatalf("after first charge next = %s, want 2024-02-29", got.NextPaymentDate)
	}

	f.charge(t, sub, "c2")
	got, _ = f.store.GetSubscription(ctx, sub.ID)
	if !got.NextPaymentDate.Equal(date(2024, time.March, 29)) {
		t.Errorf("after second charge next = %s, want 2024-03-29", got.NextPaymentDate)
	}
	if got.TotalPayments != 2 || !got.TotalAmount.Equal(amount("1000")) {
		t.Errorf("totals = %d / %s", got.TotalPayments, got.TotalAmount)
	}
}

func TestChargeWhilePausedIsOneOff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscription(t, "500", domain.FrequencyMonthly, date(2024, time.January, 15))
	if _, err := f.subscriptions.Pause(ctx, donor, sub.ID); err != nil {
		t.Fatal(err)
	}

	p := f.charge(t, sub, "manual")

	got, _ := f.store.GetSubscription(ctx, sub.ID)
	if got.TotalPayments != 0 || !got.NextPaymentDate.Equal(date(2024, time.January, 15)) {
		t.Errorf("paused subscription changed: %+v", got)
	}
	// A later resume must not pick the old payment up again.
	if _, err := f.subscriptions.Resume(ctx, donor, sub.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.subscriptions.HandleChargeSuccess(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, _ = f.store.GetSubscription(ctx, sub.ID)
	if got.TotalPayments != 0 {
		t.Errorf("booked payment was applied after resume: %+v", got)
	}
}

func TestResumeKeepsOverdueDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscription(t, "500", domain.FrequencyMonthly, date(2024, time.April, 10))
	if _, err := f.subscriptions.Pause(ctx, donor, sub.ID); err != nil {
		t.Fatal(err)
	}
	f.clock.Set(date(2024, time.June, 20))
	resumed, err := f.subscriptions.Resume(ctx, donor, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !resumed.NextPaymentDate.Equal(date(2024, time.April, 10)) {
		t.Errorf("next = %s, want unchanged 2024-04-10", resumed.NextPaymentDate)
	}
	due, err := f.subscriptions.ListDue(ctx, date(2024, time.June, 20))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != sub.ID {
		t.Errorf("resumed overdue subscription not due: %v", due)
	}
}

func TestHandleChargeSuccessRejectsUncapturedPayment(t *testing.T) {
	f := newFixture(t)
	sub := f.subscription(t, "500", domain.FrequencyMonthly, date(2024, time.January, 15))
	p := &domain.PaymentRecord{ID: "p1", SubscriptionID: sub.ID, Status: domain.PaymentPending}
	if _, err := f.subscriptions.HandleChargeSuccess(context.Background(), p); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("err = %v", err)
	}
}

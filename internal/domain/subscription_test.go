package domain

import (
	"errors"
	"testing"
	"time"

	"donation-service/internal/billing"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newSub(t *testing.T, amt int64, freq Frequency, next time.Time) *Subscription {
	t.Helper()
	s, err := NewSubscription(Donor{Name: "Asha", Email: "asha@example.org"}, "", amount(amt), "INR", freq, next, testNow)
	if err != nil {
		t.Fatalf("NewSubscription: %v", err)
	}
	return s
}

func TestSubscriptionStatusTransitions(t *testing.T) {
	allowed := map[SubscriptionStatus][]SubscriptionStatus{
		SubscriptionActive: {SubscriptionPaused, SubscriptionCancelled, SubscriptionExpired},
		SubscriptionPaused: {SubscriptionActive, SubscriptionCancelled},
	}
	for _, from := range SubscriptionStatuses {
		for _, to := range SubscriptionStatuses {
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestApplyCharge(t *testing.T) {
	t.Run("Given monthly 500 due Jan 15 When charged Then totals 1/500 and next Feb 15", func(t *testing.T) {
		s := newSub(t, 500, FrequencyMonthly, day(2024, time.January, 15))
		if !s.ApplyCharge("p1", amount(500), testNow) {
			t.Fatal("charge not applied")
		}
		if s.TotalPayments != 1 || !s.TotalAmount.Equal(amount(500)) {
			t.Errorf("totals = %d/%s", s.TotalPayments, s.TotalAmount)
		}
		if !s.NextPaymentDate.Equal(day(2024, time.February, 15)) {
			t.Errorf("next = %s", s.NextPaymentDate)
		}
	})

	t.Run("Given due Jan 31 When charged twice Then Feb 29 then Mar 29", func(t *testing.T) {
		s := newSub(t, 500, FrequencyMonthly, day(2024, time.January, 31))
		s.ApplyCharge("p1", amount(500), testNow)
		if !s.NextPaymentDate.Equal(day(2024, time.February, 29)) {
			t.Fatalf("first advance = %s, want 2024-02-29", s.NextPaymentDate)
		}
		s.ApplyCharge("p2", amount(500), testNow)
		if !s.NextPaymentDate.Equal(day(2024, time.March, 29)) {
			t.Errorf("second advance = %s, want 2024-03-29", s.NextPaymentDate)
		}
	})

	t.Run("Given IST month end read back as UTC When charged twice Then IST dates Feb 29 then Mar 29", func(t *testing.T) {
		// Postgres hands timestamptz values back in UTC, which puts an IST
		// midnight on the previous day.
		s := newSub(t, 500, FrequencyMonthly, time.Date(2024, time.January, 31, 0, 0, 0, 0, billing.IST).UTC())
		if ref := s.ChargeReference(); ref != "SUB-"+s.ID+"-20240131" {
			t.Errorf("reference = %s", ref)
		}
		s.ApplyCharge("p1", amount(500), testNow)
		if got := s.NextPaymentDate.In(billing.IST).Format(time.DateOnly); got != "2024-02-29" {
			t.Fatalf("first advance = %s, want 2024-02-29", got)
		}
		s.NextPaymentDate = s.NextPaymentDate.UTC()
		s.ApplyCharge("p2", amount(500), testNow)
		if got := s.NextPaymentDate.In(billing.IST).Format(time.DateOnly); got != "2024-03-29" {
			t.Errorf("second advance = %s, want 2024-03-29", got)
		}
	})

	t.Run("Given late processing When charged Then advances from schedule not from now", func(t *testing.T) {
		s := newSub(t, 500, FrequencyQuarterly, day(2024, time.January, 10))
		s.ApplyCharge("p1", amount(500), day(2024, time.March, 1))
		if !s.NextPaymentDate.Equal(day(2024, time.April, 10)) {
			t.Errorf("next = %s, want 2024-04-10", s.NextPaymentDate)
		}
	})

	t.Run("Given paused When charged Then schedule and totals untouched", func(t *testing.T) {
		s := newSub(t, 500, FrequencyYearly, day(2024, time.February, 29))
		_ = s.Pause(testNow)
		if s.ApplyCharge("p1", amount(500), testNow) {
			t.Fatal("charge applied while paused")
		}
		if s.TotalPayments != 0 || !s.NextPaymentDate.Equal(day(2024, time.February, 29)) {
			t.Errorf("paused subscription changed: %+v", s)
		}
	})
}

func TestSubscriptionLifecycle(t *testing.T) {
	s := newSub(t, 100, FrequencyMonthly, day(2024, time.January, 1))
	if err := s.Pause(testNow); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.NextPayment(); ok {
		t.Error("next payment must be absent while paused")
	}
	if err := s.Pause(testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double pause err = %v", err)
	}
	if err := s.Expire("declined", testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("paused -> expired err = %v", err)
	}
	if err := s.Resume(testNow); err != nil {
		t.Fatal(err)
	}
	next, ok := s.NextPayment()
	if !ok || !next.Equal(day(2024, time.January, 1)) {
		t.Errorf("resume must keep past date, got %s %v", next, ok)
	}
	if !s.IsDue(testNow) {
		t.Error("overdue resumed subscription must be due")
	}
	if err := s.Cancel("donor request", testNow); err != nil {
		t.Fatal(err)
	}
	for name, op := range map[string]func() error{
		"pause":  func() error { return s.Pause(testNow) },
		"resume": func() error { return s.Resume(testNow) },
		"cancel": func() error { return s.Cancel("", testNow) },
		"expire": func() error { return s.Expire("", testNow) },
	} {
		if err := op(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s on cancelled: err = %v", name, err)
		}
	}
	if s.IsDue(testNow) {
		t.Error("cancelled subscription must never be due")
	}
}

func TestResumeRequiresPaused(t *testing.T) {
	s := newSub(t, 100, FrequencyMonthly, day(2024, time.January, 1))
	if err := s.Resume(testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("resume active err = %v", err)
	}
}

func TestChargeReferenceIsStablePerPeriod(t *testing.T) {
	s := newSub(t, 100, FrequencyMonthly, day(2024, time.January, 15))
	first := s.ChargeReference()
	if first != s.ChargeReference() {
		t.Error("reference changed without a schedule advance")
	}
	s.ApplyCharge("p1", amount(100), testNow)
	if first == s.ChargeReference() {
		t.Error("reference must change with the period")
	}
}

func TestNewSubscriptionValidation(t *testing.T) {
	if _, err := NewSubscription(Donor{}, "", amount(0), "INR", FrequencyMonthly, testNow, testNow); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("err = %v, want ErrInvalidAmount", err)
	}
	if _, err := NewSubscription(Donor{}, "", amount(10), "INR", Frequency("weekly"), testNow, testNow); !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

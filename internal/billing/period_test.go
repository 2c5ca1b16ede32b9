package billing

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		name   string
		from   time.Time
		months int
		want   time.Time
	}{
		{"Given mid-month When adding one month Then same day next month", date(2024, time.January, 15), 1, date(2024, time.February, 15)},
		{"Given Jan 31 in leap year When adding one month Then clamps to Feb 29", date(2024, time.January, 31), 1, date(2024, time.February, 29)},
		{"Given Jan 31 in common year When adding one month Then clamps to Feb 28", date(2023, time.January, 31), 1, date(2023, time.February, 28)},
		{"Given Feb 29 When adding one month Then day is not re-expanded", date(2024, time.February, 29), 1, date(2024, time.March, 29)},
		{"Given Nov 30 When adding a quarter Then clamps to Feb 29", date(2023, time.November, 30), 3, date(2024, time.February, 29)},
		{"Given Dec 15 When adding a month Then rolls the year", date(2024, time.December, 15), 1, date(2025, time.January, 15)},
		{"Given Feb 29 When adding a year Then clamps to Feb 28", date(2024, time.February, 29), 12, date(2025, time.February, 28)},
		{"Given Mar 31 When adding a year Then same date", date(2024, time.March, 31), 12, date(2025, time.March, 31)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AddMonths(tt.from, tt.months); !got.Equal(tt.want) {
				t.Errorf("AddMonths(%s, %d) = %s, want %s", tt.from.Format(time.DateOnly), tt.months, got.Format(time.DateOnly), tt.want.Format(time.DateOnly))
			}
		})
	}
}

func TestAddMonthsPreservesClock(t *testing.T) {
	from := time.Date(2024, time.May, 31, 9, 30, 0, 0, IST)
	got := AddMonths(from, 1)
	want := time.Date(2024, time.June, 30, 9, 30, 0, 0, IST)
	if !got.Equal(want) {
		t.Errorf("AddMonths = %s, want %s", got, want)
	}
}

func TestFinancialYearOf(t *testing.T) {
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2024, time.April, 1, 0, 0, 0, 0, IST), "2024-25"},
		{time.Date(2025, time.March, 31, 23, 59, 0, 0, IST), "2024-25"},
		{time.Date(2024, time.January, 10, 0, 0, 0, 0, IST), "2023-24"},
		// 19:00 UTC on Mar 31 is already Apr 1 in IST.
		{time.Date(2024, time.March, 31, 19, 0, 0, 0, time.UTC), "2024-25"},
		{time.Date(1999, time.December, 1, 0, 0, 0, 0, IST), "1999-00"},
	}
	for _, tt := range tests {
		if got := FinancialYearOf(tt.at).String(); got != tt.want {
			t.Errorf("FinancialYearOf(%s) = %s, want %s", tt.at, got, tt.want)
		}
	}
}

func TestFinancialYearBounds(t *testing.T) {
	fy := FinancialYear{StartYear: 2024}
	if FinancialYearOf(fy.Start()) != fy || FinancialYearOf(fy.End()) != fy {
		t.Errorf("bounds of %s fall outside the year", fy)
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2024, time.January, 15, 23, 0, 0, 0, time.UTC)
	if got := DaysUntil(now, date(2024, time.February, 15)); got != 31 {
		t.Errorf("DaysUntil = %d, want 31", got)
	}
	if got := DaysUntil(now, date(2024, time.January, 10)); got != -5 {
		t.Errorf("DaysUntil = %d, want -5", got)
	}
}

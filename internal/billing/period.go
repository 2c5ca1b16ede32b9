// Package billing implements calendar arithmetic for recurring charges and
// the April-March financial year used on tax certificates.
package billing

import (
	"fmt"
	"time"
)

// IST is the organization's reporting zone. A fixed offset avoids depending
// on tzdata being present in the container.
var IST = time.FixedZone("IST", 5*60*60+30*60)

// AddMonths moves t forward by n calendar months. When the target month is
// shorter than t's day of month, the day is clamped to the month's last day
// (Jan 31 + 1 -> Feb 28/29). Time of day and location are preserved.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := DaysIn(target.Year(), target.Month()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// DaysIn reports the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysUntil counts whole calendar days from now to t. Negative when t is past.
func DaysUntil(now, t time.Time) int {
	a := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// FinancialYear is the Indian fiscal year running April 1 to March 31,
// identified by the calendar year it starts in.
type FinancialYear struct {
	StartYear int
}

// FinancialYearOf returns the financial year containing t, evaluated in IST.
func FinancialYearOf(t time.Time) FinancialYear {
	local := t.In(IST)
	if local.Month() >= time.April {
		return FinancialYear{StartYear: local.Year()}
	}
	return FinancialYear{StartYear: local.Year() - 1}
}

// String renders the conventional label, e.g. "2024-25".
func (fy FinancialYear) String() string {
	return fmt.Sprintf("%d-%02d", fy.StartYear, (fy.StartYear+1)%100)
}

// Start returns April 1 of the financial year in IST.
func (fy FinancialYear) Start() time.Time {
	return time.Date(fy.StartYear, time.April, 1, 0, 0, 0, 0, IST)
}

// End returns March 31 of the following calendar year in IST.
func (fy FinancialYear) End() time.Time {
	return time.Date(fy.StartYear+1, time.March, 31, 23, 59, 59, 0, IST)
}

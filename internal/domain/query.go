package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentFilter struct {
	Statuses       []PaymentStatus
	From           *time.Time
	To             *time.Time
	CampaignID     string
	SubscriptionID string
	DonorEmail     string
	Owner          *Actor // records the actor owns, see Actor.Owns
	Search         string
}

// Matches applies the filter to a single record. The SQL store mirrors these rules.
func (f PaymentFilter) Matches(p *PaymentRecord) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, p.Status) {
		return false
	}
	if f.From != nil && p.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && p.CreatedAt.After(*f.To) {
		return false
	}
	if f.CampaignID != "" && p.CampaignID != f.CampaignID {
		return false
	}
	if f.SubscriptionID != "" && p.SubscriptionID != f.SubscriptionID {
		return false
	}
	if f.DonorEmail != "" && !strings.EqualFold(p.Donor.Email, f.DonorEmail) {
		return false
	}
	if f.Owner != nil && !f.Owner.Owns(p.Donor) {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		return strings.Contains(strings.ToLower(p.Donor.Name), term) ||
			strings.Contains(strings.ToLower(p.Donor.Email), term) ||
			strings.Contains(strings.ToLower(p.ReceiptNumber), term)
	}
	return true
}

func containsStatus(list []PaymentStatus, s PaymentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type SubscriptionFilter struct {
	Statuses   []SubscriptionStatus
	CampaignID string
	DonorEmail string
	Owner      *Actor
	Search     string
}

func (f SubscriptionFilter) Matches(s *Subscription) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if st == s.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.CampaignID != "" && s.CampaignID != f.CampaignID {
		return false
	}
	if f.DonorEmail != "" && !strings.EqualFold(s.Donor.Email, f.DonorEmail) {
		return false
	}
	if f.Owner != nil && !f.Owner.Owns(s.Donor) {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		return strings.Contains(strings.ToLower(s.Donor.Name), term) ||
			strings.Contains(strings.ToLower(s.Donor.Email), term)
	}
	return true
}

// SortPayments orders most recent first, ties broken by id descending.
func SortPayments(ps []PaymentRecord) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.After(ps[j].CreatedAt)
		}
		return ps[i].ID > ps[j].ID
	})
}

func SortSubscriptions(ss []Subscription) {
	sort.SliceStable(ss, func(i, j int) bool {
		if !ss[i].CreatedAt.Equal(ss[j].CreatedAt) {
			return ss[i].CreatedAt.After(ss[j].CreatedAt)
		}
		return ss[i].ID > ss[j].ID
	})
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Page struct {
	Number int `json:"page"`
	Size   int `json:"page_size"`
}

func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Bounds returns the slice window of the page within total rows.
func (p Page) Bounds(total int) (int, int) {
	start := (p.Number - 1) * p.Size
	if start > total {
		start = total
	}
	end := start + p.Size
	if end > total {
		end = total
	}
	return start, end
}

type PaymentStats struct {
	Count          int                   `json:"count"`
	TotalAmount    decimal.Decimal       `json:"total_amount"`
	TotalFees      decimal.Decimal       `json:"total_fees"`
	TotalNetAmount decimal.Decimal       `json:"total_net_amount"`
	TotalRefunded  decimal.Decimal       `json:"total_refunded"`
	CountByStatus  map[PaymentStatus]int `json:"count_by_status"`
	SuccessRate    float64               `json:"success_rate"`
}

// ComputePaymentStats reduces the given rows. Amount totals cover every row
// passed in, the success rate is completed / (completed + failed) as a
// percentage and 0 when nothing has settled either way.
func ComputePaymentStats(ps []PaymentRecord) PaymentStats {
	stats := PaymentStats{
		TotalAmount:    decimal.Zero,
		TotalFees:      decimal.Zero,
		TotalNetAmount: decimal.Zero,
		TotalRefunded:  decimal.Zero,
		CountByStatus:  make(map[PaymentStatus]int, len(PaymentStatuses)),
	}
	for _, s := range PaymentStatuses {
		stats.CountByStatus[s] = 0
	}
	for i := range ps {
		p := &ps[i]
		stats.Count++
		stats.TotalAmount = stats.TotalAmount.Add(p.GrossAmount)
		stats.TotalFees = stats.TotalFees.Add(p.Fee)
		stats.TotalNetAmount = stats.TotalNetAmount.Add(p.NetAmount)
		stats.TotalRefunded = stats.TotalRefunded.Add(p.RefundedAmount)
		stats.CountByStatus[p.Status]++
	}
	completed := stats.CountByStatus[PaymentCompleted]
	failed := stats.CountByStatus[PaymentFailed]
	if completed+failed > 0 {
		stats.SuccessRate = float64(completed) * 100 / float64(completed+failed)
	}
	return stats
}

type SubscriptionStats struct {
	Count          int                        `json:"count"`
	CountByStatus  map[SubscriptionStatus]int `json:"count_by_status"`
	TotalCollected decimal.Decimal            `json:"total_collected"`
	TotalPayments  int64                      `json:"total_payments"`
}

func ComputeSubscriptionStats(ss []Subscription) SubscriptionStats {
	stats := SubscriptionStats{
		CountByStatus:  make(map[SubscriptionStatus]int, len(SubscriptionStatuses)),
		TotalCollected: decimal.Zero,
	}
	for _, s := range SubscriptionStatuses {
		stats.CountByStatus[s] = 0
	}
	for i := range ss {
		stats.Count++
		stats.CountByStatus[ss[i].Status]++
		stats.TotalCollected = stats.TotalCollected.Add(ss[i].TotalAmount)
		stats.TotalPayments += ss[i].TotalPayments
	}
	return stats
}

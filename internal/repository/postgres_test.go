package repository

import (
	"strings"
	"testing"
	"time"

	"donation-service/internal/domain"
)

func TestPaymentQuery(t *testing.T) {
	from := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		filter   domain.PaymentFilter
		contains []string
		args     int
	}{
		{
			name:     "Given empty filter When building Then no where clause and stable order",
			filter:   domain.PaymentFilter{},
			contains: []string{`ORDER BY created_at DESC, id COLLATE "C" DESC`},
			args:     0,
		},
		{
			name: "Given all filters When building Then placeholders are numbered in order",
			filter: domain.PaymentFilter{
				Statuses:   []domain.PaymentStatus{domain.PaymentCompleted},
				From:       &from,
				CampaignID: "flood",
				DonorEmail: "asha@example.org",
				Search:     "asha",
			},
			contains: []string{
				"status = ANY($1)",
				"created_at >= $2",
				"campaign_id = $3",
				"lower(donor_email) = lower($4)",
				"donor_name ILIKE $5 OR donor_email ILIKE $5 OR receipt_number ILIKE $5",
			},
			args: 5,
		},
		{
			name: "Given owner with id and email When building Then ids decide and email is the fallback",
			filter: domain.PaymentFilter{
				CampaignID: "flood",
				Owner:      &domain.Actor{UserID: "user-1", Email: "asha@example.org"},
			},
			contains: []string{
				"campaign_id = $1",
				"(CASE WHEN donor_user_id <> '' THEN donor_user_id = $2 ELSE lower(donor_email) = lower($3) END)",
			},
			args: 3,
		},
		{
			name:     "Given owner without email When building Then only the user id matches",
			filter:   domain.PaymentFilter{Owner: &domain.Actor{UserID: "user-1"}},
			contains: []string{"WHERE donor_user_id = $1"},
			args:     1,
		},
		{
			name:     "Given owner without user id When building Then the email matches",
			filter:   domain.PaymentFilter{Owner: &domain.Actor{Email: "asha@example.org"}},
			contains: []string{"WHERE lower(donor_email) = lower($1)"},
			args:     1,
		},
		{
			name:     "Given blank search When building Then search is ignored",
			filter:   domain.PaymentFilter{Search: "   "},
			contains: []string{"FROM payments ORDER BY"},
			args:     0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := paymentQuery(tt.filter)
			for _, want := range tt.contains {
				if !strings.Contains(query, want) {
					t.Errorf("query %q missing %q", query, want)
				}
			}
			if len(args) != tt.args {
				t.Errorf("args = %d, want %d", len(args), tt.args)
			}
		})
	}
}

func TestContainsPatternEscapesWildcards(t *testing.T) {
	if got := containsPattern(" 50%_off "); got != `%50\%\_off%` {
		t.Errorf("containsPattern = %q", got)
	}
}

func TestSubscriptionQuery(t *testing.T) {
	query, args := subscriptionQuery(domain.SubscriptionFilter{
		Statuses: []domain.SubscriptionStatus{domain.SubscriptionActive, domain.SubscriptionPaused},
		Search:   "rao",
	})
	if !strings.Contains(query, "status = ANY($1)") || !strings.Contains(query, "donor_name ILIKE $2 OR donor_email ILIKE $2") {
		t.Errorf("unexpected query %q", query)
	}
	if len(args) != 2 {
		t.Errorf("args = %d, want 2", len(args))
	}
}

func TestMigrationURL(t *testing.T) {
	if got := migrationURL("postgres://db/app"); got != "postgres://db/app?x-migrations-table="+MigrationsTable {
		t.Errorf("migrationURL = %s", got)
	}
	if got := migrationURL("postgres://db/app?sslmode=disable"); !strings.HasSuffix(got, "&x-migrations-table="+MigrationsTable) {
		t.Errorf("migrationURL = %s", got)
	}
}

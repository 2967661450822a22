package app

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kopkad/savings-service/internal/domain"
)

func TestCommissionFor(t *testing.T) {
	tests := []struct {
		name           string
		commission     string
		commissionDays int
		earliest       string
		latest         string
		paidCount      int
		want           string
	}{
		{
			name:           "full span charges full commission",
			commission:     "1000",
			commissionDays: 31,
			earliest:       "2025-01-01",
			latest:         "2025-01-31",
			paidCount:      31,
			want:           "1000",
		},
		{
			name:           "half span charges half commission",
			commission:     "1000",
			commissionDays: 30,
			earliest:       "2025-01-01",
			latest:         "2025-01-15",
			paidCount:      15,
			want:           "500",
		},
		{
			name:           "single paid day charges one day's share",
			commission:     "300",
			commissionDays: 30,
			earliest:       "2025-01-10",
			latest:         "2025-01-10",
			paidCount:      1,
			want:           "10",
		},
		{
			name:           "zero commission days charges nothing",
			commission:     "1000",
			commissionDays: 0,
			earliest:       "2025-01-01",
			latest:         "2025-01-31",
			paidCount:      31,
			want:           "0",
		},
		{
			name:           "nothing paid charges nothing",
			commission:     "1000",
			commissionDays: 30,
			paidCount:      0,
			want:           "0",
		},
		{
			name:           "span beyond commission days overshoots proportionally",
			commission:     "300",
			commissionDays: 30,
			earliest:       "2025-01-01",
			latest:         "2025-02-14",
			paidCount:      45,
			want:           "450",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := domain.PlanPaidStats{
				Plan: domain.SavingsPlan{
					CommissionAmount: dec(tt.commission),
					CommissionDays:   tt.commissionDays,
				},
				PaidCount: tt.paidCount,
			}
			if tt.paidCount > 0 {
				stats.EarliestPaid = mustDate(tt.earliest)
				stats.LatestPaid = mustDate(tt.latest)
			}
			got := commissionFor(stats)
			if !got.Equal(dec(tt.want)) {
				t.Fatalf("expected commission %s, got %s", tt.want, got)
			}
		})
	}
}

func TestPayoutFor(t *testing.T) {
	stats := domain.PlanPaidStats{
		Plan: domain.SavingsPlan{
			TrackingNumber:   "1234567890",
			CommissionAmount: dec("1000"),
			CommissionDays:   30,
		},
		TotalPaid:    dec("30000"),
		EarliestPaid: mustDate("2025-01-01"),
		LatestPaid:   mustDate("2025-01-30"),
		PaidCount:    30,
	}

	payout := payoutFor(stats)
	if payout.TrackingNumber != "1234567890" {
		t.Fatalf("expected tracking number to carry over, got %q", payout.TrackingNumber)
	}
	if !payout.Commission.Equal(dec("1000")) {
		t.Fatalf("expected commission 1000, got %s", payout.Commission)
	}
	if !payout.NetPayout.Equal(dec("29000")) {
		t.Fatalf("expected net payout 29000, got %s", payout.NetPayout)
	}
	if payout.DaysSpan != 30 {
		t.Fatalf("expected days span 30, got %d", payout.DaysSpan)
	}
}

func TestPayoutFor_NothingPaid(t *testing.T) {
	payout := payoutFor(domain.PlanPaidStats{
		Plan: domain.SavingsPlan{
			CommissionAmount: dec("1000"),
			CommissionDays:   30,
		},
		TotalPaid: decimal.Zero,
	})
	if !payout.Commission.IsZero() {
		t.Fatalf("expected zero commission, got %s", payout.Commission)
	}
	if !payout.NetPayout.IsZero() {
		t.Fatalf("expected zero net payout, got %s", payout.NetPayout)
	}
	if payout.DaysSpan != 0 {
		t.Fatalf("expected zero days span, got %d", payout.DaysSpan)
	}
}

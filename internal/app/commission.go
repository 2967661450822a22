/**
 * @description
 * Commission proration over elapsed paid days. The flat commission amount on a
 * plan covers `commission_days` days; the fee actually charged scales with the
 * span between the earliest and latest PAID marking, inclusive.
 */

package app

import (
	"github.com/shopspring/decimal"

	"github.com/kopkad/savings-service/internal/domain"
)

// commissionFor prorates the plan's commission over the paid span. A plan
// with commission_days == 0 carries no commission. Invoked on demand by the
// payout paths; never persisted per marking.
func commissionFor(stats domain.PlanPaidStats) decimal.Decimal {
	if stats.Plan.CommissionDays == 0 || stats.PaidCount == 0 {
		return decimal.Zero
	}
	daysSpan := inclusiveDays(stats.EarliestPaid, stats.LatestPaid)
	ratio := decimal.NewFromInt(int64(daysSpan)).Div(decimal.NewFromInt(int64(stats.Plan.CommissionDays)))
	return stats.Plan.CommissionAmount.Mul(ratio).Round(2)
}

// payoutFor computes the prorated commission and net payout for one
// COMPLETED plan.
func payoutFor(stats domain.PlanPaidStats) domain.UnpaidPayout {
	commission := commissionFor(stats)
	daysSpan := 0
	if stats.PaidCount > 0 {
		daysSpan = inclusiveDays(stats.EarliestPaid, stats.LatestPaid)
	}
	return domain.UnpaidPayout{
		TrackingNumber: stats.Plan.TrackingNumber,
		CustomerID:     stats.Plan.CustomerID,
		TotalPaid:      stats.TotalPaid,
		Commission:     commission,
		NetPayout:      stats.TotalPaid.Sub(commission),
		DaysSpan:       daysSpan,
	}
}

/**
 * @description
 * Pure schedule derivation for savings plans. Given plan parameters this file
 * computes the inclusive day count, derives the missing amount field and emits
 * one PENDING marking per day in [start, end].
 *
 * Invariants:
 * - DAILY: target_amount = daily_amount * schedule length.
 * - TARGET: daily_amount = target_amount / schedule length, rounded to 2dp.
 * - sum(marking.amount) == target_amount after generation (within one kobo
 *   for TARGET plans whose division does not land on 2dp exactly).
 */

package app

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kopkad/savings-service/internal/domain"
)

// inclusiveDays counts the calendar days in [start, end], both ends included.
func inclusiveDays(start, end time.Time) int {
	return int(end.Sub(start).Hours()/24) + 1
}

// durationEndDate returns the last scheduled day for a duration in calendar
// months: the day before the same date `months` months later.
func durationEndDate(start time.Time, months int) time.Time {
	return start.AddDate(0, months, 0).AddDate(0, 0, -1)
}

// dailyScheduleSpan validates DAILY plan parameters and returns the end date
// and inclusive day count.
func dailyScheduleSpan(dailyAmount decimal.Decimal, start time.Time, months int) (time.Time, int, error) {
	if months <= 0 {
		return time.Time{}, 0, fmt.Errorf("%w: duration must be at least one month", ErrInvalidSchedule)
	}
	if !dailyAmount.IsPositive() {
		return time.Time{}, 0, fmt.Errorf("%w: daily amount must be positive", ErrInvalidSchedule)
	}
	end := durationEndDate(start, months)
	return end, inclusiveDays(start, end), nil
}

// targetScheduleSpan validates TARGET plan parameters and returns the
// inclusive day count and derived per-day amount.
func targetScheduleSpan(targetAmount decimal.Decimal, start, end time.Time) (int, decimal.Decimal, error) {
	if !targetAmount.IsPositive() {
		return 0, decimal.Zero, fmt.Errorf("%w: target amount must be positive", ErrInvalidSchedule)
	}
	if !end.After(start) {
		return 0, decimal.Zero, fmt.Errorf("%w: end date must be after start date", ErrInvalidSchedule)
	}
	days := inclusiveDays(start, end)
	daily := targetAmount.Div(decimal.NewFromInt(int64(days))).Round(2)
	return days, daily, nil
}

// generateMarkings emits one PENDING marking per day in [start, start+days-1].
func generateMarkings(planID uuid.UUID, start time.Time, days int, perDay decimal.Decimal) []domain.Marking {
	markings := make([]domain.Marking, 0, days)
	for i := 0; i < days; i++ {
		markings = append(markings, domain.Marking{
			ID:            uuid.New(),
			PlanID:        planID,
			ScheduledDate: start.AddDate(0, 0, i),
			Amount:        perDay,
			Status:        domain.MarkingPending,
		})
	}
	return markings
}

// CalculateTargetProjection derives the per-day amount for a prospective
// TARGET plan. Pure; nothing is persisted.
func (s *Service) CalculateTargetProjection(req domain.CreateTargetPlanRequest) (*domain.TargetProjection, error) {
	start, err := domain.ParseDate(req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid start date: %v", ErrValidation, err)
	}
	end, err := domain.ParseDate(req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid end date: %v", ErrValidation, err)
	}
	days, daily, err := targetScheduleSpan(req.TargetAmount, start, end)
	if err != nil {
		return nil, err
	}
	return &domain.TargetProjection{
		DailyAmount:  daily,
		TotalDays:    days,
		TargetAmount: req.TargetAmount,
	}, nil
}

/**
 * @description
 * Plan lifecycle operations: creation (daily and target), edit-in-place with
 * schedule re-derivation, extension/reinitiation after completion, forced
 * termination, deletion, and the read paths (markings, metrics, monthly
 * summary, payout listing).
 *
 * @notes
 * - Creation persists the plan and its full schedule as one unit.
 * - A start-date change regenerates the schedule and is rejected once any
 *   marking is PAID. Trims never touch PAID markings.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kopkad/savings-service/internal/domain"
)

// CreateDailyPlan validates the request, derives the schedule from the
// duration in months and persists the plan with its markings.
func (s *Service) CreateDailyPlan(ctx context.Context, actor domain.Actor, req domain.CreateDailyPlanRequest) (*domain.SavingsPlan, error) {
	if err := s.authorize(actor, ActionCreatePlan, nil); err != nil {
		return nil, err
	}
	start, err := domain.ParseDate(req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid start date: %v", ErrValidation, err)
	}
	end, days, err := dailyScheduleSpan(req.DailyAmount, start, req.DurationMonths)
	if err != nil {
		return nil, err
	}
	if req.CommissionDays < 0 || req.CommissionAmount.IsNegative() {
		return nil, fmt.Errorf("%w: commission parameters must not be negative", ErrValidation)
	}

	member, err := s.directory.CustomerBelongsToBusiness(ctx, req.CustomerID, req.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("%w: customer lookup failed: %v", ErrValidation, err)
	}
	if !member {
		return nil, fmt.Errorf("%w: customer is not registered under this business", ErrValidation)
	}

	trackingNumber, err := s.mintTrackingNumber(ctx)
	if err != nil {
		return nil, err
	}

	plan := &domain.SavingsPlan{
		ID:               uuid.New(),
		CustomerID:       req.CustomerID,
		BusinessID:       req.BusinessID,
		UnitID:           req.UnitID,
		TrackingNumber:   trackingNumber,
		Kind:             domain.PlanKindDaily,
		DailyAmount:      req.DailyAmount,
		DurationMonths:   req.DurationMonths,
		StartDate:        start,
		EndDate:          end,
		TargetAmount:     req.DailyAmount.Mul(decimal.NewFromInt(int64(days))),
		CommissionAmount: req.CommissionAmount,
		CommissionDays:   req.CommissionDays,
		Status:           domain.PlanNotStarted,
		CreatedBy:        actor.UserID,
	}
	markings := generateMarkings(plan.ID, start, days, req.DailyAmount)
	if err := s.repo.CreatePlanWithMarkings(ctx, plan, markings); err != nil {
		return nil, wrapStore(err)
	}
	log.Printf("level=info component=savings_service msg=\"daily plan created\" tracking_number=%s days=%d target=%s",
		plan.TrackingNumber, days, plan.TargetAmount)
	return plan, nil
}

// CreateTargetPlan derives the per-day amount from the target and the
// inclusive day count, then persists the plan with its markings.
func (s *Service) CreateTargetPlan(ctx context.Context, actor domain.Actor, req domain.CreateTargetPlanRequest) (*domain.SavingsPlan, error) {
	if err := s.authorize(actor, ActionCreatePlan, nil); err != nil {
		return nil, err
	}
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
	if req.CommissionDays < 0 || req.CommissionAmount.IsNegative() {
		return nil, fmt.Errorf("%w: commission parameters must not be negative", ErrValidation)
	}

	member, err := s.directory.CustomerBelongsToBusiness(ctx, req.CustomerID, req.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("%w: customer lookup failed: %v", ErrValidation, err)
	}
	if !member {
		return nil, fmt.Errorf("%w: customer is not registered under this business", ErrValidation)
	}

	trackingNumber, err := s.mintTrackingNumber(ctx)
	if err != nil {
		return nil, err
	}

	plan := &domain.SavingsPlan{
		ID:               uuid.New(),
		CustomerID:       req.CustomerID,
		BusinessID:       req.BusinessID,
		UnitID:           req.UnitID,
		TrackingNumber:   trackingNumber,
		Kind:             domain.PlanKindTarget,
		DailyAmount:      daily,
		StartDate:        start,
		EndDate:          end,
		TargetAmount:     req.TargetAmount,
		CommissionAmount: req.CommissionAmount,
		CommissionDays:   req.CommissionDays,
		Status:           domain.PlanNotStarted,
		CreatedBy:        actor.UserID,
	}
	markings := generateMarkings(plan.ID, start, days, daily)
	if err := s.repo.CreatePlanWithMarkings(ctx, plan, markings); err != nil {
		return nil, wrapStore(err)
	}
	log.Printf("level=info component=savings_service msg=\"target plan created\" tracking_number=%s days=%d daily=%s",
		plan.TrackingNumber, days, daily)
	return plan, nil
}

// UpdatePlan edits a plan in place. Amount changes re-price still-PENDING
// markings; span changes trim or extend the schedule; a start-date change
// regenerates it and is only allowed before any marking is PAID.
func (s *Service) UpdatePlan(ctx context.Context, actor domain.Actor, planID uuid.UUID, req domain.UpdatePlanRequest) (*domain.SavingsPlan, error) {
	plan, err := s.repo.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, wrapStore(err)
	}
	if err := s.authorize(actor, ActionUpdatePlan, plan); err != nil {
		return nil, err
	}
	markings, err := s.repo.GetMarkingsByPlan(ctx, planID)
	if err != nil {
		return nil, wrapStore(err)
	}
	hasPaid := false
	for i := range markings {
		if markings[i].Status == domain.MarkingPaid {
			hasPaid = true
			break
		}
	}

	effective := *plan
	startChanged := false
	if req.StartDate != nil {
		start, err := domain.ParseDate(*req.StartDate)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid start date: %v", ErrValidation, err)
		}
		if !start.Equal(plan.StartDate) {
			if hasPaid {
				return nil, fmt.Errorf("%w: start date cannot change after a marking is paid", ErrConflict)
			}
			effective.StartDate = start
			startChanged = true
		}
	}
	if req.DurationMonths != nil {
		effective.DurationMonths = *req.DurationMonths
	}
	if req.EndDate != nil {
		end, err := domain.ParseDate(*req.EndDate)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid end date: %v", ErrValidation, err)
		}
		effective.EndDate = end
	}
	if req.DailyAmount != nil {
		effective.DailyAmount = *req.DailyAmount
	}
	if req.TargetAmount != nil {
		effective.TargetAmount = *req.TargetAmount
	}
	if req.CommissionAmount != nil {
		effective.CommissionAmount = *req.CommissionAmount
	}
	if req.CommissionDays != nil {
		effective.CommissionDays = *req.CommissionDays
	}
	if effective.CommissionDays < 0 || effective.CommissionAmount.IsNegative() {
		return nil, fmt.Errorf("%w: commission parameters must not be negative", ErrValidation)
	}

	// Re-derive the dependent fields for the plan kind.
	var days int
	switch effective.Kind {
	case domain.PlanKindDaily:
		end, n, err := dailyScheduleSpan(effective.DailyAmount, effective.StartDate, effective.DurationMonths)
		if err != nil {
			return nil, err
		}
		effective.EndDate = end
		days = n
		if req.TargetAmount == nil {
			effective.TargetAmount = effective.DailyAmount.Mul(decimal.NewFromInt(int64(n)))
		}
	case domain.PlanKindTarget:
		n, daily, err := targetScheduleSpan(effective.TargetAmount, effective.StartDate, effective.EndDate)
		if err != nil {
			return nil, err
		}
		days = n
		if req.DailyAmount == nil {
			effective.DailyAmount = daily
		}
	default:
		return nil, fmt.Errorf("%w: unknown plan kind %q", ErrValidation, effective.Kind)
	}

	if startChanged {
		fresh := generateMarkings(effective.ID, effective.StartDate, days, effective.DailyAmount)
		if err := s.repo.ReplacePlanSchedule(ctx, &effective, fresh); err != nil {
			return nil, wrapStore(err)
		}
		log.Printf("level=info component=savings_service msg=\"plan rescheduled\" tracking_number=%s days=%d", effective.TrackingNumber, days)
		return &effective, nil
	}

	oldDays := inclusiveDays(plan.StartDate, plan.EndDate)
	if days < oldDays {
		if err := s.repo.DeleteLatestPendingMarkings(ctx, planID, oldDays-days); err != nil {
			return nil, wrapStore(err)
		}
	} else if days > oldDays {
		appendStart := plan.EndDate.AddDate(0, 0, 1)
		extra := generateMarkings(planID, appendStart, days-oldDays, effective.DailyAmount)
		if err := s.repo.InsertMarkings(ctx, extra); err != nil {
			return nil, wrapStore(err)
		}
	}
	if !effective.DailyAmount.Equal(plan.DailyAmount) {
		if err := s.repo.UpdatePendingMarkingAmounts(ctx, planID, effective.DailyAmount); err != nil {
			return nil, wrapStore(err)
		}
	}
	if err := s.repo.UpdatePlan(ctx, &effective); err != nil {
		return nil, wrapStore(err)
	}
	log.Printf("level=info component=savings_service msg=\"plan updated\" tracking_number=%s days=%d", effective.TrackingNumber, days)
	return &effective, nil
}

// ExtendPlan reinitiates a COMPLETED plan: all prior markings are discarded,
// a fresh schedule is generated and the plan returns to NOT_STARTED.
func (s *Service) ExtendPlan(ctx context.Context, actor domain.Actor, req domain.ExtendPlanRequest) (*domain.SavingsPlan, error) {
	plan, err := s.repo.GetPlanByTrackingNumber(ctx, req.TrackingNumber)
	if err != nil {
		return nil, wrapStore(err)
	}
	if err := s.authorize(actor, ActionExtendPlan, plan); err != nil {
		return nil, err
	}
	if plan.Status != domain.PlanCompleted {
		return nil, fmt.Errorf("%w: only a completed plan can be reinitiated", ErrConflict)
	}
	start, err := domain.ParseDate(req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid start date: %v", ErrValidation, err)
	}
	end, days, err := dailyScheduleSpan(req.DailyAmount, start, req.DurationMonths)
	if err != nil {
		return nil, err
	}
	if req.CommissionDays < 0 || req.CommissionAmount.IsNegative() {
		return nil, fmt.Errorf("%w: commission parameters must not be negative", ErrValidation)
	}

	effective := *plan
	effective.Kind = domain.PlanKindDaily
	effective.DailyAmount = req.DailyAmount
	effective.DurationMonths = req.DurationMonths
	effective.StartDate = start
	effective.EndDate = end
	effective.TargetAmount = req.DailyAmount.Mul(decimal.NewFromInt(int64(days)))
	effective.CommissionAmount = req.CommissionAmount
	effective.CommissionDays = req.CommissionDays
	effective.Status = domain.PlanNotStarted

	fresh := generateMarkings(effective.ID, start, days, req.DailyAmount)
	if err := s.repo.ReplacePlanSchedule(ctx, &effective, fresh); err != nil {
		return nil, wrapStore(err)
	}
	log.Printf("level=info component=savings_service msg=\"plan reinitiated\" tracking_number=%s days=%d", effective.TrackingNumber, days)
	return &effective, nil
}

// EndPlan administratively marks a plan COMPLETED regardless of remaining
// PENDING markings. Remaining markings are neither paid nor deleted.
func (s *Service) EndPlan(ctx context.Context, actor domain.Actor, trackingNumber string) (*domain.SavingsPlan, error) {
	plan, err := s.repo.GetPlanByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, wrapStore(err)
	}
	if err := s.authorize(actor, ActionEndPlan, plan); err != nil {
		return nil, err
	}
	if plan.Status == domain.PlanCompleted {
		return plan, nil
	}
	if err := s.repo.UpdatePlanStatus(ctx, plan.ID, domain.PlanCompleted); err != nil {
		return nil, wrapStore(err)
	}
	plan.Status = domain.PlanCompleted
	s.publishPlanCompleted(ctx, plan)
	log.Printf("level=info component=savings_service msg=\"plan force-ended\" tracking_number=%s", trackingNumber)
	return plan, nil
}

// DeletePlan removes a plan and its markings; rejected once any marking is PAID.
func (s *Service) DeletePlan(ctx context.Context, actor domain.Actor, planID uuid.UUID) error {
	plan, err := s.repo.GetPlanByID(ctx, planID)
	if err != nil {
		return wrapStore(err)
	}
	if err := s.authorize(actor, ActionDeletePlan, plan); err != nil {
		return err
	}
	if err := s.repo.DeletePlan(ctx, planID); err != nil {
		return wrapStore(err)
	}
	log.Printf("level=info component=savings_service msg=\"plan deleted\" tracking_number=%s", plan.TrackingNumber)
	return nil
}

// GetMarkings lists a plan's markings by tracking number.
func (s *Service) GetMarkings(ctx context.Context, actor domain.Actor, trackingNumber string) ([]domain.Marking, error) {
	plan, err := s.repo.GetPlanByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, wrapStore(err)
	}
	if err := s.authorize(actor, ActionViewPlan, plan); err != nil {
		return nil, err
	}
	markings, err := s.repo.GetMarkingsByPlan(ctx, plan.ID)
	if err != nil {
		return nil, wrapStore(err)
	}
	return markings, nil
}

// GetMetrics summarizes a plan's progress.
func (s *Service) GetMetrics(ctx context.Context, actor domain.Actor, trackingNumber string) (*domain.PlanMetrics, error) {
	plan, err := s.repo.GetPlanByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, wrapStore(err)
	}
	if err := s.authorize(actor, ActionViewPlan, plan); err != nil {
		return nil, err
	}
	markings, err := s.repo.GetMarkingsByPlan(ctx, plan.ID)
	if err != nil {
		return nil, wrapStore(err)
	}
	marked := decimal.Zero
	pending := 0
	for i := range markings {
		if markings[i].Status == domain.MarkingPaid {
			marked = marked.Add(markings[i].Amount)
		} else {
			pending++
		}
	}
	return &domain.PlanMetrics{
		TrackingNumber: trackingNumber,
		TotalAmount:    plan.TargetAmount,
		AmountMarked:   marked,
		DaysRemaining:  pending,
	}, nil
}

// GetMonthlySummary aggregates PAID amounts per month. Customers see their
// own contributions; agent and admin roles may scope by business.
func (s *Service) GetMonthlySummary(ctx context.Context, actor domain.Actor, businessID *uuid.UUID) ([]domain.MonthlySummaryRow, error) {
	if err := s.authorize(actor, ActionViewPlan, nil); err != nil {
		return nil, err
	}
	var customerID *uuid.UUID
	if !s.policy.OwnershipExempt(actor.Role) {
		customerID = &actor.UserID
		businessID = nil
	}
	rows, err := s.repo.GetMonthlySummary(ctx, customerID, businessID)
	if err != nil {
		return nil, wrapStore(err)
	}
	return rows, nil
}

// ListUnpaidPayouts returns COMPLETED plans awaiting payout with their
// prorated commission and net amount.
func (s *Service) ListUnpaidPayouts(ctx context.Context, actor domain.Actor, businessID *uuid.UUID) ([]domain.UnpaidPayout, error) {
	if err := s.authorize(actor, ActionViewPayouts, nil); err != nil {
		return nil, err
	}
	stats, err := s.repo.ListCompletedPlanPayouts(ctx, businessID)
	if err != nil {
		return nil, wrapStore(err)
	}
	payouts := make([]domain.UnpaidPayout, 0, len(stats))
	for _, st := range stats {
		payouts = append(payouts, payoutFor(st))
	}
	return payouts, nil
}

// GetPayout returns one plan's paid total, prorated commission and net payout.
func (s *Service) GetPayout(ctx context.Context, actor domain.Actor, trackingNumber string) (*domain.UnpaidPayout, error) {
	plan, err := s.repo.GetPlanByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, wrapStore(err)
	}
	if err := s.authorize(actor, ActionViewPlan, plan); err != nil {
		return nil, err
	}
	stats, err := s.repo.GetPaidStatsByPlan(ctx, plan.ID)
	if err != nil {
		return nil, wrapStore(err)
	}
	payout := payoutFor(*stats)
	return &payout, nil
}

func (s *Service) publishPlanCompleted(ctx context.Context, plan *domain.SavingsPlan) {
	if s.eventProducer == nil {
		return
	}
	event := domain.PlanCompletedEvent{
		PlanID:         plan.ID,
		TrackingNumber: plan.TrackingNumber,
		CustomerID:     plan.CustomerID,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, domain.EventPlanCompleted, event); err != nil {
		log.Printf("level=warn component=savings_service msg=\"failed to publish plan completed event\" tracking_number=%s err=%v",
			plan.TrackingNumber, err)
	}
}

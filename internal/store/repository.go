/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the savings-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - github.com/shopspring/decimal: For fixed-point amounts.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kopkad/savings-service/internal/domain"
)

// SettlementResult reports what SettleReference changed inside its
// transaction: the markings that moved to PAID and any plans that advanced
// to COMPLETED under the leading-edge rule.
type SettlementResult struct {
	Settled        []domain.Marking
	CompletedPlans []domain.SavingsPlan
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Plan methods
	CreatePlanWithMarkings(ctx context.Context, plan *domain.SavingsPlan, markings []domain.Marking) error
	GetPlanByID(ctx context.Context, id uuid.UUID) (*domain.SavingsPlan, error)
	GetPlanByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.SavingsPlan, error)
	TrackingNumberExists(ctx context.Context, trackingNumber string) (bool, error)
	UpdatePlan(ctx context.Context, plan *domain.SavingsPlan) error
	UpdatePlanStatus(ctx context.Context, planID uuid.UUID, status domain.PlanStatus) error
	// DeletePlan removes a plan and its markings. It fails with
	// ErrPlanHasPaidMarkings if any marking under the plan is PAID.
	DeletePlan(ctx context.Context, planID uuid.UUID) error
	// ReplacePlanSchedule updates the plan row, deletes every existing
	// marking and inserts the regenerated schedule in one transaction.
	ReplacePlanSchedule(ctx context.Context, plan *domain.SavingsPlan, markings []domain.Marking) error

	// Marking methods
	GetMarkingsByPlan(ctx context.Context, planID uuid.UUID) ([]domain.Marking, error)
	GetMarkingByPlanAndDate(ctx context.Context, planID uuid.UUID, date time.Time) (*domain.Marking, error)
	GetMarkingsByReference(ctx context.Context, reference string) ([]domain.Marking, error)
	InsertMarkings(ctx context.Context, markings []domain.Marking) error
	// UpdatePendingMarkingAmounts re-prices the unclaimed PENDING markings of
	// a plan. Markings under an open payment reference are left at the amount
	// their gateway transaction was created for.
	UpdatePendingMarkingAmounts(ctx context.Context, planID uuid.UUID, amount decimal.Decimal) error
	// DeleteLatestPendingMarkings removes the n most recently scheduled
	// PENDING markings of a plan. PAID markings are never deleted; if fewer
	// than n PENDING markings exist the call fails with ErrScheduleConflict.
	DeleteLatestPendingMarkings(ctx context.Context, planID uuid.UUID, n int) error

	// Payment claim and settlement methods
	// ClaimMarkings stamps every targeted marking with the payment reference
	// and method in one transaction. It fails with ErrMarkingAlreadyClaimed
	// if any marking is not PENDING or already carries a reference, and
	// advances each touched plan from NOT_STARTED to IN_PROGRESS.
	ClaimMarkings(ctx context.Context, ids []uuid.UUID, reference string, method domain.PaymentMethod, virtualAccount *domain.VirtualAccount) error
	// ReleaseClaimedMarkings clears the reference and method from markings
	// that are still PENDING and re-prices them to the plan's current daily
	// amount. Used when the gateway call after a claim fails and when an
	// expired claim is re-initiated.
	ReleaseClaimedMarkings(ctx context.Context, reference string) error
	// SettleReference moves every PENDING marking under the reference to
	// PAID and advances each touched plan to COMPLETED when no PENDING
	// marking remains dated after the latest date settled for that plan.
	// When markedBy is nil the plan's customer is recorded as the marker.
	SettleReference(ctx context.Context, reference string, markedBy *uuid.UUID, paidAt time.Time) (*SettlementResult, error)

	// Aggregate methods
	GetPaidStatsByPlan(ctx context.Context, planID uuid.UUID) (*domain.PlanPaidStats, error)
	ListCompletedPlanPayouts(ctx context.Context, businessID *uuid.UUID) ([]domain.PlanPaidStats, error)
	GetMonthlySummary(ctx context.Context, customerID, businessID *uuid.UUID) ([]domain.MonthlySummaryRow, error)
	ListOverduePendingMarkings(ctx context.Context, before time.Time) ([]domain.OverdueMarking, error)

	// Gateway profile methods
	GetGatewayProfile(ctx context.Context, customerID uuid.UUID) (*domain.GatewayProfile, error)
	UpsertGatewayProfile(ctx context.Context, profile *domain.GatewayProfile) error

	// Close closes the underlying connection pool.
	Close()
}

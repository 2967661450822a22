/**
 * @description
 * This file defines the core domain models for the savings-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - Amounts are held as `decimal.Decimal` in naira with two decimal places.
 *   Kobo (minor units, `int64`) appears only at the payment-gateway boundary.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanKind distinguishes how a savings plan's schedule is derived.
type PlanKind string

const (
	PlanKindDaily  PlanKind = "DAILY"
	PlanKindTarget PlanKind = "TARGET"
)

// PlanStatus is the lifecycle status of a savings plan.
type PlanStatus string

const (
	PlanNotStarted PlanStatus = "NOT_STARTED"
	PlanInProgress PlanStatus = "IN_PROGRESS"
	PlanCompleted  PlanStatus = "COMPLETED"
)

// MarkingStatus is the payment status of a single marking. The only legal
// transition is PENDING -> PAID; a PAID marking never reverts.
type MarkingStatus string

const (
	MarkingPending MarkingStatus = "PENDING"
	MarkingPaid    MarkingStatus = "PAID"
)

// PaymentMethod is how a customer chose to fund one or more markings.
type PaymentMethod string

const (
	MethodCard         PaymentMethod = "CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// Role identifies the kind of actor performing an operation.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleAgent      Role = "agent"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Actor is the authenticated caller of an operation, extracted from the
// request token by the API middleware and consulted by the policy layer.
type Actor struct {
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}

// SavingsPlan represents a customer's daily or target savings commitment.
// This struct maps directly to the `savings_plans` table in the database.
type SavingsPlan struct {
	ID               uuid.UUID       `json:"id"`
	CustomerID       uuid.UUID       `json:"customer_id"`
	BusinessID       uuid.UUID       `json:"business_id"`
	UnitID           *uuid.UUID      `json:"unit_id,omitempty"`
	TrackingNumber   string          `json:"tracking_number"`
	Kind             PlanKind        `json:"kind"`
	DailyAmount      decimal.Decimal `json:"daily_amount"`
	DurationMonths   int             `json:"duration_months"`
	StartDate        time.Time       `json:"start_date"`
	EndDate          time.Time       `json:"end_date"`
	TargetAmount     decimal.Decimal `json:"target_amount"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	CommissionDays   int             `json:"commission_days"`
	Status           PlanStatus      `json:"status"`
	CreatedBy        uuid.UUID       `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Marking is one scheduled contribution obligation within a plan.
// Invariant: (plan_id, scheduled_date) is unique.
type Marking struct {
	ID               uuid.UUID       `json:"id"`
	PlanID           uuid.UUID       `json:"plan_id"`
	ScheduledDate    time.Time       `json:"scheduled_date"`
	Amount           decimal.Decimal `json:"amount"`
	Status           MarkingStatus   `json:"status"`
	PaymentMethod    *PaymentMethod  `json:"payment_method,omitempty"`
	PaymentReference *string         `json:"payment_reference,omitempty"`
	VirtualAccount   *VirtualAccount `json:"virtual_account,omitempty"`
	MarkedByID       *uuid.UUID      `json:"marked_by_id,omitempty"`
	UpdatedBy        *uuid.UUID      `json:"updated_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// VirtualAccount is the dedicated bank account descriptor the gateway issues
// for one customer's bank-transfer contributions.
type VirtualAccount struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// GatewayProfile stores the gateway-side identity created for a customer so
// that a dedicated virtual account is requested once and reused afterwards.
type GatewayProfile struct {
	CustomerID          uuid.UUID       `json:"customer_id"`
	GatewayCustomerCode string          `json:"gateway_customer_code"`
	VirtualAccount      *VirtualAccount `json:"virtual_account,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// CreateDailyPlanRequest is the DTO for creating a DAILY plan. The schedule
// length is derived from the duration in calendar months.
type CreateDailyPlanRequest struct {
	CustomerID       uuid.UUID       `json:"customer_id"`
	BusinessID       uuid.UUID       `json:"business_id"`
	UnitID           *uuid.UUID      `json:"unit_id,omitempty"`
	DailyAmount      decimal.Decimal `json:"daily_amount"`
	DurationMonths   int             `json:"duration_months"`
	StartDate        string          `json:"start_date"` // YYYY-MM-DD
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	CommissionDays   int             `json:"commission_days"`
}

// CreateTargetPlanRequest is the DTO for creating a TARGET plan. The per-day
// amount is derived from the target amount and the inclusive day count.
type CreateTargetPlanRequest struct {
	CustomerID       uuid.UUID       `json:"customer_id"`
	BusinessID       uuid.UUID       `json:"business_id"`
	UnitID           *uuid.UUID      `json:"unit_id,omitempty"`
	TargetAmount     decimal.Decimal `json:"target_amount"`
	StartDate        string          `json:"start_date"` // YYYY-MM-DD
	EndDate          string          `json:"end_date"`   // YYYY-MM-DD
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	CommissionDays   int             `json:"commission_days"`
}

// TargetProjection is the pure calculation result for a prospective TARGET
// plan; nothing is persisted when it is produced.
type TargetProjection struct {
	DailyAmount  decimal.Decimal `json:"daily_amount"`
	TotalDays    int             `json:"total_days"`
	TargetAmount decimal.Decimal `json:"target_amount"`
}

// UpdatePlanRequest carries the editable fields of a plan. Nil fields are
// left untouched. Changing the start date is rejected once any marking is PAID.
type UpdatePlanRequest struct {
	DailyAmount      *decimal.Decimal `json:"daily_amount,omitempty"`
	DurationMonths   *int             `json:"duration_months,omitempty"`
	StartDate        *string          `json:"start_date,omitempty"` // YYYY-MM-DD
	EndDate          *string          `json:"end_date,omitempty"`   // YYYY-MM-DD
	TargetAmount     *decimal.Decimal `json:"target_amount,omitempty"`
	CommissionAmount *decimal.Decimal `json:"commission_amount,omitempty"`
	CommissionDays   *int             `json:"commission_days,omitempty"`
}

// ExtendPlanRequest reinitiates a COMPLETED plan with a fresh schedule.
type ExtendPlanRequest struct {
	TrackingNumber   string          `json:"tracking_number"`
	DailyAmount      decimal.Decimal `json:"daily_amount"`
	DurationMonths   int             `json:"duration_months"`
	StartDate        string          `json:"start_date"` // YYYY-MM-DD
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	CommissionDays   int             `json:"commission_days"`
}

// MarkSingleRequest targets the markings of one plan for payment initiation.
type MarkSingleRequest struct {
	Dates  []string      `json:"dates"` // YYYY-MM-DD, at least one
	Method PaymentMethod `json:"method"`
}

// BulkMarkItem is one (tracking number, date) pair within a bulk initiation.
type BulkMarkItem struct {
	TrackingNumber string `json:"tracking_number"`
	Date           string `json:"date"` // YYYY-MM-DD
}

// BulkMarkRequest lets one payment reference span markings across plans.
type BulkMarkRequest struct {
	Method PaymentMethod  `json:"method"`
	Items  []BulkMarkItem `json:"items"`
}

// InitiationResult is returned after a successful payment initiation. For
// CARD it carries the hosted-checkout URL; for BANK_TRANSFER the dedicated
// virtual account to pay into.
type InitiationResult struct {
	Reference        string          `json:"reference"`
	Method           PaymentMethod   `json:"method"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	MarkingsClaimed  int             `json:"markings_claimed"`
	AuthorizationURL string          `json:"authorization_url,omitempty"`
	VirtualAccount   *VirtualAccount `json:"virtual_account,omitempty"`
}

// PlanMetrics summarizes progress for one plan.
type PlanMetrics struct {
	TrackingNumber string          `json:"tracking_number"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	AmountMarked   decimal.Decimal `json:"amount_marked"`
	DaysRemaining  int             `json:"days_remaining"`
}

// MonthlySummaryRow is one month's aggregate of PAID marking amounts.
type MonthlySummaryRow struct {
	Month string          `json:"month"` // YYYY-MM
	Total decimal.Decimal `json:"total"`
}

// PlanPaidStats carries the paid aggregates of a plan used by the payout and
// commission paths.
type PlanPaidStats struct {
	Plan         SavingsPlan `json:"plan"`
	TotalPaid    decimal.Decimal
	EarliestPaid time.Time
	LatestPaid   time.Time
	PaidCount    int
}

// UnpaidPayout is one COMPLETED plan awaiting payout, with the prorated
// commission already applied.
type UnpaidPayout struct {
	TrackingNumber string          `json:"tracking_number"`
	CustomerID     uuid.UUID       `json:"customer_id"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	Commission     decimal.Decimal `json:"commission"`
	NetPayout      decimal.Decimal `json:"net_payout"`
	DaysSpan       int             `json:"days_span"`
}

// OverdueMarking is a PENDING marking dated before the sweep cutoff on an
// IN_PROGRESS plan. Produced by a read-only scheduled scan.
type OverdueMarking struct {
	PlanID         uuid.UUID       `json:"plan_id"`
	TrackingNumber string          `json:"tracking_number"`
	CustomerID     uuid.UUID       `json:"customer_id"`
	ScheduledDate  time.Time       `json:"scheduled_date"`
	Amount         decimal.Decimal `json:"amount"`
}

// DateLayout is the wire format for schedule dates.
const DateLayout = "2006-01-02"

// DateOnly truncates t to a UTC calendar date.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL queries and logic for interacting with the savings
 * tables. Multi-row mutations (claim, settle, reschedule) run inside a single
 * transaction so the database remains the unit of atomicity.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver and toolkit.
 * - github.com/shopspring/decimal: Fixed-point amounts.
 * - internal/domain: The service's domain models.
 *
 * @notes
 * - Claim and settlement take row locks with SELECT ... FOR UPDATE before
 *   mutating, so concurrent initiations and webhook/poll races serialize at
 *   the database rather than in application memory.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kopkad/savings-service/internal/domain"
)

var (
	// ErrPlanNotFound is returned when a savings plan cannot be found.
	ErrPlanNotFound = errors.New("savings plan not found")
	// ErrMarkingNotFound is returned when a marking cannot be found.
	ErrMarkingNotFound = errors.New("marking not found")
	// ErrDuplicateTrackingNumber is returned when a tracking number collides.
	ErrDuplicateTrackingNumber = errors.New("tracking number already exists")
	// ErrDuplicateMarkingDate is returned when a (plan, date) pair collides.
	ErrDuplicateMarkingDate = errors.New("marking already exists for this plan and date")
	// ErrPlanHasPaidMarkings is returned when deletion would discard a PAID marking.
	ErrPlanHasPaidMarkings = errors.New("plan has paid markings")
	// ErrMarkingAlreadyClaimed is returned when a claim targets a marking that
	// is not PENDING or already carries a payment reference.
	ErrMarkingAlreadyClaimed = errors.New("marking already claimed")
	// ErrScheduleConflict is returned when a trim would touch PAID markings.
	ErrScheduleConflict = errors.New("schedule conflict")
	// ErrProfileNotFound is returned when no gateway profile exists for a customer.
	ErrProfileNotFound = errors.New("gateway profile not found")
)

const (
	uniqueViolationCode = "23505"

	planColumns = `id, customer_id, business_id, unit_id, tracking_number, kind, daily_amount,
		duration_months, start_date, end_date, target_amount, commission_amount,
		commission_days, status, created_by, created_at, updated_at`

	markingColumns = `id, plan_id, scheduled_date, amount, status, payment_method,
		payment_reference, virtual_account, marked_by_id, updated_by, created_at, updated_at`
)

// PostgresRepository is the PostgreSQL-backed implementation of Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new repository with the given connection pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Close closes the underlying connection pool.
func (r *PostgresRepository) Close() {
	r.db.Close()
}

func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return constraint == "" || pgErr.ConstraintName == constraint
	}
	return false
}

func scanPlan(row pgx.Row) (*domain.SavingsPlan, error) {
	var p domain.SavingsPlan
	err := row.Scan(
		&p.ID, &p.CustomerID, &p.BusinessID, &p.UnitID, &p.TrackingNumber, &p.Kind,
		&p.DailyAmount, &p.DurationMonths, &p.StartDate, &p.EndDate, &p.TargetAmount,
		&p.CommissionAmount, &p.CommissionDays, &p.Status, &p.CreatedBy,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanMarking(row pgx.Row) (*domain.Marking, error) {
	var m domain.Marking
	var vaRaw []byte
	err := row.Scan(
		&m.ID, &m.PlanID, &m.ScheduledDate, &m.Amount, &m.Status, &m.PaymentMethod,
		&m.PaymentReference, &vaRaw, &m.MarkedByID, &m.UpdatedBy, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(vaRaw) > 0 {
		var va domain.VirtualAccount
		if err := json.Unmarshal(vaRaw, &va); err != nil {
			return nil, fmt.Errorf("failed to decode virtual account details: %w", err)
		}
		m.VirtualAccount = &va
	}
	return &m, nil
}

func marshalVirtualAccount(va *domain.VirtualAccount) ([]byte, error) {
	if va == nil {
		return nil, nil
	}
	return json.Marshal(va)
}

// CreatePlanWithMarkings inserts a plan and its full schedule in one transaction.
func (r *PostgresRepository) CreatePlanWithMarkings(ctx context.Context, plan *domain.SavingsPlan, markings []domain.Marking) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insertPlan := `
		INSERT INTO savings_plans (id, customer_id, business_id, unit_id, tracking_number, kind,
			daily_amount, duration_months, start_date, end_date, target_amount,
			commission_amount, commission_days, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())`
	_, err = tx.Exec(ctx, insertPlan,
		plan.ID, plan.CustomerID, plan.BusinessID, plan.UnitID, plan.TrackingNumber, plan.Kind,
		plan.DailyAmount, plan.DurationMonths, plan.StartDate, plan.EndDate, plan.TargetAmount,
		plan.CommissionAmount, plan.CommissionDays, plan.Status, plan.CreatedBy,
	)
	if err != nil {
		if isUniqueViolation(err, "savings_plans_tracking_number_key") {
			return ErrDuplicateTrackingNumber
		}
		return fmt.Errorf("failed to insert savings plan: %w", err)
	}

	if err := insertMarkingsTx(ctx, tx, markings); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertMarkingsTx(ctx context.Context, tx pgx.Tx, markings []domain.Marking) error {
	insertMarking := `
		INSERT INTO savings_markings (id, plan_id, scheduled_date, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())`
	for i := range markings {
		m := &markings[i]
		if _, err := tx.Exec(ctx, insertMarking, m.ID, m.PlanID, m.ScheduledDate, m.Amount, m.Status); err != nil {
			if isUniqueViolation(err, "savings_markings_plan_id_scheduled_date_key") {
				return ErrDuplicateMarkingDate
			}
			return fmt.Errorf("failed to insert marking for %s: %w", m.ScheduledDate.Format("2006-01-02"), err)
		}
	}
	return nil
}

// GetPlanByID fetches a single plan by its primary key.
func (r *PostgresRepository) GetPlanByID(ctx context.Context, id uuid.UUID) (*domain.SavingsPlan, error) {
	query := `SELECT ` + planColumns + ` FROM savings_plans WHERE id = $1`
	plan, err := scanPlan(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan by id: %w", err)
	}
	return plan, nil
}

// GetPlanByTrackingNumber fetches a single plan by its public tracking number.
func (r *PostgresRepository) GetPlanByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.SavingsPlan, error) {
	query := `SELECT ` + planColumns + ` FROM savings_plans WHERE tracking_number = $1`
	plan, err := scanPlan(r.db.QueryRow(ctx, query, trackingNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan by tracking number: %w", err)
	}
	return plan, nil
}

// TrackingNumberExists reports whether a tracking number is already in use.
func (r *PostgresRepository) TrackingNumberExists(ctx context.Context, trackingNumber string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM savings_plans WHERE tracking_number = $1)`
	if err := r.db.QueryRow(ctx, query, trackingNumber).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check tracking number: %w", err)
	}
	return exists, nil
}

// UpdatePlan persists the mutable fields of a plan.
func (r *PostgresRepository) UpdatePlan(ctx context.Context, plan *domain.SavingsPlan) error {
	query := `
		UPDATE savings_plans
		SET daily_amount = $2, duration_months = $3, start_date = $4, end_date = $5,
			target_amount = $6, commission_amount = $7, commission_days = $8,
			status = $9, updated_at = now()
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query,
		plan.ID, plan.DailyAmount, plan.DurationMonths, plan.StartDate, plan.EndDate,
		plan.TargetAmount, plan.CommissionAmount, plan.CommissionDays, plan.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// UpdatePlanStatus sets a plan's lifecycle status.
func (r *PostgresRepository) UpdatePlanStatus(ctx context.Context, planID uuid.UUID, status domain.PlanStatus) error {
	query := `UPDATE savings_plans SET status = $2, updated_at = now() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, planID, status)
	if err != nil {
		return fmt.Errorf("failed to update plan status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// DeletePlan removes a plan and its markings unless any marking is PAID.
func (r *PostgresRepository) DeletePlan(ctx context.Context, planID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var paidCount int
	countQuery := `SELECT COUNT(*) FROM savings_markings WHERE plan_id = $1 AND status = $2`
	if err := tx.QueryRow(ctx, countQuery, planID, domain.MarkingPaid).Scan(&paidCount); err != nil {
		return fmt.Errorf("failed to count paid markings: %w", err)
	}
	if paidCount > 0 {
		return ErrPlanHasPaidMarkings
	}

	if _, err := tx.Exec(ctx, `DELETE FROM savings_markings WHERE plan_id = $1`, planID); err != nil {
		return fmt.Errorf("failed to delete markings: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM savings_plans WHERE id = $1`, planID)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return tx.Commit(ctx)
}

// ReplacePlanSchedule rewrites a plan and regenerates its markings atomically.
func (r *PostgresRepository) ReplacePlanSchedule(ctx context.Context, plan *domain.SavingsPlan, markings []domain.Marking) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	updatePlan := `
		UPDATE savings_plans
		SET daily_amount = $2, duration_months = $3, start_date = $4, end_date = $5,
			target_amount = $6, commission_amount = $7, commission_days = $8,
			status = $9, updated_at = now()
		WHERE id = $1`
	tag, err := tx.Exec(ctx, updatePlan,
		plan.ID, plan.DailyAmount, plan.DurationMonths, plan.StartDate, plan.EndDate,
		plan.TargetAmount, plan.CommissionAmount, plan.CommissionDays, plan.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan for reschedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM savings_markings WHERE plan_id = $1`, plan.ID); err != nil {
		return fmt.Errorf("failed to clear markings for reschedule: %w", err)
	}
	if err := insertMarkingsTx(ctx, tx, markings); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetMarkingsByPlan returns all markings of a plan ordered by scheduled date.
func (r *PostgresRepository) GetMarkingsByPlan(ctx context.Context, planID uuid.UUID) ([]domain.Marking, error) {
	query := `SELECT ` + markingColumns + ` FROM savings_markings WHERE plan_id = $1 ORDER BY scheduled_date`
	rows, err := r.db.Query(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query markings by plan: %w", err)
	}
	defer rows.Close()
	return collectMarkings(rows)
}

func collectMarkings(rows pgx.Rows) ([]domain.Marking, error) {
	var markings []domain.Marking
	for rows.Next() {
		m, err := scanMarking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan marking: %w", err)
		}
		markings = append(markings, *m)
	}
	return markings, rows.Err()
}

// GetMarkingByPlanAndDate returns the single marking scheduled on a date.
func (r *PostgresRepository) GetMarkingByPlanAndDate(ctx context.Context, planID uuid.UUID, date time.Time) (*domain.Marking, error) {
	query := `SELECT ` + markingColumns + ` FROM savings_markings WHERE plan_id = $1 AND scheduled_date = $2`
	m, err := scanMarking(r.db.QueryRow(ctx, query, planID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMarkingNotFound
		}
		return nil, fmt.Errorf("failed to get marking by plan and date: %w", err)
	}
	return m, nil
}

// GetMarkingsByReference returns every marking claimed under a payment reference.
func (r *PostgresRepository) GetMarkingsByReference(ctx context.Context, reference string) ([]domain.Marking, error) {
	query := `SELECT ` + markingColumns + ` FROM savings_markings WHERE payment_reference = $1 ORDER BY scheduled_date`
	rows, err := r.db.Query(ctx, query, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to query markings by reference: %w", err)
	}
	defer rows.Close()
	return collectMarkings(rows)
}

// InsertMarkings appends markings to an existing plan.
func (r *PostgresRepository) InsertMarkings(ctx context.Context, markings []domain.Marking) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := insertMarkingsTx(ctx, tx, markings); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdatePendingMarkingAmounts re-prices every unclaimed PENDING marking of a
// plan. Markings under an open payment reference keep the amount their
// gateway transaction was created for; the release path re-prices them.
func (r *PostgresRepository) UpdatePendingMarkingAmounts(ctx context.Context, planID uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE savings_markings SET amount = $2, updated_at = now()
		WHERE plan_id = $1 AND status = $3 AND payment_reference IS NULL`
	if _, err := r.db.Exec(ctx, query, planID, amount, domain.MarkingPending); err != nil {
		return fmt.Errorf("failed to update pending marking amounts: %w", err)
	}
	return nil
}

// DeleteLatestPendingMarkings trims the n most recently scheduled PENDING markings.
func (r *PostgresRepository) DeleteLatestPendingMarkings(ctx context.Context, planID uuid.UUID, n int) error {
	if n <= 0 {
		return nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		DELETE FROM savings_markings
		WHERE id IN (
			SELECT id FROM savings_markings
			WHERE plan_id = $1 AND status = $2
			ORDER BY scheduled_date DESC
			LIMIT $3
		)`
	tag, err := tx.Exec(ctx, query, planID, domain.MarkingPending, n)
	if err != nil {
		return fmt.Errorf("failed to trim pending markings: %w", err)
	}
	if tag.RowsAffected() != int64(n) {
		// Fewer PENDING markings than the trim requires; PAID rows are never touched.
		return ErrScheduleConflict
	}
	return tx.Commit(ctx)
}

// ClaimMarkings stamps markings with a payment reference under row locks.
func (r *PostgresRepository) ClaimMarkings(ctx context.Context, ids []uuid.UUID, reference string, method domain.PaymentMethod, virtualAccount *domain.VirtualAccount) error {
	if len(ids) == 0 {
		return ErrMarkingNotFound
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lockQuery := `
		SELECT id, plan_id, status, payment_reference
		FROM savings_markings
		WHERE id = ANY($1)
		FOR UPDATE`
	rows, err := tx.Query(ctx, lockQuery, ids)
	if err != nil {
		return fmt.Errorf("failed to lock markings for claim: %w", err)
	}
	planIDs := make(map[uuid.UUID]struct{})
	locked := 0
	for rows.Next() {
		var id, planID uuid.UUID
		var status domain.MarkingStatus
		var ref *string
		if err := rows.Scan(&id, &planID, &status, &ref); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan locked marking: %w", err)
		}
		if status != domain.MarkingPending || ref != nil {
			rows.Close()
			return ErrMarkingAlreadyClaimed
		}
		planIDs[planID] = struct{}{}
		locked++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed reading locked markings: %w", err)
	}
	if locked != len(ids) {
		return ErrMarkingNotFound
	}

	vaRaw, err := marshalVirtualAccount(virtualAccount)
	if err != nil {
		return fmt.Errorf("failed to encode virtual account details: %w", err)
	}
	claimQuery := `
		UPDATE savings_markings
		SET payment_reference = $2, payment_method = $3,
			virtual_account = COALESCE($4, virtual_account), updated_at = now()
		WHERE id = ANY($1)`
	if _, err := tx.Exec(ctx, claimQuery, ids, reference, method, vaRaw); err != nil {
		return fmt.Errorf("failed to claim markings: %w", err)
	}

	plans := make([]uuid.UUID, 0, len(planIDs))
	for id := range planIDs {
		plans = append(plans, id)
	}
	startQuery := `UPDATE savings_plans SET status = $2, updated_at = now() WHERE id = ANY($1) AND status = $3`
	if _, err := tx.Exec(ctx, startQuery, plans, domain.PlanInProgress, domain.PlanNotStarted); err != nil {
		return fmt.Errorf("failed to advance plan status on claim: %w", err)
	}
	return tx.Commit(ctx)
}

// ReleaseClaimedMarkings clears a reference from markings still PENDING and
// re-prices them to the plan's current daily amount, catching up on any plan
// edit made while the claim was open.
func (r *PostgresRepository) ReleaseClaimedMarkings(ctx context.Context, reference string) error {
	query := `
		UPDATE savings_markings m
		SET payment_reference = NULL, payment_method = NULL, amount = p.daily_amount, updated_at = now()
		FROM savings_plans p
		WHERE p.id = m.plan_id AND m.payment_reference = $1 AND m.status = $2`
	if _, err := r.db.Exec(ctx, query, reference, domain.MarkingPending); err != nil {
		return fmt.Errorf("failed to release claimed markings: %w", err)
	}
	return nil
}

// SettleReference settles every PENDING marking under a reference and applies
// the completion rule per touched plan, all within one transaction.
func (r *PostgresRepository) SettleReference(ctx context.Context, reference string, markedBy *uuid.UUID, paidAt time.Time) (*SettlementResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lockQuery := `
		SELECT m.id, m.plan_id, m.scheduled_date, m.status, p.customer_id
		FROM savings_markings m
		JOIN savings_plans p ON p.id = m.plan_id
		WHERE m.payment_reference = $1
		FOR UPDATE OF m`
	rows, err := tx.Query(ctx, lockQuery, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to lock markings for settlement: %w", err)
	}

	type lockedMarking struct {
		id         uuid.UUID
		planID     uuid.UUID
		date       time.Time
		status     domain.MarkingStatus
		customerID uuid.UUID
	}
	var lockedRows []lockedMarking
	for rows.Next() {
		var lm lockedMarking
		if err := rows.Scan(&lm.id, &lm.planID, &lm.date, &lm.status, &lm.customerID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan marking for settlement: %w", err)
		}
		lockedRows = append(lockedRows, lm)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading markings for settlement: %w", err)
	}

	result := &SettlementResult{}
	if len(lockedRows) == 0 {
		return result, tx.Commit(ctx)
	}

	// Latest settled date per plan, over PENDING rows only. Rows already PAID
	// were settled by an earlier delivery and are left untouched.
	pendingIDs := make([]uuid.UUID, 0, len(lockedRows))
	latestByPlan := make(map[uuid.UUID]time.Time)
	markerByPlan := make(map[uuid.UUID]uuid.UUID)
	for _, lm := range lockedRows {
		if lm.status != domain.MarkingPending {
			continue
		}
		pendingIDs = append(pendingIDs, lm.id)
		if lm.date.After(latestByPlan[lm.planID]) {
			latestByPlan[lm.planID] = lm.date
		}
		if markedBy != nil {
			markerByPlan[lm.planID] = *markedBy
		} else {
			markerByPlan[lm.planID] = lm.customerID
		}
	}
	if len(pendingIDs) == 0 {
		return result, tx.Commit(ctx)
	}

	for planID, marker := range markerByPlan {
		settleQuery := `
			UPDATE savings_markings
			SET status = $3, marked_by_id = $4, updated_by = $4, updated_at = $5
			WHERE plan_id = $1 AND id = ANY($2)
			RETURNING ` + markingColumns
		settledRows, err := tx.Query(ctx, settleQuery, planID, pendingIDs, domain.MarkingPaid, marker, paidAt)
		if err != nil {
			return nil, fmt.Errorf("failed to settle markings: %w", err)
		}
		settled, err := collectMarkings(settledRows)
		settledRows.Close()
		if err != nil {
			return nil, err
		}
		result.Settled = append(result.Settled, settled...)
	}

	for planID, latest := range latestByPlan {
		var pendingAfter int
		afterQuery := `
			SELECT COUNT(*) FROM savings_markings
			WHERE plan_id = $1 AND status = $2 AND scheduled_date > $3`
		if err := tx.QueryRow(ctx, afterQuery, planID, domain.MarkingPending, latest).Scan(&pendingAfter); err != nil {
			return nil, fmt.Errorf("failed to count pending markings after settlement: %w", err)
		}
		if pendingAfter != 0 {
			continue
		}
		completeQuery := `
			UPDATE savings_plans SET status = $2, updated_at = now()
			WHERE id = $1
			RETURNING ` + planColumns
		plan, err := scanPlan(tx.QueryRow(ctx, completeQuery, planID, domain.PlanCompleted))
		if err != nil {
			return nil, fmt.Errorf("failed to complete plan after settlement: %w", err)
		}
		result.CompletedPlans = append(result.CompletedPlans, *plan)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}
	log.Printf("level=info component=postgres_repository msg=\"reference settled\" reference=%s markings=%d plans_completed=%d",
		reference, len(result.Settled), len(result.CompletedPlans))
	return result, nil
}

// GetPaidStatsByPlan aggregates the PAID markings of one plan.
func (r *PostgresRepository) GetPaidStatsByPlan(ctx context.Context, planID uuid.UUID) (*domain.PlanPaidStats, error) {
	plan, err := r.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	stats := &domain.PlanPaidStats{Plan: *plan}
	var earliest, latest *time.Time
	query := `
		SELECT COALESCE(SUM(amount), 0), MIN(scheduled_date), MAX(scheduled_date), COUNT(*)
		FROM savings_markings
		WHERE plan_id = $1 AND status = $2`
	if err := r.db.QueryRow(ctx, query, planID, domain.MarkingPaid).Scan(&stats.TotalPaid, &earliest, &latest, &stats.PaidCount); err != nil {
		return nil, fmt.Errorf("failed to aggregate paid markings: %w", err)
	}
	if earliest != nil {
		stats.EarliestPaid = *earliest
	}
	if latest != nil {
		stats.LatestPaid = *latest
	}
	return stats, nil
}

// ListCompletedPlanPayouts returns COMPLETED plans with their paid aggregates.
func (r *PostgresRepository) ListCompletedPlanPayouts(ctx context.Context, businessID *uuid.UUID) ([]domain.PlanPaidStats, error) {
	query := `
		SELECT ` + prefixColumns("p", planColumns) + `,
			COALESCE(SUM(m.amount) FILTER (WHERE m.status = 'PAID'), 0),
			MIN(m.scheduled_date) FILTER (WHERE m.status = 'PAID'),
			MAX(m.scheduled_date) FILTER (WHERE m.status = 'PAID'),
			COUNT(m.id) FILTER (WHERE m.status = 'PAID')
		FROM savings_plans p
		LEFT JOIN savings_markings m ON m.plan_id = p.id
		WHERE p.status = $1 AND ($2::uuid IS NULL OR p.business_id = $2)
		GROUP BY p.id
		ORDER BY p.updated_at DESC`
	rows, err := r.db.Query(ctx, query, domain.PlanCompleted, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed plan payouts: %w", err)
	}
	defer rows.Close()

	var out []domain.PlanPaidStats
	for rows.Next() {
		var s domain.PlanPaidStats
		var earliest, latest *time.Time
		p := &s.Plan
		err := rows.Scan(
			&p.ID, &p.CustomerID, &p.BusinessID, &p.UnitID, &p.TrackingNumber, &p.Kind,
			&p.DailyAmount, &p.DurationMonths, &p.StartDate, &p.EndDate, &p.TargetAmount,
			&p.CommissionAmount, &p.CommissionDays, &p.Status, &p.CreatedBy,
			&p.CreatedAt, &p.UpdatedAt,
			&s.TotalPaid, &earliest, &latest, &s.PaidCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completed plan payout: %w", err)
		}
		if earliest != nil {
			s.EarliestPaid = *earliest
		}
		if latest != nil {
			s.LatestPaid = *latest
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetMonthlySummary aggregates PAID marking amounts per calendar month.
func (r *PostgresRepository) GetMonthlySummary(ctx context.Context, customerID, businessID *uuid.UUID) ([]domain.MonthlySummaryRow, error) {
	query := `
		SELECT to_char(date_trunc('month', m.scheduled_date), 'YYYY-MM') AS month, SUM(m.amount)
		FROM savings_markings m
		JOIN savings_plans p ON p.id = m.plan_id
		WHERE m.status = $1
			AND ($2::uuid IS NULL OR p.customer_id = $2)
			AND ($3::uuid IS NULL OR p.business_id = $3)
		GROUP BY 1
		ORDER BY 1`
	rows, err := r.db.Query(ctx, query, domain.MarkingPaid, customerID, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly summary: %w", err)
	}
	defer rows.Close()

	var out []domain.MonthlySummaryRow
	for rows.Next() {
		var row domain.MonthlySummaryRow
		if err := rows.Scan(&row.Month, &row.Total); err != nil {
			return nil, fmt.Errorf("failed to scan monthly summary row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListOverduePendingMarkings returns PENDING markings dated before the cutoff
// on IN_PROGRESS plans. Read-only; used by the scheduled sweep.
func (r *PostgresRepository) ListOverduePendingMarkings(ctx context.Context, before time.Time) ([]domain.OverdueMarking, error) {
	query := `
		SELECT m.plan_id, p.tracking_number, p.customer_id, m.scheduled_date, m.amount
		FROM savings_markings m
		JOIN savings_plans p ON p.id = m.plan_id
		WHERE m.status = $1 AND m.scheduled_date < $2 AND p.status = $3
		ORDER BY m.scheduled_date`
	rows, err := r.db.Query(ctx, query, domain.MarkingPending, before, domain.PlanInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue markings: %w", err)
	}
	defer rows.Close()

	var out []domain.OverdueMarking
	for rows.Next() {
		var om domain.OverdueMarking
		if err := rows.Scan(&om.PlanID, &om.TrackingNumber, &om.CustomerID, &om.ScheduledDate, &om.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan overdue marking: %w", err)
		}
		out = append(out, om)
	}
	return out, rows.Err()
}

// GetGatewayProfile fetches the stored gateway identity for a customer.
func (r *PostgresRepository) GetGatewayProfile(ctx context.Context, customerID uuid.UUID) (*domain.GatewayProfile, error) {
	var p domain.GatewayProfile
	var vaRaw []byte
	query := `
		SELECT customer_id, gateway_customer_code, virtual_account, created_at, updated_at
		FROM customer_gateway_profiles WHERE customer_id = $1`
	err := r.db.QueryRow(ctx, query, customerID).Scan(&p.CustomerID, &p.GatewayCustomerCode, &vaRaw, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get gateway profile: %w", err)
	}
	if len(vaRaw) > 0 {
		var va domain.VirtualAccount
		if err := json.Unmarshal(vaRaw, &va); err != nil {
			return nil, fmt.Errorf("failed to decode gateway profile account: %w", err)
		}
		p.VirtualAccount = &va
	}
	return &p, nil
}

// UpsertGatewayProfile stores or refreshes a customer's gateway identity.
func (r *PostgresRepository) UpsertGatewayProfile(ctx context.Context, profile *domain.GatewayProfile) error {
	vaRaw, err := marshalVirtualAccount(profile.VirtualAccount)
	if err != nil {
		return fmt.Errorf("failed to encode gateway profile account: %w", err)
	}
	query := `
		INSERT INTO customer_gateway_profiles (customer_id, gateway_customer_code, virtual_account, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (customer_id) DO UPDATE
		SET gateway_customer_code = EXCLUDED.gateway_customer_code,
			virtual_account = COALESCE(EXCLUDED.virtual_account, customer_gateway_profiles.virtual_account),
			updated_at = now()`
	if _, err := r.db.Exec(ctx, query, profile.CustomerID, profile.GatewayCustomerCode, vaRaw); err != nil {
		return fmt.Errorf("failed to upsert gateway profile: %w", err)
	}
	return nil
}

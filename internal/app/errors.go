/**
 * @description
 * This file defines the error taxonomy the service layer exposes to the API
 * layer. Handlers map these sentinels onto HTTP statuses; wrapped details are
 * carried via fmt.Errorf("%w: ...") so errors.Is keeps working.
 */

package app

import (
	"errors"
	"fmt"

	"github.com/kopkad/savings-service/internal/store"
)

var (
	// ErrValidation covers bad schedule or amount parameters, rejected
	// before anything is persisted.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidSchedule is a validation failure specific to schedule
	// parameters (non-positive duration/amount, end date not after start).
	ErrInvalidSchedule = errors.New("invalid schedule parameters")
	// ErrConflict covers duplicate tracking codes, already-marked dates and
	// state conflicts such as editing a settled schedule.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyClaimed is returned when an initiation targets a marking
	// that already carries a payment reference.
	ErrAlreadyClaimed = errors.New("marking already claimed by another payment")
	// ErrNotFound covers unknown plans, markings and references.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when the actor lacks ownership or role.
	ErrUnauthorized = errors.New("not permitted")
	// ErrGateway is returned when a payment-gateway call fails or returns a
	// non-success status. Nothing is settled when it is returned.
	ErrGateway = errors.New("payment gateway error")
	// ErrRateLimited is returned when initiation attempts exceed the
	// per-customer limit.
	ErrRateLimited = errors.New("too many payment attempts")
)

// wrapStore translates repository sentinels into the service taxonomy so the
// API layer only ever matches on app errors.
func wrapStore(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrPlanNotFound),
		errors.Is(err, store.ErrMarkingNotFound),
		errors.Is(err, store.ErrProfileNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, store.ErrMarkingAlreadyClaimed):
		return fmt.Errorf("%w: %v", ErrAlreadyClaimed, err)
	case errors.Is(err, store.ErrDuplicateTrackingNumber),
		errors.Is(err, store.ErrDuplicateMarkingDate),
		errors.Is(err, store.ErrPlanHasPaidMarkings),
		errors.Is(err, store.ErrScheduleConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

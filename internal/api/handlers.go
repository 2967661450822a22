/**
 * @description
 * This file contains the HTTP handlers for the savings-service's plan lifecycle
 * endpoints. Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP response.
 * They act as the bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kopkad/savings-service/internal/app"
	"github.com/kopkad/savings-service/internal/domain"
)

// SavingsHandlers holds the application service that handlers will use.
type SavingsHandlers struct {
	service *app.Service
}

// NewSavingsHandlers creates a new instance of SavingsHandlers.
func NewSavingsHandlers(service *app.Service) *SavingsHandlers {
	return &SavingsHandlers{service: service}
}

// requireActor pulls the authenticated actor out of the request context.
func (h *SavingsHandlers) requireActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := GetActor(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get actor from context")
		return domain.Actor{}, false
	}
	return actor, true
}

// CreateDailyPlanHandler handles requests to create a DAILY savings plan.
func (h *SavingsHandlers) CreateDailyPlanHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req domain.CreateDailyPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	plan, err := h.service.CreateDailyPlan(r.Context(), actor, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_daily_plan outcome=failed actor=%s err=%v", actor.UserID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, plan)
}

// CreateTargetPlanHandler handles requests to create a TARGET savings plan.
func (h *SavingsHandlers) CreateTargetPlanHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req domain.CreateTargetPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	plan, err := h.service.CreateTargetPlan(r.Context(), actor, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_target_plan outcome=failed actor=%s err=%v", actor.UserID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, plan)
}

// CalculateTargetHandler previews the daily amount and schedule span for a
// prospective TARGET plan without creating anything.
func (h *SavingsHandlers) CalculateTargetHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTargetPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	projection, err := h.service.CalculateTargetProjection(req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, projection)
}

// UpdatePlanHandler handles partial updates to an existing plan.
func (h *SavingsHandlers) UpdatePlanHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	planID, err := uuid.Parse(chi.URLParam(r, "planID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid plan ID format")
		return
	}

	var req domain.UpdatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	plan, err := h.service.UpdatePlan(r.Context(), actor, planID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=update_plan outcome=failed plan_id=%s err=%v", planID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, plan)
}

// DeletePlanHandler handles requests to delete a plan with no settled markings.
func (h *SavingsHandlers) DeletePlanHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	planID, err := uuid.Parse(chi.URLParam(r, "planID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid plan ID format")
		return
	}

	if err := h.service.DeletePlan(r.Context(), actor, planID); err != nil {
		log.Printf("level=warn component=api endpoint=delete_plan outcome=failed plan_id=%s err=%v", planID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Plan deleted"})
}

// ExtendPlanHandler regenerates the schedule of a completed plan for a new term.
func (h *SavingsHandlers) ExtendPlanHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req domain.ExtendPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	plan, err := h.service.ExtendPlan(r.Context(), actor, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=extend_plan outcome=failed tracking_number=%s err=%v", req.TrackingNumber, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, plan)
}

// EndPlanHandler forces a plan to COMPLETED regardless of remaining markings.
func (h *SavingsHandlers) EndPlanHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	trackingNumber := chi.URLParam(r, "trackingNumber")
	plan, err := h.service.EndPlan(r.Context(), actor, trackingNumber)
	if err != nil {
		log.Printf("level=warn component=api endpoint=end_plan outcome=failed tracking_number=%s err=%v", trackingNumber, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, plan)
}

// ListMarkingsHandler returns the full marking ledger for a plan.
func (h *SavingsHandlers) ListMarkingsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	trackingNumber := chi.URLParam(r, "trackingNumber")
	markings, err := h.service.GetMarkings(r.Context(), actor, trackingNumber)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, markings)
}

// GetMetricsHandler returns progress metrics for a plan.
func (h *SavingsHandlers) GetMetricsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	trackingNumber := r.URL.Query().Get("tracking_number")
	if trackingNumber == "" {
		h.writeError(w, http.StatusBadRequest, "tracking_number is required")
		return
	}

	metrics, err := h.service.GetMetrics(r.Context(), actor, trackingNumber)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, metrics)
}

// GetMonthlySummaryHandler returns per-month PAID aggregates. Admins and
// agents may scope the summary to a business via the business_id query param.
func (h *SavingsHandlers) GetMonthlySummaryHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	businessID, ok := h.parseOptionalBusinessID(w, r)
	if !ok {
		return
	}

	rows, err := h.service.GetMonthlySummary(r.Context(), actor, businessID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rows)
}

// ListUnpaidPayoutsHandler returns completed plans with their commission and
// net payout amounts.
func (h *SavingsHandlers) ListUnpaidPayoutsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	businessID, ok := h.parseOptionalBusinessID(w, r)
	if !ok {
		return
	}

	payouts, err := h.service.ListUnpaidPayouts(r.Context(), actor, businessID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payouts)
}

// GetPayoutHandler returns one plan's paid total, prorated commission and
// net payout.
func (h *SavingsHandlers) GetPayoutHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	trackingNumber := chi.URLParam(r, "trackingNumber")
	payout, err := h.service.GetPayout(r.Context(), actor, trackingNumber)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payout)
}

func (h *SavingsHandlers) parseOptionalBusinessID(w http.ResponseWriter, r *http.Request) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get("business_id")
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid business_id format")
		return nil, false
	}
	return &id, true
}

// writeServiceError maps application errors to HTTP status codes.
func (h *SavingsHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrValidation), errors.Is(err, app.ErrInvalidSchedule):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrUnauthorized):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrConflict), errors.Is(err, app.ErrAlreadyClaimed):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, app.ErrGateway):
		h.writeError(w, http.StatusBadGateway, err.Error())
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *SavingsHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *SavingsHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

/**
 * @description
 * HTTP handlers for payment initiation and reconciliation endpoints: marking
 * one or more dates on a plan, bulk marking across plans, verifying a gateway
 * reference, and confirming a customer-reported bank transfer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/domain: Request and result models.
 */

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kopkad/savings-service/internal/domain"
)

// MarkSingleHandler initiates payment for one or more dates of a single plan.
func (h *SavingsHandlers) MarkSingleHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	trackingNumber := chi.URLParam(r, "trackingNumber")
	var req domain.MarkSingleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.MarkSingle(r.Context(), actor, trackingNumber, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=mark_single outcome=failed tracking_number=%s err=%v", trackingNumber, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// MarkBulkHandler initiates payment for markings across multiple plans under a
// single reference.
func (h *SavingsHandlers) MarkBulkHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req domain.BulkMarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.MarkBulk(r.Context(), actor, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=mark_bulk outcome=failed actor=%s err=%v", actor.UserID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// VerifyPaymentHandler polls the gateway for a reference and settles it on
// success. It requires no authentication so checkout callback pages can call
// it directly.
func (h *SavingsHandlers) VerifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	outcome, err := h.service.VerifyPayment(r.Context(), reference)
	if err != nil {
		log.Printf("level=warn component=api endpoint=verify_payment outcome=failed reference=%s err=%v", reference, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, outcome)
}

// ConfirmBankTransferHandler settles a reference after the customer reports a
// completed bank transfer. The confirming actor is recorded as the marker.
func (h *SavingsHandlers) ConfirmBankTransferHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	reference := chi.URLParam(r, "reference")
	outcome, err := h.service.ConfirmBankTransfer(r.Context(), actor, reference)
	if err != nil {
		log.Printf("level=warn component=api endpoint=confirm_bank_transfer outcome=failed reference=%s err=%v", reference, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, outcome)
}

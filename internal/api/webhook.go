/**
 * @description
 * This file contains the HTTP handler for processing incoming webhooks from the
 * payment gateway. It is the push half of reconciliation; the poll half lives
 * in VerifyPaymentHandler.
 *
 * Key features:
 * - Security: Validates the HMAC-SHA512 signature of incoming webhooks before
 *   any payload parsing.
 * - Acknowledgement: Once the signature passes, the endpoint always responds
 *   200 so the gateway stops retrying; ledger-level rejections are logged.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha512, encoding/hex: For webhook signature validation.
 * - encoding/json, io, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: Reconciliation logic and event models.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/kopkad/savings-service/internal/app"
	"github.com/kopkad/savings-service/internal/domain"
)

const signatureHeader = "x-paystack-signature"

// WebhookHandler processes incoming webhooks from the payment gateway.
type WebhookHandler struct {
	service *app.Service
	secret  string
}

// NewWebhookHandler creates a new handler for the webhook endpoint.
func NewWebhookHandler(service *app.Service, secret string) *WebhookHandler {
	return &WebhookHandler{service: service, secret: secret}
}

// ServeHTTP implements the http.Handler interface.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("level=error component=webhook msg=\"cannot read body\" err=%v", err)
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	if !h.isValidSignature(r.Header.Get(signatureHeader), body) {
		log.Printf("level=warn component=webhook msg=\"invalid signature\" remote=%s", r.RemoteAddr)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event domain.GatewayWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		// The signature already proved the sender; an undecodable payload is
		// absorbed so the gateway does not redeliver it.
		log.Printf("level=warn component=webhook msg=\"invalid JSON payload absorbed\" err=%v", err)
		h.acknowledge(w)
		return
	}

	outcome, err := h.service.HandleWebhookEvent(r.Context(), event)
	if err != nil {
		// A transient store failure means the gateway should retry later.
		log.Printf("level=error component=webhook msg=\"settlement failed\" event=%s reference=%s err=%v",
			event.Event, event.Data.Reference, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	log.Printf("level=info component=webhook msg=\"processed\" event=%s reference=%s state=%s",
		event.Event, event.Data.Reference, outcome.State)
	h.acknowledge(w)
}

func (h *WebhookHandler) acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}

// isValidSignature checks the gateway's HMAC-SHA512 hex signature of the raw
// body against the shared secret.
func (h *WebhookHandler) isValidSignature(signature string, body []byte) bool {
	if h.secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

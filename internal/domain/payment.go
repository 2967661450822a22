/**
 * @description
 * This file defines the payment-facing domain types: the gateway webhook
 * payload, the settlement outcome returned by the reconciliation engine, and
 * the states a payment reference moves through.
 *
 * @notes
 * - The webhook `amount` field is in kobo (minor units), matching the gateway
 *   wire format. Conversion to naira happens inside the reconciliation engine.
 */

package domain

// GatewayWebhookEvent is the parsed body of a gateway webhook delivery.
type GatewayWebhookEvent struct {
	Event string                  `json:"event"`
	Data  GatewayWebhookEventData `json:"data"`
}

// GatewayWebhookEventData is the payload section of a webhook delivery.
type GatewayWebhookEventData struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"` // in kobo
	PaidAt    string `json:"paid_at,omitempty"`
}

// SettlementState is the outcome of running the settlement routine for one
// payment reference.
type SettlementState string

const (
	// SettlementSettled: every marking tied to the reference is PAID. Also
	// returned when the reference was already settled earlier (idempotent
	// no-op) or is unknown to this system.
	SettlementSettled SettlementState = "SETTLED"
	// SettlementStillPending: the gateway-reported amount does not yet cover
	// the expected sum; no marking was settled.
	SettlementStillPending SettlementState = "STILL_PENDING"
	// SettlementRejected: the event could not be applied (unsupported event
	// type, gateway reported failure).
	SettlementRejected SettlementState = "REJECTED"
)

// SettlementOutcome reports what the settlement routine did for a reference.
type SettlementOutcome struct {
	State           SettlementState `json:"state"`
	Reference       string          `json:"reference"`
	MarkingsSettled int             `json:"markings_settled"`
	PlansCompleted  []string        `json:"plans_completed,omitempty"` // tracking numbers
	Reason          string          `json:"reason,omitempty"`
}

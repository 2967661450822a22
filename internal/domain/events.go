/**
 * @description
 * Message payloads published to RabbitMQ for the notification service. The
 * engine only produces events; delivery (email/WhatsApp/in-app) is handled
 * by the consumer side.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys for events published by the savings-service.
const (
	EventSettlementCompleted = "savings.settlement.completed"
	EventPlanCompleted       = "savings.plan.completed"
	EventMarkingOverdue      = "savings.marking.overdue"
)

// SettlementCompletedEvent is published after markings settle under one
// payment reference.
type SettlementCompletedEvent struct {
	Reference       string    `json:"reference"`
	MarkingsSettled int       `json:"markings_settled"`
	AmountPaid      string    `json:"amount_paid"` // naira, 2dp string
	Timestamp       time.Time `json:"timestamp"`
}

// PlanCompletedEvent is published when a plan advances to COMPLETED.
type PlanCompletedEvent struct {
	PlanID         uuid.UUID `json:"plan_id"`
	TrackingNumber string    `json:"tracking_number"`
	CustomerID     uuid.UUID `json:"customer_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// MarkingOverdueEvent is published by the scheduled sweep for a PENDING
// marking dated before the sweep cutoff.
type MarkingOverdueEvent struct {
	PlanID         uuid.UUID `json:"plan_id"`
	TrackingNumber string    `json:"tracking_number"`
	CustomerID     uuid.UUID `json:"customer_id"`
	ScheduledDate  string    `json:"scheduled_date"` // YYYY-MM-DD
	Amount         string    `json:"amount"`         // naira, 2dp string
	Timestamp      time.Time `json:"timestamp"`
}

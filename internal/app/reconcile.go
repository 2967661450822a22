/**
 * @description
 * Reconciliation engine for payment references. Webhook pushes and
 * verification polls converge on one idempotent settlement routine:
 * whichever path reaches it first wins, the other becomes a no-op.
 *
 * Settlement rules, in order:
 *  1. A reference with any PAID marking is never reprocessed.
 *  2. An unknown reference is absorbed silently.
 *  3. An underpayment leaves every marking PENDING; never short-settled.
 *  4. Otherwise all markings settle and each touched plan completes when no
 *     PENDING marking remains dated after its latest settled date. Earlier
 *     unpaid gaps do not block completion.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kopkad/savings-service/internal/domain"
)

const (
	eventChargeSuccess   = "charge.success"
	eventTransferSuccess = "transfer.success"

	gatewayStatusSuccess = "success"
)

// HandleWebhookEvent applies a signature-verified gateway webhook to the
// ledger. Business-level rejections still return a nil error so the webhook
// endpoint can acknowledge with 200 and stop gateway retries.
func (s *Service) HandleWebhookEvent(ctx context.Context, event domain.GatewayWebhookEvent) (*domain.SettlementOutcome, error) {
	reference := strings.TrimSpace(event.Data.Reference)
	if reference == "" {
		return &domain.SettlementOutcome{
			State:  domain.SettlementRejected,
			Reason: "no reference in webhook payload",
		}, nil
	}
	if event.Event != eventChargeSuccess && event.Event != eventTransferSuccess {
		log.Printf("level=warn component=reconcile msg=\"ignored webhook event\" event=%s reference=%s", event.Event, reference)
		return &domain.SettlementOutcome{
			State:     domain.SettlementRejected,
			Reference: reference,
			Reason:    fmt.Sprintf("unsupported event %q", event.Event),
		}, nil
	}

	amountPaid := decimal.NewFromInt(event.Data.Amount).Shift(-2) // kobo -> naira
	paidAt := parseGatewayTime(event.Data.PaidAt)
	return s.settleReference(ctx, reference, amountPaid, paidAt, nil)
}

// VerifyPayment is the unauthenticated poll path: it asks the gateway for the
// transaction status by reference and settles on success.
func (s *Service) VerifyPayment(ctx context.Context, reference string) (*domain.SettlementOutcome, error) {
	return s.verifyAndSettle(ctx, reference, nil)
}

// ConfirmBankTransfer is the authenticated poll path used after a customer
// reports a completed transfer. The confirming actor is recorded as marker.
func (s *Service) ConfirmBankTransfer(ctx context.Context, actor domain.Actor, reference string) (*domain.SettlementOutcome, error) {
	if err := s.authorize(actor, ActionConfirmPay, nil); err != nil {
		return nil, err
	}
	return s.verifyAndSettle(ctx, reference, &actor.UserID)
}

func (s *Service) verifyAndSettle(ctx context.Context, reference string, markedBy *uuid.UUID) (*domain.SettlementOutcome, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrValidation)
	}

	// Short-circuit before any gateway traffic: settled references are final
	// and unknown references are not ours to poll.
	markings, err := s.repo.GetMarkingsByReference(ctx, reference)
	if err != nil {
		return nil, wrapStore(err)
	}
	if outcome := shortCircuitOutcome(reference, markings); outcome != nil {
		return outcome, nil
	}

	verification, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if verification.Status != gatewayStatusSuccess {
		return &domain.SettlementOutcome{
			State:     domain.SettlementStillPending,
			Reference: reference,
			Reason:    fmt.Sprintf("gateway status %q", verification.Status),
		}, nil
	}

	amountPaid := decimal.NewFromInt(verification.Amount).Shift(-2)
	return s.settleReference(ctx, reference, amountPaid, parseGatewayTime(verification.PaidAt), markedBy)
}

// settleReference is the single settlement routine both entry points share.
func (s *Service) settleReference(ctx context.Context, reference string, amountPaid decimal.Decimal, paidAt time.Time, markedBy *uuid.UUID) (*domain.SettlementOutcome, error) {
	markings, err := s.repo.GetMarkingsByReference(ctx, reference)
	if err != nil {
		return nil, wrapStore(err)
	}
	if outcome := shortCircuitOutcome(reference, markings); outcome != nil {
		return outcome, nil
	}

	expected := decimal.Zero
	for i := range markings {
		expected = expected.Add(markings[i].Amount)
	}
	if amountPaid.LessThan(expected) {
		log.Printf("level=warn component=reconcile msg=\"underpayment\" reference=%s expected=%s paid=%s",
			reference, expected, amountPaid)
		return &domain.SettlementOutcome{
			State:     domain.SettlementStillPending,
			Reference: reference,
			Reason:    fmt.Sprintf("paid %s of expected %s", amountPaid, expected),
		}, nil
	}

	result, err := s.repo.SettleReference(ctx, reference, markedBy, paidAt)
	if err != nil {
		return nil, wrapStore(err)
	}

	outcome := &domain.SettlementOutcome{
		State:           domain.SettlementSettled,
		Reference:       reference,
		MarkingsSettled: len(result.Settled),
	}
	for i := range result.CompletedPlans {
		plan := &result.CompletedPlans[i]
		outcome.PlansCompleted = append(outcome.PlansCompleted, plan.TrackingNumber)
		s.publishPlanCompleted(ctx, plan)
	}
	s.publishSettlementCompleted(ctx, reference, len(result.Settled), amountPaid)
	log.Printf("level=info component=reconcile msg=\"settled\" reference=%s markings=%d plans_completed=%d",
		reference, outcome.MarkingsSettled, len(outcome.PlansCompleted))
	return outcome, nil
}

// shortCircuitOutcome returns the idempotent outcome for references that must
// not be (re)processed: unknown references and references already settled.
func shortCircuitOutcome(reference string, markings []domain.Marking) *domain.SettlementOutcome {
	if len(markings) == 0 {
		return &domain.SettlementOutcome{
			State:     domain.SettlementSettled,
			Reference: reference,
			Reason:    "unknown reference",
		}
	}
	for i := range markings {
		if markings[i].Status == domain.MarkingPaid {
			return &domain.SettlementOutcome{
				State:     domain.SettlementSettled,
				Reference: reference,
				Reason:    "already settled",
			}
		}
	}
	return nil
}

// parseGatewayTime parses the gateway's paid_at timestamp, falling back to
// the current time when absent or malformed.
func parseGatewayTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}

func (s *Service) publishSettlementCompleted(ctx context.Context, reference string, settled int, amountPaid decimal.Decimal) {
	if s.eventProducer == nil {
		return
	}
	event := domain.SettlementCompletedEvent{
		Reference:       reference,
		MarkingsSettled: settled,
		AmountPaid:      amountPaid.StringFixed(2),
		Timestamp:       time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, domain.EventSettlementCompleted, event); err != nil {
		log.Printf("level=warn component=reconcile msg=\"failed to publish settlement event\" reference=%s err=%v", reference, err)
	}
}

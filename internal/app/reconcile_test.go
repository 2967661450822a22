package app

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/kopkad/savings-service/internal/domain"
	"github.com/kopkad/savings-service/internal/store"
	"github.com/kopkad/savings-service/pkg/paystackclient"
)

func claimedMarking(planID uuid.UUID, date, amount, reference string) domain.Marking {
	m := pendingMarking(planID, date, amount)
	m.PaymentReference = &reference
	return m
}

func TestHandleWebhookEvent_SettlesClaimedMarkings(t *testing.T) {
	planID := uuid.New()
	reference := "sv_1111111111_cafe0001"
	settled := []domain.Marking{
		claimedMarking(planID, "2025-01-01", "1000", reference),
		claimedMarking(planID, "2025-01-02", "1000", reference),
	}
	repo := &repoStub{
		byReference:  map[string][]domain.Marking{reference: settled},
		settleResult: &store.SettlementResult{Settled: settled},
	}
	producer := &producerStub{}
	s := newTestService(repo, &gatewayStub{}, &directoryStub{}, producer)

	outcome, err := s.HandleWebhookEvent(context.Background(), webhookEvent("charge.success", reference, 200000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != domain.SettlementSettled {
		t.Fatalf("expected SETTLED, got %s", outcome.State)
	}
	if outcome.MarkingsSettled != 2 {
		t.Fatalf("expected 2 markings settled, got %d", outcome.MarkingsSettled)
	}
	if repo.settledRef != reference {
		t.Fatalf("expected SettleReference for %s, got %q", reference, repo.settledRef)
	}
	if repo.settledBy != nil {
		t.Fatal("webhook settlements carry no marker; the plan customer is recorded")
	}
	if len(producer.published) != 1 || producer.published[0].routingKey != domain.EventSettlementCompleted {
		t.Fatalf("expected one settlement event, got %+v", producer.published)
	}
}

func TestHandleWebhookEvent_SecondDeliveryIsNoOp(t *testing.T) {
	planID := uuid.New()
	reference := "sv_1111111111_cafe0002"
	paid := claimedMarking(planID, "2025-01-01", "1000", reference)
	paid.Status = domain.MarkingPaid
	repo := &repoStub{byReference: map[string][]domain.Marking{reference: {paid}}}
	s := newTestService(repo, &gatewayStub{}, &directoryStub{}, &producerStub{})

	outcome, err := s.HandleWebhookEvent(context.Background(), webhookEvent("charge.success", reference, 100000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != domain.SettlementSettled {
		t.Fatalf("expected SETTLED on replay, got %s", outcome.State)
	}
	if outcome.Reason != "already settled" {
		t.Fatalf("expected replay short-circuit, got %q", outcome.Reason)
	}
	if repo.settledRef != "" {
		t.Fatal("a settled reference must never be reprocessed")
	}
}

func TestHandleWebhookEvent_UnknownReferenceAbsorbed(t *testing.T) {
	repo := &repoStub{byReference: map[string][]domain.Marking{}}
	s := newTestService(repo, &gatewayStub{}, &directoryStub{}, &producerStub{})

	outcome, err := s.HandleWebhookEvent(context.Background(), webhookEvent("charge.success", "sv_0000000000_unknown1", 100000))
	if err != nil {
		t.Fatalf("an unknown reference must be absorbed, got %v", err)
	}
	if outcome.State != domain.SettlementSettled {
		t.Fatalf("expected SETTLED acknowledgement, got %s", outcome.State)
	}
	if outcome.Reason != "unknown reference" {
		t.Fatalf("expected unknown-reference reason, got %q", outcome.Reason)
	}
	if repo.settledRef != "" {
		t.Fatal("nothing may be settled for an unknown reference")
	}
}

func TestHandleWebhookEvent_UnderpaymentLeavesMarkingsPending(t *testing.T) {
	planID := uuid.New()
	reference := "sv_1111111111_cafe0003"
	repo := &repoStub{
		byReference: map[string][]domain.Marking{reference: {
			claimedMarking(planID, "2025-01-01", "1000", reference),
			claimedMarking(planID, "2025-01-02", "1000", reference),
		}},
	}
	s := newTestService(repo, &gatewayStub{}, &directoryStub{}, &producerStub{})

	// 1,500 paid against 2,000 expected.
	outcome, err := s.HandleWebhookEvent(context.Background(), webhookEvent("charge.success", reference, 150000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != domain.SettlementStillPending {
		t.Fatalf("expected STILL_PENDING, got %s", outcome.State)
	}
	if repo.settledRef != "" {
		t.Fatal("an underpayment must never settle any marking")
	}
}

func TestHandleWebhookEvent_UnsupportedEventRejected(t *testing.T) {
	repo := &repoStub{}
	s := newTestService(repo, &gatewayStub{}, &directoryStub{}, &producerStub{})

	outcome, err := s.HandleWebhookEvent(context.Background(), webhookEvent("subscription.create", "sv_1111111111_cafe0004", 100000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != domain.SettlementRejected {
		t.Fatalf("expected REJECTED, got %s", outcome.State)
	}
	if repo.settledRef != "" {
		t.Fatal("an unsupported event must not touch the ledger")
	}
}

func TestHandleWebhookEvent_MissingReferenceRejected(t *testing.T) {
	s := newTestService(&repoStub{}, &gatewayStub{}, &directoryStub{}, &producerStub{})

	outcome, err := s.HandleWebhookEvent(context.Background(), webhookEvent("charge.success", "  ", 100000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != domain.SettlementRejected {
		t.Fatalf("expected REJECTED, got %s", outcome.State)
	}
}

func TestHandleWebhookEvent_PublishesPlanCompletion(t *testing.T) {
	planID := uuid.New()
	reference := "sv_1111111111_cafe0005"
	settled := []domain.Marking{claimedMarking(planID, "2025-01-31", "1000", reference)}
	completed := domain.SavingsPlan{ID: planID, TrackingNumber: "1111111111", Status: domain.PlanCompleted}
	repo := &repoStub{
		byReference: map[string][]domain.Marking{reference: settled},
		settleResult: &store.SettlementResult{
			Settled:        settled,
			CompletedPlans: []domain.SavingsPlan{completed},
		},
	}
	producer := &producerStub{}
	s := newTestService(repo, &gatewayStub{}, &directoryStub{}, producer)

	outcome, err := s.HandleWebhookEvent(context.Background(), webhookEvent("charge.success", reference, 100000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcome.PlansCompleted) != 1 || outcome.PlansCompleted[0] != "1111111111" {
		t.Fatalf("expected the completed plan in the outcome, got %v", outcome.PlansCompleted)
	}

	keys := make(map[string]int)
	for _, ev := range producer.published {
		keys[ev.routingKey]++
	}
	if keys[domain.EventPlanCompleted] != 1 {
		t.Fatalf("expected one plan completion event, got %d", keys[domain.EventPlanCompleted])
	}
	if keys[domain.EventSettlementCompleted] != 1 {
		t.Fatalf("expected one settlement event, got %d", keys[domain.EventSettlementCompleted])
	}
}

func TestVerifyPayment_NonSuccessStatusDoesNotSettle(t *testing.T) {
	planID := uuid.New()
	reference := "sv_1111111111_cafe0006"
	repo := &repoStub{
		byReference: map[string][]domain.Marking{reference: {
			claimedMarking(planID, "2025-01-01", "1000", reference),
		}},
	}
	gateway := &gatewayStub{verify: &paystackclient.VerifyTransactionResponse{Status: "abandoned"}}
	s := newTestService(repo, gateway, &directoryStub{}, &producerStub{})

	outcome, err := s.VerifyPayment(context.Background(), reference)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != domain.SettlementStillPending {
		t.Fatalf("expected STILL_PENDING, got %s", outcome.State)
	}
	if repo.settledRef != "" {
		t.Fatal("a non-success verification must not settle")
	}
}

func TestVerifyPayment_SettledReferenceSkipsGateway(t *testing.T) {
	planID := uuid.New()
	reference := "sv_1111111111_cafe0007"
	paid := claimedMarking(planID, "2025-01-01", "1000", reference)
	paid.Status = domain.MarkingPaid
	repo := &repoStub{byReference: map[string][]domain.Marking{reference: {paid}}}
	gateway := &gatewayStub{}
	s := newTestService(repo, gateway, &directoryStub{}, &producerStub{})

	outcome, err := s.VerifyPayment(context.Background(), reference)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Reason != "already settled" {
		t.Fatalf("expected the short-circuit, got %q", outcome.Reason)
	}
	if gateway.verifyCalled {
		t.Fatal("a settled reference must not be polled again")
	}
}

func TestConfirmBankTransfer_RecordsConfirmingActor(t *testing.T) {
	planID := uuid.New()
	reference := "sv_1111111111_cafe0008"
	settled := []domain.Marking{claimedMarking(planID, "2025-01-01", "1000", reference)}
	repo := &repoStub{
		byReference:  map[string][]domain.Marking{reference: settled},
		settleResult: &store.SettlementResult{Settled: settled},
	}
	gateway := &gatewayStub{verify: &paystackclient.VerifyTransactionResponse{Status: "success", Amount: 100000}}
	s := newTestService(repo, gateway, &directoryStub{}, &producerStub{})

	actor := domain.Actor{UserID: uuid.New(), Role: domain.RoleCustomer}
	outcome, err := s.ConfirmBankTransfer(context.Background(), actor, reference)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.State != domain.SettlementSettled {
		t.Fatalf("expected SETTLED, got %s", outcome.State)
	}
	if repo.settledBy == nil || *repo.settledBy != actor.UserID {
		t.Fatal("expected the confirming actor recorded as marker")
	}
}

func webhookEvent(event, reference string, amountKobo int64) domain.GatewayWebhookEvent {
	e := domain.GatewayWebhookEvent{Event: event}
	e.Data.Reference = reference
	e.Data.Amount = amountKobo
	e.Data.PaidAt = "2025-01-31T10:15:00Z"
	return e
}

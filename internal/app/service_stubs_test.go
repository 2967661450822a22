package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kopkad/savings-service/internal/config"
	"github.com/kopkad/savings-service/internal/domain"
	"github.com/kopkad/savings-service/internal/store"
	"github.com/kopkad/savings-service/pkg/directoryclient"
	"github.com/kopkad/savings-service/pkg/paystackclient"
)

// repoStub is a configurable in-memory stand-in for store.Repository. Embedding
// the interface lets each test implement only the methods its flow touches.
type repoStub struct {
	store.Repository

	plans       map[string]*domain.SavingsPlan
	markings    []domain.Marking
	byReference map[string][]domain.Marking
	profile     *domain.GatewayProfile
	paidStats   *domain.PlanPaidStats

	settleResult *store.SettlementResult
	deleteErr    error

	createdPlan      *domain.SavingsPlan
	createdMarkings  []domain.Marking
	updatedPlan      *domain.SavingsPlan
	updatedStatus    *domain.PlanStatus
	replacedPlan     *domain.SavingsPlan
	replacedMarkings []domain.Marking
	insertedMarkings []domain.Marking
	repricedAmount   *decimal.Decimal
	trimmedCount     int
	deleteCalled     bool

	claimedIDs    []uuid.UUID
	claimedRef    string
	claimedMethod domain.PaymentMethod
	claimedVA     *domain.VirtualAccount
	releasedRef   string
	settledRef    string
	settledBy     *uuid.UUID
	upserted      *domain.GatewayProfile
}

func (r *repoStub) CreatePlanWithMarkings(ctx context.Context, plan *domain.SavingsPlan, markings []domain.Marking) error {
	r.createdPlan = plan
	r.createdMarkings = markings
	return nil
}

func (r *repoStub) GetPlanByID(ctx context.Context, id uuid.UUID) (*domain.SavingsPlan, error) {
	for _, plan := range r.plans {
		if plan.ID == id {
			return plan, nil
		}
	}
	return nil, store.ErrPlanNotFound
}

func (r *repoStub) GetPlanByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.SavingsPlan, error) {
	plan, ok := r.plans[trackingNumber]
	if !ok {
		return nil, store.ErrPlanNotFound
	}
	return plan, nil
}

func (r *repoStub) TrackingNumberExists(ctx context.Context, trackingNumber string) (bool, error) {
	_, ok := r.plans[trackingNumber]
	return ok, nil
}

func (r *repoStub) UpdatePlan(ctx context.Context, plan *domain.SavingsPlan) error {
	r.updatedPlan = plan
	return nil
}

func (r *repoStub) UpdatePlanStatus(ctx context.Context, planID uuid.UUID, status domain.PlanStatus) error {
	r.updatedStatus = &status
	return nil
}

func (r *repoStub) DeletePlan(ctx context.Context, planID uuid.UUID) error {
	r.deleteCalled = true
	return r.deleteErr
}

func (r *repoStub) ReplacePlanSchedule(ctx context.Context, plan *domain.SavingsPlan, markings []domain.Marking) error {
	r.replacedPlan = plan
	r.replacedMarkings = markings
	return nil
}

func (r *repoStub) GetMarkingsByPlan(ctx context.Context, planID uuid.UUID) ([]domain.Marking, error) {
	out := make([]domain.Marking, 0, len(r.markings))
	for _, m := range r.markings {
		if m.PlanID == planID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *repoStub) GetMarkingByPlanAndDate(ctx context.Context, planID uuid.UUID, date time.Time) (*domain.Marking, error) {
	for i := range r.markings {
		if r.markings[i].PlanID == planID && r.markings[i].ScheduledDate.Equal(date) {
			return &r.markings[i], nil
		}
	}
	return nil, store.ErrMarkingNotFound
}

func (r *repoStub) GetMarkingsByReference(ctx context.Context, reference string) ([]domain.Marking, error) {
	return r.byReference[reference], nil
}

func (r *repoStub) InsertMarkings(ctx context.Context, markings []domain.Marking) error {
	r.insertedMarkings = markings
	return nil
}

func (r *repoStub) UpdatePendingMarkingAmounts(ctx context.Context, planID uuid.UUID, amount decimal.Decimal) error {
	r.repricedAmount = &amount
	return nil
}

func (r *repoStub) DeleteLatestPendingMarkings(ctx context.Context, planID uuid.UUID, n int) error {
	r.trimmedCount = n
	return nil
}

func (r *repoStub) ClaimMarkings(ctx context.Context, ids []uuid.UUID, reference string, method domain.PaymentMethod, virtualAccount *domain.VirtualAccount) error {
	r.claimedIDs = ids
	r.claimedRef = reference
	r.claimedMethod = method
	r.claimedVA = virtualAccount
	return nil
}

func (r *repoStub) ReleaseClaimedMarkings(ctx context.Context, reference string) error {
	r.releasedRef = reference
	return nil
}

func (r *repoStub) SettleReference(ctx context.Context, reference string, markedBy *uuid.UUID, paidAt time.Time) (*store.SettlementResult, error) {
	r.settledRef = reference
	r.settledBy = markedBy
	if r.settleResult != nil {
		return r.settleResult, nil
	}
	return &store.SettlementResult{}, nil
}

func (r *repoStub) GetPaidStatsByPlan(ctx context.Context, planID uuid.UUID) (*domain.PlanPaidStats, error) {
	if r.paidStats == nil {
		return nil, store.ErrPlanNotFound
	}
	return r.paidStats, nil
}

func (r *repoStub) GetGatewayProfile(ctx context.Context, customerID uuid.UUID) (*domain.GatewayProfile, error) {
	if r.profile == nil {
		return nil, store.ErrProfileNotFound
	}
	return r.profile, nil
}

func (r *repoStub) UpsertGatewayProfile(ctx context.Context, profile *domain.GatewayProfile) error {
	r.upserted = profile
	return nil
}

// gatewayStub satisfies PaymentGateway with canned responses.
type gatewayStub struct {
	initReq         paystackclient.InitializeTransactionRequest
	initCalled      bool
	initErr         error
	verify          *paystackclient.VerifyTransactionResponse
	verifyErr       error
	verifyCalled    bool
	customer        *paystackclient.Customer
	dedicated       *paystackclient.DedicatedAccount
	dedicatedCalled bool
}

func (g *gatewayStub) InitializeTransaction(ctx context.Context, req paystackclient.InitializeTransactionRequest) (*paystackclient.InitializeTransactionResponse, error) {
	g.initCalled = true
	g.initReq = req
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &paystackclient.InitializeTransactionResponse{
		AuthorizationURL: "https://checkout.paystack.com/abc123",
		AccessCode:       "abc123",
		Reference:        req.Reference,
	}, nil
}

func (g *gatewayStub) VerifyTransaction(ctx context.Context, reference string) (*paystackclient.VerifyTransactionResponse, error) {
	g.verifyCalled = true
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if g.verify != nil {
		return g.verify, nil
	}
	return &paystackclient.VerifyTransactionResponse{Status: "success"}, nil
}

func (g *gatewayStub) CreateCustomer(ctx context.Context, email, firstName, lastName, phone string) (*paystackclient.Customer, error) {
	if g.customer != nil {
		return g.customer, nil
	}
	return &paystackclient.Customer{CustomerCode: "CUS_stub", Email: email}, nil
}

func (g *gatewayStub) CreateDedicatedAccount(ctx context.Context, customerCode, preferredBank string) (*paystackclient.DedicatedAccount, error) {
	g.dedicatedCalled = true
	if g.dedicated != nil {
		return g.dedicated, nil
	}
	account := &paystackclient.DedicatedAccount{
		AccountNumber: "9912345678",
		AccountName:   "KOPKAD/STUB",
	}
	account.Bank.Name = "Wema Bank"
	return account, nil
}

// directoryStub satisfies Directory with one canned profile.
type directoryStub struct {
	profile *directoryclient.CustomerProfile
	err     error
}

func (d *directoryStub) GetCustomer(ctx context.Context, customerID uuid.UUID) (*directoryclient.CustomerProfile, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.profile != nil {
		return d.profile, nil
	}
	return &directoryclient.CustomerProfile{ID: customerID, Email: "customer@example.com"}, nil
}

func (d *directoryStub) CustomerBelongsToBusiness(ctx context.Context, customerID, businessID uuid.UUID) (bool, error) {
	profile, err := d.GetCustomer(ctx, customerID)
	if err != nil {
		return false, err
	}
	return profile.BusinessID == businessID, nil
}

// producerStub records published events.
type publishedEvent struct {
	routingKey string
	body       interface{}
}

type producerStub struct {
	published []publishedEvent
}

func (p *producerStub) Publish(ctx context.Context, routingKey string, body interface{}) error {
	p.published = append(p.published, publishedEvent{routingKey: routingKey, body: body})
	return nil
}

func (p *producerStub) Close() {}

func newTestService(repo *repoStub, gateway *gatewayStub, directory *directoryStub, producer *producerStub) *Service {
	cfg := config.Config{
		PreferredVirtualBank: "wema-bank",
		PaymentCallbackURL:   "https://app.kopkad.test/pay/callback",
		ClaimTTLMinutes:      60,
	}
	return NewService(repo, gateway, directory, producer, NewPolicy(), nil, cfg)
}

func mustDate(s string) time.Time {
	t, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

/**
 * @description
 * Payment initiation: claiming markings under a freshly minted reference and
 * opening the matching gateway transaction. Single-plan initiation and the
 * bulk coordinator (one reference spanning plans) share the same claim path.
 *
 * @notes
 * - Markings are stamped with the reference before the checkout call so a
 *   concurrent initiation cannot double-claim them; if the gateway call then
 *   fails the claim is released and ErrGateway surfaces to the caller.
 * - A claim expires after CLAIM_TTL_MINUTES. Re-initiating an expired claim
 *   releases the whole stale reference first, so an abandoned checkout never
 *   locks its dates permanently.
 * - The engine never retries a gateway call.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kopkad/savings-service/internal/domain"
	"github.com/kopkad/savings-service/internal/store"
	"github.com/kopkad/savings-service/pkg/paystackclient"
)

const initiationRateScope = "payment_init"

// koboAmount converts a naira decimal into gateway minor units.
func koboAmount(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// MarkSingle initiates payment for one or more dates of a single plan. All
// targeted markings are claimed under one reference.
func (s *Service) MarkSingle(ctx context.Context, actor domain.Actor, trackingNumber string, req domain.MarkSingleRequest) (*domain.InitiationResult, error) {
	plan, err := s.repo.GetPlanByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, wrapStore(err)
	}
	if err := s.authorize(actor, ActionMarkPayment, plan); err != nil {
		return nil, err
	}
	if err := s.consumeInitiationBudget(ctx, actor.UserID); err != nil {
		return nil, err
	}
	if len(req.Dates) == 0 {
		return nil, fmt.Errorf("%w: at least one date is required", ErrValidation)
	}

	seen := make(map[string]struct{}, len(req.Dates))
	markings := make([]domain.Marking, 0, len(req.Dates))
	for _, raw := range req.Dates {
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		date, err := domain.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid date %q: %v", ErrValidation, raw, err)
		}
		m, err := s.repo.GetMarkingByPlanAndDate(ctx, plan.ID, date)
		if err != nil {
			return nil, wrapStore(err)
		}
		markings = append(markings, *m)
	}

	reference := mintReference(trackingNumber)
	return s.initiate(ctx, actor, reference, req.Method, plan.CustomerID, markings)
}

// MarkBulk initiates payment for markings across multiple plans under one
// reference. The batch claims atomically: any invalid marking rejects the
// whole initiation.
func (s *Service) MarkBulk(ctx context.Context, actor domain.Actor, req domain.BulkMarkRequest) (*domain.InitiationResult, error) {
	if err := s.authorize(actor, ActionMarkPayment, nil); err != nil {
		return nil, err
	}
	if err := s.consumeInitiationBudget(ctx, actor.UserID); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrValidation)
	}

	plans := make(map[string]*domain.SavingsPlan)
	seen := make(map[string]struct{}, len(req.Items))
	markings := make([]domain.Marking, 0, len(req.Items))
	for _, item := range req.Items {
		key := item.TrackingNumber + "|" + item.Date
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		plan, ok := plans[item.TrackingNumber]
		if !ok {
			loaded, err := s.repo.GetPlanByTrackingNumber(ctx, item.TrackingNumber)
			if err != nil {
				return nil, wrapStore(err)
			}
			if err := s.authorize(actor, ActionMarkPayment, loaded); err != nil {
				return nil, err
			}
			plans[item.TrackingNumber] = loaded
			plan = loaded
		}
		date, err := domain.ParseDate(item.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid date %q: %v", ErrValidation, item.Date, err)
		}
		m, err := s.repo.GetMarkingByPlanAndDate(ctx, plan.ID, date)
		if err != nil {
			return nil, wrapStore(err)
		}
		markings = append(markings, *m)
	}

	reference := mintReference("")
	return s.initiate(ctx, actor, reference, req.Method, actor.UserID, markings)
}

// claimTTL is how long an unsettled claim blocks re-initiation.
func (s *Service) claimTTL() time.Duration {
	if s.cfg.ClaimTTLMinutes > 0 {
		return time.Duration(s.cfg.ClaimTTLMinutes) * time.Minute
	}
	return 60 * time.Minute
}

// initiate runs the shared claim + gateway flow for a minted reference.
// payerID identifies whose contact identity (and virtual account) funds the
// transaction. A marking under an unexpired reference rejects the batch;
// expired references are released in full before the fresh claim.
func (s *Service) initiate(ctx context.Context, actor domain.Actor, reference string, method domain.PaymentMethod, payerID uuid.UUID, markings []domain.Marking) (*domain.InitiationResult, error) {
	now := time.Now().UTC()
	ttl := s.claimTTL()
	total := decimal.Zero
	ids := make([]uuid.UUID, 0, len(markings))
	staleRefs := make(map[string]struct{})
	for i := range markings {
		m := &markings[i]
		if m.Status != domain.MarkingPending {
			return nil, fmt.Errorf("%w: %s is already settled", ErrConflict, m.ScheduledDate.Format(domain.DateLayout))
		}
		if m.PaymentReference != nil {
			// The claim stamped updated_at; an older claim is expired.
			if now.Sub(m.UpdatedAt) < ttl {
				return nil, fmt.Errorf("%w: %s already carries reference %s", ErrAlreadyClaimed, m.ScheduledDate.Format(domain.DateLayout), *m.PaymentReference)
			}
			staleRefs[*m.PaymentReference] = struct{}{}
		}
		total = total.Add(m.Amount)
		ids = append(ids, m.ID)
	}
	for ref := range staleRefs {
		if err := s.repo.ReleaseClaimedMarkings(ctx, ref); err != nil {
			return nil, wrapStore(err)
		}
		log.Printf("level=info component=savings_service msg=\"expired claim released\" reference=%s", ref)
	}

	result := &domain.InitiationResult{
		Reference:       reference,
		Method:          method,
		TotalAmount:     total,
		MarkingsClaimed: len(ids),
	}

	switch method {
	case domain.MethodBankTransfer:
		account, err := s.ensureVirtualAccount(ctx, payerID)
		if err != nil {
			return nil, err
		}
		if err := s.repo.ClaimMarkings(ctx, ids, reference, method, account); err != nil {
			return nil, wrapStore(err)
		}
		result.VirtualAccount = account

	case domain.MethodCard:
		profile, err := s.directory.GetCustomer(ctx, payerID)
		if err != nil {
			return nil, fmt.Errorf("%w: payer lookup failed: %v", ErrValidation, err)
		}
		if err := s.repo.ClaimMarkings(ctx, ids, reference, method, nil); err != nil {
			return nil, wrapStore(err)
		}
		checkout, err := s.gateway.InitializeTransaction(ctx, paystackclient.InitializeTransactionRequest{
			Email:       profile.Email,
			Amount:      koboAmount(total),
			Reference:   reference,
			CallbackURL: s.cfg.PaymentCallbackURL,
		})
		if err != nil {
			if relErr := s.repo.ReleaseClaimedMarkings(ctx, reference); relErr != nil {
				log.Printf("level=error component=savings_service msg=\"failed to release claim after gateway error\" reference=%s err=%v", reference, relErr)
			}
			return nil, fmt.Errorf("%w: %v", ErrGateway, err)
		}
		result.AuthorizationURL = checkout.AuthorizationURL

	default:
		return nil, fmt.Errorf("%w: unsupported payment method %q", ErrValidation, method)
	}

	log.Printf("level=info component=savings_service msg=\"payment initiated\" reference=%s method=%s markings=%d total=%s",
		reference, method, len(ids), total)
	return result, nil
}

// ensureVirtualAccount returns the customer's dedicated virtual account,
// creating the gateway customer and account on first use and reusing the
// stored descriptor afterwards.
func (s *Service) ensureVirtualAccount(ctx context.Context, customerID uuid.UUID) (*domain.VirtualAccount, error) {
	profile, err := s.repo.GetGatewayProfile(ctx, customerID)
	if err != nil {
		if !errors.Is(err, store.ErrProfileNotFound) {
			return nil, wrapStore(err)
		}
		profile = nil
	} else if profile.VirtualAccount != nil {
		return profile.VirtualAccount, nil
	}

	contact, err := s.directory.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("%w: customer lookup failed: %v", ErrValidation, err)
	}

	customerCode := ""
	if profile != nil {
		customerCode = profile.GatewayCustomerCode
	}
	if customerCode == "" {
		created, err := s.gateway.CreateCustomer(ctx, contact.Email, contact.FirstName, contact.LastName, contact.Phone)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGateway, err)
		}
		customerCode = created.CustomerCode
	}

	dedicated, err := s.gateway.CreateDedicatedAccount(ctx, customerCode, s.cfg.PreferredVirtualBank)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	account := &domain.VirtualAccount{
		BankName:      dedicated.Bank.Name,
		AccountNumber: dedicated.AccountNumber,
		AccountName:   dedicated.AccountName,
	}
	if err := s.repo.UpsertGatewayProfile(ctx, &domain.GatewayProfile{
		CustomerID:          customerID,
		GatewayCustomerCode: customerCode,
		VirtualAccount:      account,
	}); err != nil {
		return nil, wrapStore(err)
	}
	return account, nil
}

// consumeInitiationBudget applies the per-customer initiation rate limit.
// Passes through when Redis is not configured.
func (s *Service) consumeInitiationBudget(ctx context.Context, subject uuid.UUID) error {
	if s.limiter == nil {
		return nil
	}
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, initiationRateScope, subject.String(), s.cfg.MarkRateLimitPerMinute, time.Minute)
	if err != nil {
		// Rate limiting is advisory; a limiter outage must not block payments.
		log.Printf("level=warn component=savings_service msg=\"rate limiter unavailable\" err=%v", err)
		return nil
	}
	if s.cfg.MarkRateLimitPerMinute > 0 && count > s.cfg.MarkRateLimitPerMinute {
		return fmt.Errorf("%w: retry in %ds", ErrRateLimited, retryAfter)
	}
	return nil
}

/**
 * @description
 * This file contains the core wiring for the savings-service business logic.
 * The `Service` struct orchestrates the savings plan lifecycle, payment
 * initiation and reconciliation, coordinating between the database repository,
 * the Paystack gateway client, the user directory and the message broker.
 *
 * Key features:
 * - Injected dependencies only; no package-level mutable state.
 * - A single Policy value consulted once per operation for role checks.
 * - Publishes events to RabbitMQ for asynchronous processing by other services.
 *
 * @dependencies
 * - context, fmt, math/rand, strings: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/paystackclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"github.com/kopkad/savings-service/internal/config"
	"github.com/kopkad/savings-service/internal/domain"
	"github.com/kopkad/savings-service/internal/store"
	"github.com/kopkad/savings-service/pkg/directoryclient"
	"github.com/kopkad/savings-service/pkg/paystackclient"
	"github.com/kopkad/savings-service/pkg/rabbitmq"
)

const (
	trackingNumberLength   = 10
	trackingNumberAttempts = 5
	referenceMaxLength     = 100
	referencePrefix        = "sv"
)

// PaymentGateway is the outbound payment-gateway surface the service needs.
// *paystackclient.Client satisfies it.
type PaymentGateway interface {
	InitializeTransaction(ctx context.Context, req paystackclient.InitializeTransactionRequest) (*paystackclient.InitializeTransactionResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystackclient.VerifyTransactionResponse, error)
	CreateCustomer(ctx context.Context, email, firstName, lastName, phone string) (*paystackclient.Customer, error)
	CreateDedicatedAccount(ctx context.Context, customerCode, preferredBank string) (*paystackclient.DedicatedAccount, error)
}

// Directory is the user-directory surface the service needs for ownership
// checks and contact identity. *directoryclient.Client satisfies it.
type Directory interface {
	GetCustomer(ctx context.Context, customerID uuid.UUID) (*directoryclient.CustomerProfile, error)
	CustomerBelongsToBusiness(ctx context.Context, customerID, businessID uuid.UUID) (bool, error)
}

// Service provides the core business logic for savings plans.
type Service struct {
	repo          store.Repository
	gateway       PaymentGateway
	directory     Directory
	eventProducer rabbitmq.Publisher
	policy        *Policy
	limiter       *RedisRateLimiter
	cfg           config.Config
}

// NewService creates a new savings service instance. The limiter may be nil
// when Redis is not configured.
func NewService(repo store.Repository, gateway PaymentGateway, directory Directory, producer rabbitmq.Publisher, policy *Policy, limiter *RedisRateLimiter, cfg config.Config) *Service {
	return &Service{
		repo:          repo,
		gateway:       gateway,
		directory:     directory,
		eventProducer: producer,
		policy:        policy,
		limiter:       limiter,
		cfg:           cfg,
	}
}

// authorize checks the role capability and, for roles without ownership
// exemption, that the actor owns the plan.
func (s *Service) authorize(actor domain.Actor, action Action, plan *domain.SavingsPlan) error {
	if !s.policy.Allows(actor.Role, action) {
		return fmt.Errorf("%w: role %s may not perform %s", ErrUnauthorized, actor.Role, action)
	}
	if plan != nil && !s.policy.OwnershipExempt(actor.Role) && plan.CustomerID != actor.UserID {
		return fmt.Errorf("%w: plan %s does not belong to actor", ErrUnauthorized, plan.TrackingNumber)
	}
	return nil
}

// mintTrackingNumber generates a fresh numeric tracking code, retrying on
// collision a bounded number of times.
func (s *Service) mintTrackingNumber(ctx context.Context) (string, error) {
	const digits = "0123456789"
	for attempt := 0; attempt < trackingNumberAttempts; attempt++ {
		var b strings.Builder
		for i := 0; i < trackingNumberLength; i++ {
			b.WriteByte(digits[rand.Intn(len(digits))])
		}
		candidate := b.String()
		exists, err := s.repo.TrackingNumberExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check tracking number: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: could not mint a unique tracking number", ErrConflict)
}

// mintReference builds a gateway-safe payment reference. Single-plan
// references embed the tracking number; bulk references use the bulk prefix.
func mintReference(trackingNumber string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	var ref string
	if trackingNumber == "" {
		ref = fmt.Sprintf("%s_bulk_%s", referencePrefix, suffix)
	} else {
		ref = fmt.Sprintf("%s_%s_%s", referencePrefix, trackingNumber, suffix)
	}
	if len(ref) > referenceMaxLength {
		ref = ref[:referenceMaxLength]
	}
	return ref
}

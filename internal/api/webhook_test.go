package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kopkad/savings-service/internal/app"
	"github.com/kopkad/savings-service/internal/config"
	"github.com/kopkad/savings-service/internal/domain"
	"github.com/kopkad/savings-service/internal/store"
)

const webhookTestSecret = "sk_test_webhook_secret"

func dec1000() decimal.Decimal {
	return decimal.RequireFromString("1000")
}

type webhookRepoStub struct {
	store.Repository

	markings   map[string][]domain.Marking
	settledRef string
}

func (r *webhookRepoStub) GetMarkingsByReference(ctx context.Context, reference string) ([]domain.Marking, error) {
	return r.markings[reference], nil
}

func (r *webhookRepoStub) SettleReference(ctx context.Context, reference string, markedBy *uuid.UUID, paidAt time.Time) (*store.SettlementResult, error) {
	r.settledRef = reference
	out := make([]domain.Marking, len(r.markings[reference]))
	copy(out, r.markings[reference])
	return &store.SettlementResult{Settled: out}, nil
}

func newWebhookHandler(repo *webhookRepoStub) *WebhookHandler {
	service := app.NewService(repo, nil, nil, nil, app.NewPolicy(), nil, config.Config{})
	return NewWebhookHandler(service, webhookTestSecret)
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookBody(t *testing.T, event, reference string, amountKobo int64) []byte {
	t.Helper()
	payload := domain.GatewayWebhookEvent{Event: event}
	payload.Data.Reference = reference
	payload.Data.Amount = amountKobo
	payload.Data.PaidAt = "2025-01-31T10:15:00Z"
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal webhook body: %v", err)
	}
	return body
}

func TestWebhook_MissingSignatureRejected(t *testing.T) {
	repo := &webhookRepoStub{markings: map[string][]domain.Marking{}}
	handler := newWebhookHandler(repo)

	body := webhookBody(t, "charge.success", "sv_1111111111_cafe0001", 100000)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/paystack", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if repo.settledRef != "" {
		t.Fatal("an unsigned webhook must not touch the ledger")
	}
}

func TestWebhook_InvalidSignatureRejected(t *testing.T) {
	repo := &webhookRepoStub{markings: map[string][]domain.Marking{}}
	handler := newWebhookHandler(repo)

	body := webhookBody(t, "charge.success", "sv_1111111111_cafe0002", 100000)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/paystack", bytes.NewReader(body))
	req.Header.Set("x-paystack-signature", sign("wrong-secret", body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWebhook_ValidSignatureSettlesAndAcknowledges(t *testing.T) {
	planID := uuid.New()
	reference := "sv_1111111111_cafe0003"
	repo := &webhookRepoStub{markings: map[string][]domain.Marking{
		reference: {{
			ID:               uuid.New(),
			PlanID:           planID,
			ScheduledDate:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Amount:           dec1000(),
			Status:           domain.MarkingPending,
			PaymentReference: &reference,
		}},
	}}
	handler := newWebhookHandler(repo)

	body := webhookBody(t, "charge.success", reference, 100000)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/paystack", bytes.NewReader(body))
	req.Header.Set("x-paystack-signature", sign(webhookTestSecret, body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var ack map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("invalid acknowledgement body: %v", err)
	}
	if ack["status"] != "success" {
		t.Fatalf("expected success acknowledgement, got %+v", ack)
	}
	if repo.settledRef != reference {
		t.Fatalf("expected %s settled, got %q", reference, repo.settledRef)
	}
}

func TestWebhook_MalformedPayloadStillAcknowledged(t *testing.T) {
	repo := &webhookRepoStub{markings: map[string][]domain.Marking{}}
	handler := newWebhookHandler(repo)

	body := []byte(`{"event": "charge.success", "data": `)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/paystack", bytes.NewReader(body))
	req.Header.Set("x-paystack-signature", sign(webhookTestSecret, body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after a valid signature, got %d", rec.Code)
	}
	var ack map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil || ack["status"] != "success" {
		t.Fatalf("expected the success acknowledgement, got %q", rec.Body.String())
	}
	if repo.settledRef != "" {
		t.Fatal("an undecodable payload must not touch the ledger")
	}
}

func TestWebhook_UnknownReferenceStillAcknowledged(t *testing.T) {
	repo := &webhookRepoStub{markings: map[string][]domain.Marking{}}
	handler := newWebhookHandler(repo)

	body := webhookBody(t, "charge.success", "sv_0000000000_unknown1", 100000)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/paystack", bytes.NewReader(body))
	req.Header.Set("x-paystack-signature", sign(webhookTestSecret, body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for an unknown reference, got %d", rec.Code)
	}
	if repo.settledRef != "" {
		t.Fatal("nothing may settle for an unknown reference")
	}
}
